package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type PersistResult struct {
	URL     string
	Balance int
	// Debited is what was actually taken from the balance: the cost, or 0 when bookkeeping failed.
	Debited        int
	BookkeepingErr error
}

// ResultPersister stores the image before touching the balance, so a caller is only
// charged for output that exists.
type ResultPersister struct {
	blobs    BlobStore
	ledger   *Ledger
	alerter  Alerter
	observer Observer
	log      *zap.Logger
}

func NewResultPersister(blobs BlobStore, ledger *Ledger, alerter Alerter, observer Observer, log *zap.Logger) *ResultPersister {
	if observer == nil {
		observer = nopObserver{}
	}
	return &ResultPersister{blobs: blobs, ledger: ledger, alerter: alerter, observer: observer, log: log.Named("persister")}
}

// Persist uploads the image, then debits cost and records the URL in the owner's gallery.
// An upload failure is returned as *StorageError and nothing is debited. A failure after
// the upload is logged and alerted but not returned; the caller keeps the URL and the
// balance stays at peeked.
func (p *ResultPersister) Persist(ctx context.Context, id Identity, img *GeneratedImage, cost, peeked int) (*PersistResult, error) {
	url, err := p.blobs.Upload(ctx, folderFor(id), img.Data, img.MimeType)
	if err != nil {
		p.log.Error("upload failed", zap.String("owner_kind", id.Kind()), zap.Error(err))
		return nil, &StorageError{Err: err}
	}

	balance, err := p.ledger.Settle(ctx, id, cost, url)
	if err != nil {
		bookkeepingErr := fmt.Errorf("%w: %v", ErrBookkeepingFailed, err)
		p.observer.ObserveBookkeepingFailure()
		p.log.Error("debit after upload failed",
			zap.String("owner_kind", id.Kind()),
			zap.String("owner_id", id.OwnerID()),
			zap.Int("cost", cost),
			zap.String("url", url),
			zap.Error(err),
		)
		p.alert(ctx, "bookkeeping:"+id.Kind(), fmt.Sprintf("Bookkeeping failed for %s %s: cost %d not debited for %s (%v)", id.Kind(), id.OwnerID(), cost, url, err))
		return &PersistResult{URL: url, Balance: peeked, BookkeepingErr: bookkeepingErr}, nil
	}

	return &PersistResult{URL: url, Balance: balance, Debited: cost}, nil
}

func (p *ResultPersister) alert(ctx context.Context, key, msg string) {
	if p.alerter == nil {
		return
	}
	if err := p.alerter.Alert(ctx, key, msg); err != nil {
		p.log.Warn("send alert", zap.Error(err))
	}
}

func folderFor(id Identity) string {
	if id.IsGuest() {
		return "guests"
	}
	return "users"
}
