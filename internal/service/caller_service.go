package service

import (
	"context"

	"github.com/digkill/GenStudio/internal/models"
)

const maxListLimit = 100

// CallerService answers read-only questions about the caller's own balance and output.
type CallerService struct {
	resolver *IdentityResolver
	ledger   *Ledger
	records  RecordStore
}

func NewCallerService(resolver *IdentityResolver, ledger *Ledger, records RecordStore) *CallerService {
	return &CallerService{resolver: resolver, ledger: ledger, records: records}
}

type BalanceView struct {
	Kind    string `json:"kind"`
	Credits int    `json:"credits"`
}

// Balance resolves the caller and reads its balance. A new guest is seeded here too.
func (s *CallerService) Balance(ctx context.Context, ev Evidence) (*BalanceView, error) {
	id, err := s.resolver.Resolve(ctx, ev)
	if err != nil {
		return nil, err
	}
	credits, err := s.ledger.PeekBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BalanceView{Kind: id.Kind(), Credits: credits}, nil
}

func (s *CallerService) History(ctx context.Context, ev Evidence, limit, offset int) ([]models.GenerationRecord, error) {
	id, err := s.resolver.Resolve(ctx, ev)
	if err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)
	if id.IsGuest() {
		return s.records.ListByGuest(ctx, id.GuestID, limit, offset)
	}
	return s.records.ListByUser(ctx, id.AccountID, limit, offset)
}

func (s *CallerService) Gallery(ctx context.Context, ev Evidence, limit int) ([]models.GalleryItem, error) {
	id, err := s.resolver.Resolve(ctx, ev)
	if err != nil {
		return nil, err
	}
	limit, _ = clampPage(limit, 0)
	return s.ledger.Gallery(ctx, id, limit)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
