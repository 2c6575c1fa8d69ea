package service

import (
	"context"
	"fmt"

	"github.com/digkill/GenStudio/internal/models"
)

// Ledger reads and debits prepaid balances. It never rejects for low balance;
// that decision belongs to the caller.
type Ledger struct {
	accounts            AccountStore
	guests              GuestStore
	guestDefaultCredits int
}

func NewLedger(accounts AccountStore, guests GuestStore, guestDefaultCredits int) *Ledger {
	return &Ledger{accounts: accounts, guests: guests, guestDefaultCredits: guestDefaultCredits}
}

// PeekBalance returns the current balance without deducting. A guest seen for the
// first time is created with the configured default.
func (l *Ledger) PeekBalance(ctx context.Context, id Identity) (int, error) {
	if id.IsGuest() {
		g, err := l.guests.GetOrCreate(ctx, id.GuestID, l.guestDefaultCredits)
		if err != nil {
			return 0, fmt.Errorf("peek guest balance: %w", err)
		}
		return g.Credits, nil
	}

	acc, err := l.accounts.GetByID(ctx, id.AccountID)
	if err != nil {
		return 0, fmt.Errorf("peek account balance: %w", err)
	}
	if acc == nil {
		return 0, fmt.Errorf("%w: account %s not found", ErrUnauthorized, id.AccountID)
	}
	return acc.Credits, nil
}

// Debit subtracts amount with a floor of zero and returns the resulting balance.
func (l *Ledger) Debit(ctx context.Context, id Identity, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative debit", ErrInvalidRequest)
	}
	if id.IsGuest() {
		return l.guests.Debit(ctx, id.GuestID, amount)
	}
	return l.accounts.Debit(ctx, id.AccountID, amount)
}

// Settle debits amount and appends url to the owner's gallery as one store transaction.
func (l *Ledger) Settle(ctx context.Context, id Identity, amount int, url string) (int, error) {
	if id.IsGuest() {
		return l.guests.DebitAndAppendGallery(ctx, id.GuestID, amount, url)
	}
	return l.accounts.DebitAndAppendGallery(ctx, id.AccountID, amount, url)
}

func (l *Ledger) Gallery(ctx context.Context, id Identity, limit int) ([]models.GalleryItem, error) {
	if id.IsGuest() {
		return l.guests.ListGallery(ctx, id.GuestID, limit)
	}
	return l.accounts.ListGallery(ctx, id.AccountID, limit)
}
