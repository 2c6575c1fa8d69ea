package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() (*Ledger, *memBalances, *memBalances) {
	accounts := newMemBalances()
	guests := newMemBalances()
	return NewLedger(memAccounts{accounts}, memGuests{guests}, 3), accounts, guests
}

func TestPeekBalanceSeedsGuestOnce(t *testing.T) {
	ledger, _, guests := newTestLedger()
	ctx := context.Background()

	bal, err := ledger.PeekBalance(ctx, GuestIdentity("g-1"))
	require.NoError(t, err)
	assert.Equal(t, 3, bal)

	_, err = ledger.Debit(ctx, GuestIdentity("g-1"), 1)
	require.NoError(t, err)

	bal, err = ledger.PeekBalance(ctx, GuestIdentity("g-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, bal)
	assert.Equal(t, 1, guests.creates)
}

func TestPeekBalanceDoesNotDeduct(t *testing.T) {
	ledger, accounts, _ := newTestLedger()
	accounts.balances["acc-1"] = 10

	for i := 0; i < 3; i++ {
		bal, err := ledger.PeekBalance(context.Background(), AccountIdentity("acc-1"))
		require.NoError(t, err)
		assert.Equal(t, 10, bal)
	}
}

func TestPeekBalanceMissingAccount(t *testing.T) {
	ledger, _, _ := newTestLedger()
	_, err := ledger.PeekBalance(context.Background(), AccountIdentity("gone"))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDebitFloorsAtZero(t *testing.T) {
	ledger, accounts, _ := newTestLedger()
	accounts.balances["acc-1"] = 3

	bal, err := ledger.Debit(context.Background(), AccountIdentity("acc-1"), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, bal)

	_, err = ledger.Debit(context.Background(), AccountIdentity("acc-1"), -1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestConcurrentDebitsNeverGoNegative(t *testing.T) {
	ledger, accounts, _ := newTestLedger()
	accounts.balances["acc-1"] = 5

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.Debit(context.Background(), AccountIdentity("acc-1"), 2)
		}()
	}
	wg.Wait()

	bal, _ := accounts.balance("acc-1")
	assert.Equal(t, 0, bal)
}

func TestConcurrentGuestFirstTouchCreatesOneSession(t *testing.T) {
	ledger, _, guests := newTestLedger()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bal, err := ledger.PeekBalance(context.Background(), GuestIdentity("g-race"))
			assert.NoError(t, err)
			assert.Equal(t, 3, bal)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, guests.creates)
}

func TestSettleAppendsGallery(t *testing.T) {
	ledger, _, guests := newTestLedger()
	guests.balances["g-1"] = 3

	bal, err := ledger.Settle(context.Background(), GuestIdentity("g-1"), 1, "https://cdn/a.png")
	require.NoError(t, err)
	assert.Equal(t, 2, bal)

	items, err := ledger.Gallery(context.Background(), GuestIdentity("g-1"), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://cdn/a.png", items[0].ImageURL)
}
