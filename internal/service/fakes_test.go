package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/gemini"
	"github.com/digkill/GenStudio/internal/models"
	"github.com/digkill/GenStudio/internal/repository"
)

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Verify(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type mockLookup struct{ mock.Mock }

func (m *mockLookup) FindIDByEmail(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, req *gemini.Request) (*gemini.Response, error) {
	args := m.Called(ctx, model, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*gemini.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockBlobs struct{ mock.Mock }

func (m *mockBlobs) Upload(ctx context.Context, folder string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, folder, data, contentType)
	return args.String(0), args.Error(1)
}

type mockTools struct{ mock.Mock }

func (m *mockTools) FindByKey(ctx context.Context, key string) (*models.Tool, error) {
	args := m.Called(ctx, key)
	if t := args.Get(0); t != nil {
		return t.(*models.Tool), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAlerter struct{ mock.Mock }

func (m *mockAlerter) Alert(ctx context.Context, key, message string) error {
	return m.Called(ctx, key, message).Error(0)
}

// memRecords keeps inserted records in memory.
type memRecords struct {
	mu      sync.Mutex
	records []models.GenerationRecord
	err     error
}

func (r *memRecords) Insert(_ context.Context, rec *models.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *memRecords) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.GenerationRecord, error) {
	return r.filter(func(rec models.GenerationRecord) bool { return rec.UserID != nil && *rec.UserID == userID }), nil
}

func (r *memRecords) ListByGuest(_ context.Context, guestID string, limit, offset int) ([]models.GenerationRecord, error) {
	return r.filter(func(rec models.GenerationRecord) bool { return rec.GuestID != nil && *rec.GuestID == guestID }), nil
}

func (r *memRecords) filter(keep func(models.GenerationRecord) bool) []models.GenerationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.GenerationRecord{}
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (r *memRecords) all() []models.GenerationRecord {
	return r.filter(func(models.GenerationRecord) bool { return true })
}

// memBalances mirrors the store semantics: floored debit, settle as one step.
type memBalances struct {
	mu        sync.Mutex
	balances  map[string]int
	galleries map[string][]string
	settleErr error
	creates   int
}

func newMemBalances() *memBalances {
	return &memBalances{balances: map[string]int{}, galleries: map[string][]string{}}
}

func (m *memBalances) debit(id string, amount int) (int, error) {
	bal, ok := m.balances[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	bal -= amount
	if bal < 0 {
		bal = 0
	}
	m.balances[id] = bal
	return bal, nil
}

func (m *memBalances) Debit(_ context.Context, id string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debit(id, amount)
}

func (m *memBalances) DebitAndAppendGallery(_ context.Context, id string, amount int, url string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleErr != nil {
		return 0, m.settleErr
	}
	bal, err := m.debit(id, amount)
	if err != nil {
		return 0, err
	}
	m.galleries[id] = append(m.galleries[id], url)
	return bal, nil
}

func (m *memBalances) ListGallery(_ context.Context, id string, limit int) ([]models.GalleryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []models.GalleryItem{}
	for _, u := range m.galleries[id] {
		items = append(items, models.GalleryItem{ImageURL: u})
	}
	return items, nil
}

func (m *memBalances) balance(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[id]
	return b, ok
}

type memAccounts struct{ *memBalances }

func (a memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bal, ok := a.balances[id]
	if !ok {
		return nil, nil
	}
	return &models.Account{ID: id, Credits: bal, Role: models.RoleUser}, nil
}

type memGuests struct{ *memBalances }

func (g memGuests) GetOrCreate(_ context.Context, id string, initial int) (*models.GuestSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	bal, ok := g.balances[id]
	if !ok {
		g.creates++
		bal = initial
		g.balances[id] = bal
	}
	return &models.GuestSession{ID: id, Credits: bal, LastSeen: time.Now()}, nil
}

type countingObserver struct {
	mu          sync.Mutex
	attempts    []string
	generations []string
	bookkeeping int
}

func (o *countingObserver) ObserveAttempt(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, result)
}

func (o *countingObserver) ObserveGeneration(kind string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generations = append(o.generations, kind)
}

func (o *countingObserver) ObserveBookkeepingFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bookkeeping++
}

func imageResponse(data string) *gemini.Response {
	return &gemini.Response{Candidates: []gemini.Candidate{{
		Content:      &gemini.Content{Parts: []gemini.Part{{InlineData: &gemini.InlineData{MimeType: "image/png", Data: []byte(data)}}}},
		FinishReason: "STOP",
	}}}
}

func textResponse(texts ...string) *gemini.Response {
	parts := make([]gemini.Part, 0, len(texts))
	for _, text := range texts {
		parts = append(parts, gemini.Part{Text: text})
	}
	return &gemini.Response{Candidates: []gemini.Candidate{{
		Content:      &gemini.Content{Parts: parts},
		FinishReason: "STOP",
	}}}
}

func emptyResponse(reason string) *gemini.Response {
	return &gemini.Response{Candidates: []gemini.Candidate{{FinishReason: reason}}}
}

func textInput(prompt string) GenerationInput {
	return GenerationInput{Parts: []gemini.Part{{Text: prompt}}}
}

var errBoom = errors.New("boom")

func testLogger() *zap.Logger { return zap.NewNop() }
