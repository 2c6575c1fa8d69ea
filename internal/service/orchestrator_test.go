package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pipeline struct {
	orch      *Orchestrator
	sessions  *mockSessions
	lookup    *mockLookup
	generator *mockGenerator
	blobs     *mockBlobs
	alerter   *mockAlerter
	accounts  *memBalances
	guests    *memBalances
	records   *memRecords
	observer  *countingObserver
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		sessions:  new(mockSessions),
		lookup:    new(mockLookup),
		generator: new(mockGenerator),
		blobs:     new(mockBlobs),
		alerter:   new(mockAlerter),
		accounts:  newMemBalances(),
		guests:    newMemBalances(),
		records:   &memRecords{},
		observer:  &countingObserver{},
	}
	log := testLogger()
	ledger := NewLedger(memAccounts{p.accounts}, memGuests{p.guests}, 3)
	invoker := NewInvoker(p.generator, "gemini-2.5-flash-image", p.observer, log)
	invoker.backoff = 0
	p.orch = NewOrchestrator(
		PipelineConfig{RequestTimeout: time.Minute, GuestDefaultCredits: 3},
		NewIdentityResolver(p.sessions, p.lookup, log),
		ledger,
		invoker,
		NewResultPersister(p.blobs, ledger, p.alerter, p.observer, log),
		NewAuditLogger(p.records, nil, log),
		p.observer,
		log,
	)
	p.orch.newID = func() string { return "rec-1" }
	return p
}

func (p *pipeline) withAccount(email, id string, credits int) {
	p.sessions.On("Verify", mock.Anything, "jwt-"+id).Return(email, nil)
	p.lookup.On("FindIDByEmail", mock.Anything, email).Return(id, nil)
	p.accounts.balances[id] = credits
}

func TestGenerateDebitsAccountAndRecords(t *testing.T) {
	p := newPipeline(t)
	p.withAccount("a@example.com", "acc-1", 10)
	p.generator.On("GenerateContent", mock.Anything, "gemini-2.5-flash-image", mock.Anything).Return(imageResponse("png"), nil).Once()
	p.blobs.On("Upload", mock.Anything, "users", []byte("png"), "image/png").Return("https://cdn/users/a.png", nil).Once()

	res, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{SessionToken: "jwt-acc-1"},
		Input:    textInput("a red fox"),
		Cost:     2,
		ToolKey:  "free-generation",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/users/a.png", res.ImageURL)
	assert.Equal(t, 8, res.NewCredits)
	assert.Equal(t, "rec-1", res.RecordID)

	bal, _ := p.accounts.balance("acc-1")
	assert.Equal(t, 8, bal)
	assert.Equal(t, []string{"https://cdn/users/a.png"}, p.accounts.galleries["acc-1"])

	records := p.records.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "rec-1", rec.ID)
	require.NotNil(t, rec.UserID)
	assert.Equal(t, "acc-1", *rec.UserID)
	assert.Nil(t, rec.GuestID)
	assert.Equal(t, 2, rec.CreditsUsed)
	assert.Equal(t, "a red fox", rec.Prompt)
	assert.Equal(t, []string{"https://cdn/users/a.png"}, []string(rec.OutputImages))
	assert.Nil(t, rec.ErrorMessage)
	assert.Equal(t, []string{"success"}, p.observer.generations)
}

func TestGenerateInsufficientCreditsSkipsBackend(t *testing.T) {
	p := newPipeline(t)
	p.withAccount("a@example.com", "acc-1", 1)

	_, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{SessionToken: "jwt-acc-1"},
		Input:    textInput("a red fox"),
		Cost:     2,
	})
	require.Error(t, err)

	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Current)
	assert.Equal(t, 2, insufficient.Required)
	assert.Equal(t, KindInsufficientCredits, KindOf(err))

	p.generator.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, p.records.all())
	bal, _ := p.accounts.balance("acc-1")
	assert.Equal(t, 1, bal)
}

func TestGenerateStorageFailureDoesNotDebit(t *testing.T) {
	p := newPipeline(t)
	p.withAccount("a@example.com", "acc-1", 10)
	p.generator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(imageResponse("png"), nil)
	p.blobs.On("Upload", mock.Anything, "users", mock.Anything, mock.Anything).Return("", errBoom)

	_, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{SessionToken: "jwt-acc-1"},
		Input:    textInput("a red fox"),
		Cost:     2,
	})
	require.Error(t, err)
	assert.Equal(t, KindStorageFailed, KindOf(err))

	bal, _ := p.accounts.balance("acc-1")
	assert.Equal(t, 10, bal)

	records := p.records.all()
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].CreditsUsed)
	assert.Empty(t, records[0].OutputImages)
	require.NotNil(t, records[0].ErrorMessage)
	assert.Contains(t, *records[0].ErrorMessage, "boom")
}

func TestGenerateBookkeepingFailureStillReturnsImage(t *testing.T) {
	p := newPipeline(t)
	p.withAccount("a@example.com", "acc-1", 10)
	p.accounts.settleErr = errBoom
	p.generator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(imageResponse("png"), nil)
	p.blobs.On("Upload", mock.Anything, "users", mock.Anything, mock.Anything).Return("https://cdn/users/a.png", nil)
	p.alerter.On("Alert", mock.Anything, "bookkeeping:account", mock.AnythingOfType("string")).Return(nil).Once()

	res, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{SessionToken: "jwt-acc-1"},
		Input:    textInput("a red fox"),
		Cost:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/users/a.png", res.ImageURL)
	assert.Equal(t, 10, res.NewCredits)

	records := p.records.all()
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].CreditsUsed)
	assert.Equal(t, []string{"https://cdn/users/a.png"}, []string(records[0].OutputImages))
	require.NotNil(t, records[0].ErrorMessage)
	assert.Contains(t, *records[0].ErrorMessage, ErrBookkeepingFailed.Error())

	p.alerter.AssertExpectations(t)
	assert.Equal(t, 1, p.observer.bookkeeping)
}

func TestBookkeepingFailuresShareAlertKey(t *testing.T) {
	p := newPipeline(t)
	p.withAccount("a@example.com", "acc-1", 10)
	p.withAccount("b@example.com", "acc-2", 10)
	p.accounts.settleErr = errBoom
	p.generator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(imageResponse("png"), nil)
	p.blobs.On("Upload", mock.Anything, "users", mock.Anything, mock.Anything).Return("https://cdn/users/a.png", nil).Once()
	p.blobs.On("Upload", mock.Anything, "users", mock.Anything, mock.Anything).Return("https://cdn/users/b.png", nil).Once()
	p.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	for _, token := range []string{"jwt-acc-1", "jwt-acc-2"} {
		_, err := p.orch.Generate(context.Background(), GenerateRequest{
			Evidence: Evidence{SessionToken: token},
			Input:    textInput("a red fox"),
			Cost:     2,
		})
		require.NoError(t, err)
	}

	require.Len(t, p.alerter.Calls, 2)
	first, second := p.alerter.Calls[0].Arguments, p.alerter.Calls[1].Arguments
	assert.Equal(t, "bookkeeping:account", first.String(1))
	assert.Equal(t, first.String(1), second.String(1))
	assert.NotEqual(t, first.String(2), second.String(2))
	assert.Equal(t, 2, p.observer.bookkeeping)
}

func TestGenerateInvalidSessionDoesNotSeedGuest(t *testing.T) {
	p := newPipeline(t)
	p.sessions.On("Verify", mock.Anything, "stale").Return("", errors.New("expired"))

	_, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{SessionToken: "stale", GuestToken: "g-1"},
		Input:    textInput("a red fox"),
		Cost:     1,
	})
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Equal(t, 0, p.guests.creates)
	assert.Empty(t, p.records.all())
}

func TestGenerateRefusalDoesNotDebit(t *testing.T) {
	p := newPipeline(t)
	p.withAccount("a@example.com", "acc-1", 10)
	p.generator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(textResponse("I can't draw that."), nil).Once()

	_, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{SessionToken: "jwt-acc-1"},
		Input:    textInput("something"),
		Cost:     2,
	})
	var refusal *RefusalError
	require.True(t, errors.As(err, &refusal))
	assert.Equal(t, "I can't draw that.", refusal.Message)

	bal, _ := p.accounts.balance("acc-1")
	assert.Equal(t, 10, bal)
	p.blobs.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	records := p.records.all()
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].CreditsUsed)
	require.NotNil(t, records[0].ErrorMessage)
	assert.Equal(t, []string{string(KindModelRefusal)}, p.observer.generations)
}

func TestGenerateGuestFirstTouch(t *testing.T) {
	p := newPipeline(t)
	p.generator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(imageResponse("png"), nil)
	p.blobs.On("Upload", mock.Anything, "guests", mock.Anything, mock.Anything).Return("https://cdn/guests/g.png", nil)

	res, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{GuestToken: "guest-abc"},
		Input:    textInput("a lighthouse"),
		Cost:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewCredits)
	assert.Equal(t, 1, p.guests.creates)

	records := p.records.all()
	require.Len(t, records, 1)
	require.NotNil(t, records[0].GuestID)
	assert.Equal(t, "guest-abc", *records[0].GuestID)
	assert.Nil(t, records[0].UserID)
	assert.Equal(t, 1, records[0].CreditsUsed)
}

func TestGenerateSurvivesCallerCancellation(t *testing.T) {
	p := newPipeline(t)
	p.withAccount("a@example.com", "acc-1", 5)
	p.generator.On("GenerateContent", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything, mock.Anything).Return(imageResponse("png"), nil)
	p.blobs.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("https://cdn/users/a.png", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.orch.Generate(ctx, GenerateRequest{
		Evidence: Evidence{SessionToken: "jwt-acc-1"},
		Input:    textInput("a red fox"),
		Cost:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.NewCredits)
}

func TestGenerateRejectsBadInputBeforeResolving(t *testing.T) {
	p := newPipeline(t)

	_, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{GuestToken: "g-1"},
		Input:    textInput("x"),
		Cost:     0,
	})
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{GuestToken: "g-1"},
		Cost:     1,
	})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.Equal(t, 0, p.guests.creates)
}

func TestGenerateExhaustedAttemptsIsGenerationFailed(t *testing.T) {
	p := newPipeline(t)
	p.withAccount("a@example.com", "acc-1", 5)
	p.generator.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(emptyResponse("IMAGE_SAFETY"), nil).Twice()

	_, err := p.orch.Generate(context.Background(), GenerateRequest{
		Evidence: Evidence{SessionToken: "jwt-acc-1"},
		Input:    textInput("x"),
		Cost:     1,
	})
	assert.Equal(t, KindGenerationFailed, KindOf(err))
	p.generator.AssertNumberOfCalls(t, "GenerateContent", 2)

	bal, _ := p.accounts.balance("acc-1")
	assert.Equal(t, 5, bal)
}
