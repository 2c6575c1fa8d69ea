package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Stage string

const (
	StageResolving       Stage = "resolving"
	StageCheckingBalance Stage = "checking_balance"
	StageInvoking        Stage = "invoking"
	StagePersisting      Stage = "persisting"
	StageLogging         Stage = "logging"
	StageResponding      Stage = "responding"
)

// PipelineConfig is resolved once at startup and injected.
type PipelineConfig struct {
	RequestTimeout      time.Duration
	GuestDefaultCredits int
}

type GenerateRequest struct {
	Evidence Evidence
	Input    GenerationInput
	Cost     int
	ToolKey  string
}

type GenerateResult struct {
	ImageURL   string
	NewCredits int
	RecordID   string
}

// Orchestrator runs one generation request through resolve, balance check, invoke,
// persist and audit. Every failure is terminal for the request.
type Orchestrator struct {
	resolver  *IdentityResolver
	ledger    *Ledger
	invoker   *Invoker
	persister *ResultPersister
	audit     *AuditLogger
	timeout   time.Duration
	observer  Observer
	log       *zap.Logger
	newID     func() string
}

func NewOrchestrator(cfg PipelineConfig, resolver *IdentityResolver, ledger *Ledger, invoker *Invoker, persister *ResultPersister, audit *AuditLogger, observer Observer, log *zap.Logger) *Orchestrator {
	if observer == nil {
		observer = nopObserver{}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Orchestrator{
		resolver:  resolver,
		ledger:    ledger,
		invoker:   invoker,
		persister: persister,
		audit:     audit,
		timeout:   timeout,
		observer:  observer,
		log:       log.Named("orchestrator"),
		newID:     uuid.NewString,
	}
}

// Generate is detached from the caller's cancellation: once accepted, a request runs to
// completion or to the pipeline timeout even if the client goes away.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	started := time.Now()
	result, stage, err := o.run(ctx, req, started)
	elapsed := time.Since(started)

	if err != nil {
		kind := KindOf(err)
		o.observer.ObserveGeneration(string(kind), elapsed)
		o.log.Info("generation failed",
			zap.String("stage", string(stage)),
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	o.observer.ObserveGeneration("success", elapsed)
	o.log.Info("generation completed",
		zap.String("record_id", result.RecordID),
		zap.Int("new_credits", result.NewCredits),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req GenerateRequest, started time.Time) (*GenerateResult, Stage, error) {
	if req.Cost <= 0 {
		return nil, StageResolving, fmt.Errorf("%w: cost must be positive", ErrInvalidRequest)
	}
	if _, err := BuildRequest(req.Input); err != nil {
		return nil, StageResolving, err
	}

	id, err := o.resolver.Resolve(ctx, req.Evidence)
	if err != nil {
		return nil, StageResolving, err
	}

	balance, err := o.ledger.PeekBalance(ctx, id)
	if err != nil {
		return nil, StageCheckingBalance, err
	}
	if balance < req.Cost {
		return nil, StageCheckingBalance, &InsufficientCreditsError{Current: balance, Required: req.Cost}
	}

	recordID := o.newID()
	entry := AuditEntry{
		RecordID: recordID,
		Identity: id,
		ToolKey:  req.ToolKey,
		Prompt:   PromptText(req.Input.Parts),
		Model:    o.invoker.modelFor(req.Input),
	}

	img, err := o.invoker.Generate(ctx, req.Input)
	if err != nil {
		entry.Elapsed = time.Since(started)
		entry.ErrorMessage = err.Error()
		o.audit.Log(ctx, entry)
		return nil, StageInvoking, err
	}

	persisted, err := o.persister.Persist(ctx, id, img, req.Cost, balance)
	if err != nil {
		entry.Elapsed = time.Since(started)
		entry.ErrorMessage = err.Error()
		o.audit.Log(ctx, entry)
		return nil, StagePersisting, err
	}

	entry.OutputURLs = []string{persisted.URL}
	entry.CreditsUsed = persisted.Debited
	entry.Elapsed = time.Since(started)
	if persisted.BookkeepingErr != nil {
		entry.ErrorMessage = persisted.BookkeepingErr.Error()
	}
	o.audit.Log(ctx, entry)

	return &GenerateResult{
		ImageURL:   persisted.URL,
		NewCredits: persisted.Balance,
		RecordID:   recordID,
	}, StageResponding, nil
}
