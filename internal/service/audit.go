package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/models"
)

const defaultAuditTimeout = 5 * time.Second

type AuditEntry struct {
	RecordID     string
	Identity     Identity
	ToolKey      string
	Prompt       string
	Model        string
	OutputURLs   []string
	CreditsUsed  int
	Elapsed      time.Duration
	ErrorMessage string
}

// AuditLogger writes generation records. Failures are logged and never reach the caller.
type AuditLogger struct {
	records RecordStore
	tools   ToolLookup
	timeout time.Duration
	log     *zap.Logger
}

func NewAuditLogger(records RecordStore, tools ToolLookup, log *zap.Logger) *AuditLogger {
	return &AuditLogger{records: records, tools: tools, timeout: defaultAuditTimeout, log: log.Named("audit")}
}

func (a *AuditLogger) Log(ctx context.Context, e AuditEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	rec := &models.GenerationRecord{
		ID:              e.RecordID,
		Prompt:          e.Prompt,
		OutputImages:    models.StringList(e.OutputURLs),
		CreditsUsed:     e.CreditsUsed,
		Model:           e.Model,
		GenerationCount: 1,
		ElapsedMS:       e.Elapsed.Milliseconds(),
	}
	if rec.OutputImages == nil {
		rec.OutputImages = models.StringList{}
	}
	if e.Identity.IsGuest() {
		rec.GuestID = stringPtr(e.Identity.GuestID)
	} else {
		rec.UserID = stringPtr(e.Identity.AccountID)
	}
	if e.ErrorMessage != "" {
		rec.ErrorMessage = stringPtr(e.ErrorMessage)
	}
	if e.ToolKey != "" {
		rec.ToolKey = stringPtr(e.ToolKey)
		rec.ToolID = a.lookupTool(ctx, e.ToolKey)
	}

	if err := a.records.Insert(ctx, rec); err != nil {
		a.log.Error("write generation record",
			zap.String("record_id", e.RecordID),
			zap.String("owner_kind", e.Identity.Kind()),
			zap.Error(err),
		)
	}
}

func (a *AuditLogger) lookupTool(ctx context.Context, key string) *int64 {
	if a.tools == nil {
		return nil
	}
	tool, err := a.tools.FindByKey(ctx, key)
	if err != nil {
		a.log.Warn("tool lookup failed", zap.String("tool_key", key), zap.Error(err))
		return nil
	}
	if tool == nil {
		return nil
	}
	return &tool.ID
}

func stringPtr(s string) *string {
	return &s
}
