package service

import (
	"context"
	"time"

	"github.com/digkill/GenStudio/internal/gemini"
	"github.com/digkill/GenStudio/internal/models"
)

// SessionVerifier validates a session credential and returns the email it was issued for.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type AccountLookup interface {
	FindIDByEmail(ctx context.Context, email string) (string, error)
}

type AccountStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	Debit(ctx context.Context, id string, amount int) (int, error)
	DebitAndAppendGallery(ctx context.Context, id string, amount int, url string) (int, error)
	ListGallery(ctx context.Context, id string, limit int) ([]models.GalleryItem, error)
}

type GuestStore interface {
	GetOrCreate(ctx context.Context, id string, initialCredits int) (*models.GuestSession, error)
	Debit(ctx context.Context, id string, amount int) (int, error)
	DebitAndAppendGallery(ctx context.Context, id string, amount int, url string) (int, error)
	ListGallery(ctx context.Context, id string, limit int) ([]models.GalleryItem, error)
}

type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, req *gemini.Request) (*gemini.Response, error)
}

type BlobStore interface {
	Upload(ctx context.Context, folder string, data []byte, contentType string) (string, error)
}

type RecordStore interface {
	Insert(ctx context.Context, rec *models.GenerationRecord) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.GenerationRecord, error)
	ListByGuest(ctx context.Context, guestID string, limit, offset int) ([]models.GenerationRecord, error)
}

type ToolLookup interface {
	FindByKey(ctx context.Context, key string) (*models.Tool, error)
}

// Alerter notifies operators about conditions that need manual follow-up.
// Alerts sharing a key may be collapsed into one.
type Alerter interface {
	Alert(ctx context.Context, key, message string) error
}

// Observer receives pipeline measurements. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveAttempt(result string)
	ObserveGeneration(kind string, elapsed time.Duration)
	ObserveBookkeepingFailure()
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string)                   {}
func (nopObserver) ObserveGeneration(string, time.Duration) {}
func (nopObserver) ObserveBookkeepingFailure()              {}
