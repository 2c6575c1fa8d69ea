package service

import (
	"errors"
	"fmt"

	"github.com/digkill/GenStudio/internal/gemini"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrBookkeepingFailed   = errors.New("bookkeeping failed")
)

type InsufficientCreditsError struct {
	Current  int
	Required int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.Current, e.Required)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// RefusalError carries the model's own explanation for not producing an image.
type RefusalError struct {
	Message      string
	FinishReason string
}

func (e *RefusalError) Error() string {
	return "model refused: " + e.Message
}

// GenerationFailedError means every attempt ended without an image.
type GenerationFailedError struct {
	Attempts     int
	FinishReason string
	Err          error
}

func (e *GenerationFailedError) Error() string {
	msg := fmt.Sprintf("generation failed after %d attempt(s)", e.Attempts)
	if e.FinishReason != "" {
		msg += ", finish reason " + e.FinishReason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationFailedError) Unwrap() error {
	return e.Err
}

type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return "store result: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type ErrorKind string

const (
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindInsufficientCredits ErrorKind = "INSUFFICIENT_CREDITS"
	KindModelRefusal        ErrorKind = "MODEL_REFUSAL"
	KindGenerationFailed    ErrorKind = "GENERATION_FAILED"
	KindServerBusy          ErrorKind = "SERVER_BUSY"
	KindStorageFailed       ErrorKind = "STORAGE_FAILED"
	KindInvalidRequest      ErrorKind = "INVALID_REQUEST"
	KindInternal            ErrorKind = "INTERNAL"
)

// KindOf maps any pipeline error to the category the caller sees.
func KindOf(err error) ErrorKind {
	var (
		refusal *RefusalError
		failed  *GenerationFailedError
		storage *StorageError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInsufficientCredits):
		return KindInsufficientCredits
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.As(err, &refusal):
		return KindModelRefusal
	case errors.Is(err, gemini.ErrQuotaExceeded):
		return KindServerBusy
	case errors.As(err, &failed):
		return KindGenerationFailed
	case errors.As(err, &storage):
		return KindStorageFailed
	default:
		return KindInternal
	}
}
