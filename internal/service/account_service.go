package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/GenStudio/internal/models"
	"github.com/digkill/GenStudio/internal/repository"
)

type AccountService struct {
	accounts *repository.AccountRepository
}

type CreateAccountInput struct {
	Email            string
	DisplayName      string
	Role             models.Role
	Credits          int
	SubscriptionType string
}

type UpdateAccountInput struct {
	DisplayName           *string
	Role                  *models.Role
	SubscriptionType      *string
	SubscriptionExpiresAt *time.Time
	ClearSubscription     bool
}

func NewAccountService(accounts *repository.AccountRepository) *AccountService {
	return &AccountService{accounts: accounts}
}

func (s *AccountService) List(ctx context.Context, limit, offset int) ([]models.Account, error) {
	limit, offset = clampPage(limit, offset)
	return s.accounts.List(ctx, limit, offset)
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *AccountService) Create(ctx context.Context, input CreateAccountInput) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidRequest)
	}
	existing, err := s.accounts.FindIDByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, fmt.Errorf("%w: email already registered", ErrInvalidRequest)
	}
	if input.Role == "" {
		input.Role = models.RoleUser
	}
	if !input.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, input.Role)
	}
	if input.Credits < 0 {
		return nil, fmt.Errorf("%w: credits must not be negative", ErrInvalidRequest)
	}
	if input.SubscriptionType == "" {
		input.SubscriptionType = "free"
	}

	return s.accounts.Create(ctx, &models.Account{
		ID:               uuid.NewString(),
		Email:            email,
		DisplayName:      strings.TrimSpace(input.DisplayName),
		Role:             input.Role,
		Credits:          input.Credits,
		SubscriptionType: input.SubscriptionType,
	})
}

func (s *AccountService) Update(ctx context.Context, id string, input UpdateAccountInput) (*models.Account, error) {
	existing, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, repository.ErrNotFound
	}
	if input.DisplayName != nil {
		existing.DisplayName = strings.TrimSpace(*input.DisplayName)
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, *input.Role)
		}
		existing.Role = *input.Role
	}
	if input.SubscriptionType != nil && *input.SubscriptionType != "" {
		existing.SubscriptionType = *input.SubscriptionType
	}
	if input.SubscriptionExpiresAt != nil {
		t := input.SubscriptionExpiresAt.UTC()
		existing.SubscriptionExpiresAt = &t
	}
	if input.ClearSubscription {
		existing.SubscriptionType = "free"
		existing.SubscriptionExpiresAt = nil
	}
	if err := s.accounts.UpdateProfile(ctx, existing); err != nil {
		return nil, err
	}
	return s.accounts.GetByID(ctx, id)
}

// AdjustCredits applies a manual top-up or correction; the balance never drops below zero.
func (s *AccountService) AdjustCredits(ctx context.Context, id string, delta int) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("%w: delta must not be zero", ErrInvalidRequest)
	}
	return s.accounts.AdjustCredits(ctx, id, delta)
}
