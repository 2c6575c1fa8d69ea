package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/digkill/GenStudio/internal/models"
	"github.com/digkill/GenStudio/internal/repository"
)

const defaultCurrency = "VND"

type PackageService struct {
	repo *repository.PackageRepository
}

type CreatePackageInput struct {
	Title           string
	Description     string
	Currency        string
	PriceMinorUnits int
	Credits         int
	IsActive        *bool
}

type UpdatePackageInput struct {
	Title           *string
	Description     *string
	Currency        *string
	PriceMinorUnits *int
	Credits         *int
	IsActive        *bool
}

func NewPackageService(repo *repository.PackageRepository) *PackageService {
	return &PackageService{repo: repo}
}

func (s *PackageService) ListActive(ctx context.Context) ([]models.CreditPackage, error) {
	return s.repo.List(ctx, true)
}

func (s *PackageService) List(ctx context.Context) ([]models.CreditPackage, error) {
	return s.repo.List(ctx, false)
}

func (s *PackageService) Create(ctx context.Context, input CreatePackageInput) (*models.CreditPackage, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if input.Currency == "" {
		input.Currency = defaultCurrency
	}
	if input.PriceMinorUnits <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
	}
	if input.Credits <= 0 {
		return nil, fmt.Errorf("%w: credits must be positive", ErrInvalidRequest)
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	return s.repo.Create(ctx, &models.CreditPackage{
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		Currency:        strings.ToUpper(input.Currency),
		PriceMinorUnits: input.PriceMinorUnits,
		Credits:         input.Credits,
		IsActive:        isActive,
	})
}

func (s *PackageService) Update(ctx context.Context, id int64, input UpdatePackageInput) (*models.CreditPackage, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, repository.ErrNotFound
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		existing.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		existing.Description = *input.Description
	}
	if input.Currency != nil && *input.Currency != "" {
		existing.Currency = strings.ToUpper(*input.Currency)
	}
	if input.PriceMinorUnits != nil && *input.PriceMinorUnits > 0 {
		existing.PriceMinorUnits = *input.PriceMinorUnits
	}
	if input.Credits != nil && *input.Credits > 0 {
		existing.Credits = *input.Credits
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	return s.repo.Update(ctx, existing)
}

func (s *PackageService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
