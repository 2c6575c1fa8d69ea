package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/models"
	"github.com/digkill/GenStudio/internal/repository"
)

const GuestDefaultCreditsKey = "guest_default_credits"

type SystemConfigService struct {
	repo *repository.SystemConfigRepository
	log  *zap.Logger
}

func NewSystemConfigService(repo *repository.SystemConfigRepository, log *zap.Logger) *SystemConfigService {
	return &SystemConfigService{repo: repo, log: log.Named("system_config")}
}

func (s *SystemConfigService) List(ctx context.Context) ([]models.SystemConfig, error) {
	return s.repo.List(ctx)
}

// Set validates value against valueType before storing it.
func (s *SystemConfigService) Set(ctx context.Context, cfg models.SystemConfig) (*models.SystemConfig, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidRequest)
	}
	if cfg.ValueType == "" {
		cfg.ValueType = models.ConfigString
	}
	if err := validateConfigValue(cfg.ValueType, cfg.Value); err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, &cfg); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, cfg.Key)
}

// GuestDefaultCredits reads the stored seed for new guests, falling back to fallback when
// the key is absent or unusable.
func (s *SystemConfigService) GuestDefaultCredits(ctx context.Context, fallback int) int {
	cfg, err := s.repo.Get(ctx, GuestDefaultCreditsKey)
	if err != nil {
		s.log.Warn("read guest default credits", zap.Error(err))
		return fallback
	}
	if cfg == nil {
		return fallback
	}
	n, err := strconv.Atoi(cfg.Value)
	if err != nil || n < 0 {
		s.log.Warn("invalid guest default credits", zap.String("value", cfg.Value))
		return fallback
	}
	return n
}

func validateConfigValue(t models.ConfigValueType, value string) error {
	switch t {
	case models.ConfigString:
		return nil
	case models.ConfigNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidRequest, value)
		}
	case models.ConfigBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %q is not a boolean", ErrInvalidRequest, value)
		}
	case models.ConfigJSON:
		if !json.Valid([]byte(value)) {
			return fmt.Errorf("%w: value is not valid json", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown value type %q", ErrInvalidRequest, t)
	}
	return nil
}
