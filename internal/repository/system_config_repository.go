package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/GenStudio/internal/models"
)

const systemConfigColumns = `config_key, config_value, value_type, COALESCE(description, '') AS description, is_public, updated_at`

type SystemConfigRepository struct {
	db *sqlx.DB
}

func NewSystemConfigRepository(db *sqlx.DB) *SystemConfigRepository {
	return &SystemConfigRepository{db: db}
}

func (r *SystemConfigRepository) Get(ctx context.Context, key string) (*models.SystemConfig, error) {
	query := `SELECT ` + systemConfigColumns + ` FROM system_configs WHERE config_key = ?`
	var c models.SystemConfig
	if err := r.db.GetContext(ctx, &c, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get system config: %w", err)
	}
	return &c, nil
}

func (r *SystemConfigRepository) List(ctx context.Context) ([]models.SystemConfig, error) {
	query := `SELECT ` + systemConfigColumns + ` FROM system_configs ORDER BY config_key`
	configs := []models.SystemConfig{}
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list system configs: %w", err)
	}
	return configs, nil
}

func (r *SystemConfigRepository) Upsert(ctx context.Context, c *models.SystemConfig) error {
	const query = `
INSERT INTO system_configs (config_key, config_value, value_type, description, is_public)
VALUES (:config_key, :config_value, :value_type, NULLIF(:description, ''), :is_public)
ON DUPLICATE KEY UPDATE config_value = VALUES(config_value), value_type = VALUES(value_type),
description = VALUES(description), is_public = VALUES(is_public)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("upsert system config: %w", err)
	}
	return nil
}
