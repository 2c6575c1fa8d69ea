package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/GenStudio/internal/models"
)

type ToolRepository struct {
	db *sqlx.DB
}

func NewToolRepository(db *sqlx.DB) *ToolRepository {
	return &ToolRepository{db: db}
}

func (r *ToolRepository) FindByKey(ctx context.Context, key string) (*models.Tool, error) {
	const query = `SELECT tool_id, tool_key, name, base_credit_cost, is_active, created_at FROM tools WHERE tool_key = ?`
	var t models.Tool
	if err := r.db.GetContext(ctx, &t, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find tool: %w", err)
	}
	return &t, nil
}
