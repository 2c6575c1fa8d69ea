package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/GenStudio/internal/models"
)

const generationColumns = `history_id, user_id, guest_id, tool_id, tool_key, prompt, output_images, credits_used,
api_model_used, generation_count, elapsed_ms, error_message, created_at`

type GenerationRepository struct {
	db *sqlx.DB
}

func NewGenerationRepository(db *sqlx.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Insert(ctx context.Context, rec *models.GenerationRecord) error {
	const query = `
INSERT INTO generation_history (history_id, user_id, guest_id, tool_id, tool_key, prompt, output_images,
credits_used, api_model_used, generation_count, elapsed_ms, error_message)
VALUES (:history_id, :user_id, :guest_id, :tool_id, :tool_key, :prompt, :output_images,
:credits_used, :api_model_used, :generation_count, :elapsed_ms, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("insert generation record: %w", err)
	}
	return nil
}

func (r *GenerationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.GenerationRecord, error) {
	query := `SELECT ` + generationColumns + ` FROM generation_history WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	return r.list(ctx, query, userID, limit, offset)
}

func (r *GenerationRepository) ListByGuest(ctx context.Context, guestID string, limit, offset int) ([]models.GenerationRecord, error) {
	query := `SELECT ` + generationColumns + ` FROM generation_history WHERE guest_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	return r.list(ctx, query, guestID, limit, offset)
}

func (r *GenerationRepository) ListRecent(ctx context.Context, limit int) ([]models.GenerationRecord, error) {
	query := `SELECT ` + generationColumns + ` FROM generation_history ORDER BY created_at DESC LIMIT ?`
	return r.list(ctx, query, limit)
}

func (r *GenerationRepository) list(ctx context.Context, query string, args ...any) ([]models.GenerationRecord, error) {
	records := []models.GenerationRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list generation records: %w", err)
	}
	return records, nil
}
