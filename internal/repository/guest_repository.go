package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/GenStudio/internal/models"
)

type GuestRepository struct {
	db *sqlx.DB
}

func NewGuestRepository(db *sqlx.DB) *GuestRepository {
	return &GuestRepository{db: db}
}

func (r *GuestRepository) Get(ctx context.Context, id string) (*models.GuestSession, error) {
	const query = `SELECT guest_id, credits, last_seen, created_at FROM guest_sessions WHERE guest_id = ?`
	var g models.GuestSession
	if err := r.db.GetContext(ctx, &g, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get guest session: %w", err)
	}
	return &g, nil
}

// GetOrCreate returns the guest session, inserting it with initialCredits on first touch.
// A concurrent first touch that loses the insert race re-reads the winner's row.
func (r *GuestRepository) GetOrCreate(ctx context.Context, id string, initialCredits int) (*models.GuestSession, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	const insert = `INSERT INTO guest_sessions (guest_id, credits) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, insert, id, initialCredits); err != nil {
		if !isDuplicateKey(err) {
			return nil, fmt.Errorf("insert guest session: %w", err)
		}
	}

	created, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("guest session %s vanished after insert", id)
	}
	return created, nil
}

func (r *GuestRepository) Debit(ctx context.Context, id string, amount int) (int, error) {
	balance, err := applyBalance(ctx, r.db, guestDebitQuery, amount, id)
	if err != nil {
		return 0, fmt.Errorf("debit guest: %w", err)
	}
	return balance, nil
}

func (r *GuestRepository) DebitAndAppendGallery(ctx context.Context, id string, amount int, url string) (int, error) {
	var balance int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		balance, err = applyBalance(ctx, tx, guestDebitQuery, amount, id)
		if err != nil {
			return fmt.Errorf("debit guest: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO guest_gallery (guest_id, image_url) VALUES (?, ?)`, id, url); err != nil {
			return fmt.Errorf("append guest gallery: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *GuestRepository) ListGallery(ctx context.Context, id string, limit int) ([]models.GalleryItem, error) {
	const query = `SELECT image_url, created_at FROM guest_gallery WHERE guest_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	items := []models.GalleryItem{}
	if err := r.db.SelectContext(ctx, &items, query, id, limit); err != nil {
		return nil, fmt.Errorf("list guest gallery: %w", err)
	}
	return items, nil
}

const guestDebitQuery = `
UPDATE guest_sessions SET credits = LAST_INSERT_ID(GREATEST(CAST(credits AS SIGNED) - ?, 0)), last_seen = NOW()
WHERE guest_id = ?`
