package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/GenStudio/internal/models"
)

const accountColumns = `user_id, email, COALESCE(display_name, '') AS display_name, role, current_credits,
subscription_type, subscription_expires_at, created_at, updated_at`

type AccountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindIDByEmail returns "" when no account has the email.
func (r *AccountRepository) FindIDByEmail(ctx context.Context, email string) (string, error) {
	const query = `SELECT user_id FROM users WHERE email = ?`
	var id string
	if err := r.db.GetContext(ctx, &id, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find account by email: %w", err)
	}
	return id, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE user_id = ?`
	var a models.Account
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?`
	accounts := []models.Account{}
	if err := r.db.SelectContext(ctx, &accounts, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	const query = `
INSERT INTO users (user_id, email, display_name, role, current_credits, subscription_type, subscription_expires_at)
VALUES (:user_id, :email, NULLIF(:display_name, ''), :role, :current_credits, :subscription_type, :subscription_expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return r.GetByID(ctx, a.ID)
}

// UpdateProfile writes role, display name and subscription fields. Credits are only
// changed through the balance methods.
func (r *AccountRepository) UpdateProfile(ctx context.Context, a *models.Account) error {
	const query = `
UPDATE users SET display_name = NULLIF(:display_name, ''), role = :role, subscription_type = :subscription_type,
subscription_expires_at = :subscription_expires_at, updated_at = NOW()
WHERE user_id = :user_id`
	res, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustCredits adds delta (which may be negative) and returns the new balance, floored at zero.
func (r *AccountRepository) AdjustCredits(ctx context.Context, id string, delta int) (int, error) {
	const query = `
UPDATE users SET current_credits = LAST_INSERT_ID(GREATEST(CAST(current_credits AS SIGNED) + ?, 0)), updated_at = NOW()
WHERE user_id = ?`
	balance, err := applyBalance(ctx, r.db, query, delta, id)
	if err != nil {
		return 0, fmt.Errorf("adjust account credits: %w", err)
	}
	return balance, nil
}

// Debit subtracts amount in one statement, never going below zero, and returns the new balance.
func (r *AccountRepository) Debit(ctx context.Context, id string, amount int) (int, error) {
	balance, err := applyBalance(ctx, r.db, accountDebitQuery, amount, id)
	if err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}
	return balance, nil
}

// DebitAndAppendGallery debits the account and records url in its gallery atomically.
func (r *AccountRepository) DebitAndAppendGallery(ctx context.Context, id string, amount int, url string) (int, error) {
	var balance int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		balance, err = applyBalance(ctx, tx, accountDebitQuery, amount, id)
		if err != nil {
			return fmt.Errorf("debit account: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO account_gallery (user_id, image_url) VALUES (?, ?)`, id, url); err != nil {
			return fmt.Errorf("append account gallery: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *AccountRepository) ListGallery(ctx context.Context, id string, limit int) ([]models.GalleryItem, error) {
	const query = `SELECT image_url, created_at FROM account_gallery WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	items := []models.GalleryItem{}
	if err := r.db.SelectContext(ctx, &items, query, id, limit); err != nil {
		return nil, fmt.Errorf("list account gallery: %w", err)
	}
	return items, nil
}

const accountDebitQuery = `
UPDATE users SET current_credits = LAST_INSERT_ID(GREATEST(CAST(current_credits AS SIGNED) - ?, 0)), updated_at = NOW()
WHERE user_id = ?`
