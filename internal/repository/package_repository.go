package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/GenStudio/internal/models"
)

const packageColumns = `id, title, COALESCE(description, '') AS description, currency, price_minor_units, credits, is_active, created_at, updated_at`

type PackageRepository struct {
	db *sqlx.DB
}

func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) List(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM credit_packages`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY price_minor_units ASC, id ASC`
	packages := []models.CreditPackage{}
	if err := r.db.SelectContext(ctx, &packages, query); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return packages, nil
}

func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*models.CreditPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM credit_packages WHERE id = ?`
	var p models.CreditPackage
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get package: %w", err)
	}
	return &p, nil
}

func (r *PackageRepository) Create(ctx context.Context, p *models.CreditPackage) (*models.CreditPackage, error) {
	const query = `
INSERT INTO credit_packages (title, description, currency, price_minor_units, credits, is_active)
VALUES (:title, NULLIF(:description, ''), :currency, :price_minor_units, :credits, :is_active)`
	res, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("package last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *PackageRepository) Update(ctx context.Context, p *models.CreditPackage) (*models.CreditPackage, error) {
	const query = `
UPDATE credit_packages
SET title = :title, description = NULLIF(:description, ''), currency = :currency, price_minor_units = :price_minor_units,
credits = :credits, is_active = :is_active, updated_at = NOW()
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return nil, fmt.Errorf("update package: %w", err)
	}
	return r.GetByID(ctx, p.ID)
}

func (r *PackageRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credit_packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
