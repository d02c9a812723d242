package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type discountRepository struct {
	q querier
}

// NewDiscountRepository создаёт PostgreSQL-реализацию DiscountRepository.
func NewDiscountRepository(store *Store) domain.DiscountRepository {
	return &discountRepository{q: store.DB()}
}

const discountColumns = `id, scope, scope_id, percent, starts_at, ends_at, active, version, created_at, updated_at`

func (r *discountRepository) Create(ctx context.Context, discount domain.PromotionalDiscount) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO promotional_discounts (
			id, scope, scope_id, percent, starts_at, ends_at, active, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		discount.ID, string(discount.Scope), discount.ScopeID, discount.Percent,
		discount.StartsAt, discount.EndsAt, discount.Active,
		discount.Version, discount.CreatedAt, discount.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert discount: %w", err)
	}

	return nil
}

func (r *discountRepository) Get(ctx context.Context, id string) (domain.PromotionalDiscount, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+discountColumns+`
		FROM promotional_discounts
		WHERE id = $1
	`, id)

	discount, err := scanDiscount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PromotionalDiscount{}, domain.ErrDiscountNotFound
		}
		return domain.PromotionalDiscount{}, fmt.Errorf("select discount: %w", err)
	}

	return discount, nil
}

func (r *discountRepository) ListForItem(ctx context.Context, itemID, categoryID string) ([]domain.PromotionalDiscount, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+discountColumns+`
		FROM promotional_discounts
		WHERE (scope = 'item' AND scope_id = $1)
		   OR (scope = 'category' AND scope_id = $2)
		ORDER BY created_at, id
	`, itemID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list discounts for item: %w", err)
	}
	defer rows.Close()

	return collectDiscounts(rows)
}

func (r *discountRepository) List(ctx context.Context, limit int) ([]domain.PromotionalDiscount, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM promotional_discounts
		ORDER BY created_at, id
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	return collectDiscounts(rows)
}

func (r *discountRepository) Save(ctx context.Context, discount domain.PromotionalDiscount) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE promotional_discounts
		SET scope = $1,
		    scope_id = $2,
		    percent = $3,
		    starts_at = $4,
		    ends_at = $5,
		    active = $6,
		    version = version + 1,
		    updated_at = $7
		WHERE id = $8
		  AND version = $9
	`,
		string(discount.Scope), discount.ScopeID, discount.Percent,
		discount.StartsAt, discount.EndsAt, discount.Active,
		discount.UpdatedAt, discount.ID, discount.Version,
	)
	if err != nil {
		return fmt.Errorf("update discount: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, discount.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrDiscountNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *discountRepository) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM promotional_discounts WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check discount exists: %w", err)
}

func collectDiscounts(rows *sql.Rows) ([]domain.PromotionalDiscount, error) {
	discounts := make([]domain.PromotionalDiscount, 0)
	for rows.Next() {
		discount, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discount row: %w", err)
		}
		discounts = append(discounts, discount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discount rows: %w", err)
	}

	return discounts, nil
}

func scanDiscount(row rowScanner) (domain.PromotionalDiscount, error) {
	var (
		discount domain.PromotionalDiscount
		scope    string
		startsAt sql.NullTime
		endsAt   sql.NullTime
	)

	err := row.Scan(
		&discount.ID, &scope, &discount.ScopeID, &discount.Percent,
		&startsAt, &endsAt, &discount.Active,
		&discount.Version, &discount.CreatedAt, &discount.UpdatedAt,
	)
	if err != nil {
		return domain.PromotionalDiscount{}, err
	}

	discount.Scope = domain.DiscountScope(scope)
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		discount.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time.UTC()
		discount.EndsAt = &t
	}

	return discount, nil
}

var _ domain.DiscountRepository = (*discountRepository)(nil)
