package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type couponRepository struct {
	q querier
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{q: store.DB()}
}

const couponColumns = `id, code, percent, max_uses, expires_at, active, version, created_at, updated_at`

func (r *couponRepository) Create(ctx context.Context, coupon domain.Coupon) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO coupons (
			id, code, percent, max_uses, expires_at, active, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		coupon.ID, coupon.Code, coupon.Percent, coupon.MaxUses,
		coupon.ExpiresAt, coupon.Active, coupon.Version,
		coupon.CreatedAt, coupon.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCouponCodeTaken
		}
		return fmt.Errorf("insert coupon: %w", err)
	}

	return nil
}

func (r *couponRepository) Get(ctx context.Context, id string) (domain.Coupon, error) {
	return r.getWhere(ctx, `id = $1`, id, false)
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return r.getWhere(ctx, `code = $1`, code, false)
}

func (r *couponRepository) GetByCodeForUpdate(ctx context.Context, code string) (domain.Coupon, error) {
	// FOR UPDATE удерживает строку купона до конца транзакции и
	// сериализует конкурентные погашения одного кода.
	return r.getWhere(ctx, `code = $1`, code, true)
}

func (r *couponRepository) getWhere(ctx context.Context, cond, arg string, forUpdate bool) (domain.Coupon, error) {
	query := `
		SELECT ` + couponColumns + `
		FROM coupons
		WHERE ` + cond

	if forUpdate {
		query += `
		FOR UPDATE`
	}

	coupon, err := scanCoupon(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}

	return coupon, nil
}

func (r *couponRepository) Save(ctx context.Context, coupon domain.Coupon) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE coupons
		SET code = $1,
		    percent = $2,
		    max_uses = $3,
		    expires_at = $4,
		    active = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		coupon.Code, coupon.Percent, coupon.MaxUses, coupon.ExpiresAt,
		coupon.Active, coupon.UpdatedAt, coupon.ID, coupon.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCouponCodeTaken
		}
		return fmt.Errorf("update coupon: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, coupon.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrCouponNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *couponRepository) CountRedemptions(ctx context.Context, couponID string) (int64, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM coupon_redemptions
		WHERE coupon_id = $1
	`, couponID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}

	return count, nil
}

func (r *couponRepository) AddRedemption(ctx context.Context, redemption domain.CouponRedemption) error {
	if redemption.ID == "" {
		redemption.ID = uuid.NewString()
	}
	if redemption.UsedAt.IsZero() {
		redemption.UsedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (
			id, coupon_id, user_id, used_at
		) VALUES ($1,$2,$3,$4)
	`,
		redemption.ID, redemption.CouponID, redemption.UserID, redemption.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}

	return nil
}

func (r *couponRepository) ListRedemptions(ctx context.Context, couponID string, limit int) ([]domain.CouponRedemption, error) {
	query := `
		SELECT id, coupon_id, user_id, used_at
		FROM coupon_redemptions
		WHERE coupon_id = $1
		ORDER BY used_at, id
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $2", couponID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, couponID)
	}
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	redemptions := make([]domain.CouponRedemption, 0)
	for rows.Next() {
		var redemption domain.CouponRedemption
		if err := rows.Scan(
			&redemption.ID, &redemption.CouponID, &redemption.UserID, &redemption.UsedAt,
		); err != nil {
			return nil, fmt.Errorf("scan redemption row: %w", err)
		}
		redemptions = append(redemptions, redemption)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redemption rows: %w", err)
	}

	return redemptions, nil
}

func (r *couponRepository) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM coupons WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check coupon exists: %w", err)
}

func scanCoupon(row rowScanner) (domain.Coupon, error) {
	var (
		coupon    domain.Coupon
		maxUses   sql.NullInt64
		expiresAt sql.NullTime
	)

	err := row.Scan(
		&coupon.ID, &coupon.Code, &coupon.Percent, &maxUses,
		&expiresAt, &coupon.Active, &coupon.Version,
		&coupon.CreatedAt, &coupon.UpdatedAt,
	)
	if err != nil {
		return domain.Coupon{}, err
	}

	if maxUses.Valid {
		v := maxUses.Int64
		coupon.MaxUses = &v
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		coupon.ExpiresAt = &t
	}

	return coupon, nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
