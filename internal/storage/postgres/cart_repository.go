package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct {
	q querier
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{q: store.DB()}
}

const cartLineColumns = `id, user_id, item_id, quantity, version, created_at, updated_at`

func (r *cartRepository) GetLine(ctx context.Context, userID, itemID string) (domain.CartLine, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE user_id = $1
		  AND item_id = $2
	`, userID, itemID)

	line, err := scanCartLine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartLine{}, domain.ErrCartLineNotFound
		}
		return domain.CartLine{}, fmt.Errorf("select cart line: %w", err)
	}

	return line, nil
}

func (r *cartRepository) GetLineByID(ctx context.Context, lineID string) (domain.CartLine, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE id = $1
	`, lineID)

	line, err := scanCartLine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartLine{}, domain.ErrCartLineNotFound
		}
		return domain.CartLine{}, fmt.Errorf("select cart line by id: %w", err)
	}

	return line, nil
}

func (r *cartRepository) ListByUser(ctx context.Context, userID string) ([]domain.CartLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line row: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart line rows: %w", err)
	}

	return lines, nil
}

func (r *cartRepository) Create(ctx context.Context, line domain.CartLine) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_lines (
			id, user_id, item_id, quantity, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		line.ID, line.UserID, line.ItemID, line.Quantity,
		line.Version, line.CreatedAt, line.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Конкурент успел создать позицию для той же пары (user, item);
			// вызывающий повторит попытку и выполнит слияние.
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert cart line: %w", err)
	}

	return nil
}

func (r *cartRepository) Save(ctx context.Context, line domain.CartLine) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE cart_lines
		SET quantity = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
		  AND version = $4
	`,
		line.Quantity, line.UpdatedAt, line.ID, line.Version,
	)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, line.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrCartLineNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *cartRepository) Delete(ctx context.Context, lineID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = $1`, lineID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartLineNotFound
	}

	return nil
}

func (r *cartRepository) DeleteByUser(ctx context.Context, userID string) (int, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(affected), nil
}

func (r *cartRepository) exists(ctx context.Context, lineID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM cart_lines WHERE id = $1`, lineID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check cart line exists: %w", err)
}

func scanCartLine(row rowScanner) (domain.CartLine, error) {
	var line domain.CartLine
	err := row.Scan(
		&line.ID, &line.UserID, &line.ItemID, &line.Quantity,
		&line.Version, &line.CreatedAt, &line.UpdatedAt,
	)
	return line, err
}

var _ domain.CartRepository = (*cartRepository)(nil)
