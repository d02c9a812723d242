package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type addressRepository struct {
	q querier
}

// NewAddressRepository создаёт PostgreSQL-реализацию AddressRepository.
func NewAddressRepository(store *Store) domain.AddressRepository {
	return &addressRepository{q: store.DB()}
}

const addressColumns = `id, user_id, recipient, line1, line2, city, postal_code, country, is_default, version, created_at, updated_at`

func (r *addressRepository) Create(ctx context.Context, address domain.Address) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO addresses (
			id, user_id, recipient, line1, line2, city, postal_code, country,
			is_default, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		address.ID, address.UserID, address.Recipient, address.Line1, address.Line2,
		address.City, address.PostalCode, address.Country,
		address.IsDefault, address.Version, address.CreatedAt, address.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Частичный уникальный индекс по (user_id) WHERE is_default:
			// гонка за второй default превращается в отклонённую запись.
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert address: %w", err)
	}

	return nil
}

func (r *addressRepository) Get(ctx context.Context, id string) (domain.Address, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+addressColumns+`
		FROM addresses
		WHERE id = $1
	`, id)

	address, err := scanAddress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Address{}, domain.ErrAddressNotFound
		}
		return domain.Address{}, fmt.Errorf("select address: %w", err)
	}

	return address, nil
}

func (r *addressRepository) ListByUser(ctx context.Context, userID string) ([]domain.Address, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+addressColumns+`
		FROM addresses
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses := make([]domain.Address, 0)
	for rows.Next() {
		address, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address row: %w", err)
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate address rows: %w", err)
	}

	return addresses, nil
}

func (r *addressRepository) Save(ctx context.Context, address domain.Address) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE addresses
		SET recipient = $1,
		    line1 = $2,
		    line2 = $3,
		    city = $4,
		    postal_code = $5,
		    country = $6,
		    is_default = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		address.Recipient, address.Line1, address.Line2, address.City,
		address.PostalCode, address.Country, address.IsDefault,
		address.UpdatedAt, address.ID, address.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("update address: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, address.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrAddressNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *addressRepository) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrAddressNotFound
	}

	return nil
}

func (r *addressRepository) ClearDefault(ctx context.Context, userID, exceptID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE addresses
		SET is_default = FALSE,
		    version = version + 1,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND id <> $2
		  AND is_default
	`, userID, exceptID)
	if err != nil {
		return 0, fmt.Errorf("clear default addresses: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return affected, nil
}

func (r *addressRepository) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM addresses WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check address exists: %w", err)
}

func scanAddress(row rowScanner) (domain.Address, error) {
	var address domain.Address
	err := row.Scan(
		&address.ID, &address.UserID, &address.Recipient, &address.Line1, &address.Line2,
		&address.City, &address.PostalCode, &address.Country,
		&address.IsDefault, &address.Version, &address.CreatedAt, &address.UpdatedAt,
	)
	return address, err
}

var _ domain.AddressRepository = (*addressRepository)(nil)
