package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type itemRepository struct {
	q querier
}

// NewItemRepository создаёт PostgreSQL-реализацию ItemRepository.
func NewItemRepository(store *Store) domain.ItemRepository {
	return &itemRepository{q: store.DB()}
}

const itemColumns = `id, sku, name, category_id, price_minor, stock_quantity, active, version, created_at, updated_at`

func (r *itemRepository) Create(ctx context.Context, item domain.Item) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO items (
			id, sku, name, category_id, price_minor, stock_quantity, active, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		item.ID, item.SKU, item.Name, item.CategoryID, item.PriceMinor,
		item.StockQuantity, item.Active, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrItemSKUTaken
		}
		return fmt.Errorf("insert item: %w", err)
	}

	return nil
}

func (r *itemRepository) Get(ctx context.Context, id string) (domain.Item, error) {
	return r.getBy(ctx, "id", id)
}

func (r *itemRepository) GetBySKU(ctx context.Context, sku string) (domain.Item, error) {
	return r.getBy(ctx, "sku", sku)
}

func (r *itemRepository) getBy(ctx context.Context, column, value string) (domain.Item, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE `+column+` = $1
	`, value)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, fmt.Errorf("select item by %s: %w", column, err)
	}

	return item, nil
}

func (r *itemRepository) List(ctx context.Context, limit int) ([]domain.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
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
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}

	return items, nil
}

func (r *itemRepository) Save(ctx context.Context, item domain.Item) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE items
		SET sku = $1,
		    name = $2,
		    category_id = $3,
		    price_minor = $4,
		    stock_quantity = $5,
		    active = $6,
		    version = version + 1,
		    updated_at = $7
		WHERE id = $8
		  AND version = $9
	`,
		item.SKU, item.Name, item.CategoryID, item.PriceMinor,
		item.StockQuantity, item.Active, item.UpdatedAt, item.ID, item.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrItemSKUTaken
		}
		return fmt.Errorf("update item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, item.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrItemNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *itemRepository) AdjustStock(ctx context.Context, id string, delta int64) (domain.Item, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE items
		SET stock_quantity = stock_quantity + $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
		  AND stock_quantity + $2 >= 0
	`, id, delta, time.Now().UTC())
	if err != nil {
		return domain.Item{}, fmt.Errorf("adjust stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Item{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, id)
		if err != nil {
			return domain.Item{}, err
		}
		if !exists {
			return domain.Item{}, domain.ErrItemNotFound
		}
		// Строка есть, но остаток ушёл бы в минус.
		return domain.Item{}, domain.ErrInsufficientStock
	}

	return r.Get(ctx, id)
}

func (r *itemRepository) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM items WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check item exists: %w", err)
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(
		&item.ID, &item.SKU, &item.Name, &item.CategoryID, &item.PriceMinor,
		&item.StockQuantity, &item.Active, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.ItemRepository = (*itemRepository)(nil)
