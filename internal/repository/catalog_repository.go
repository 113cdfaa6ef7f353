package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/till/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	selectProductColumns = `upc, product_name, selling_price::text, price_currency, products_number`

	lookupProductSQL = `SELECT ` + selectProductColumns + `
FROM store_products
WHERE upc = $1`

	listAvailableSQL = `SELECT ` + selectProductColumns + `
FROM store_products
WHERE products_number > 0
ORDER BY product_name, upc`

	upsertProductSQL = `INSERT INTO store_products (upc, product_name, selling_price, price_currency, products_number)
VALUES ($1, $2, $3::numeric, $4, $5)
ON CONFLICT (upc) DO UPDATE
SET product_name    = EXCLUDED.product_name,
    selling_price   = EXCLUDED.selling_price,
    price_currency  = EXCLUDED.price_currency,
    products_number = EXCLUDED.products_number,
    updated_at      = now()`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CatalogRepository reads store products from Postgres. It implements port.CatalogReader.
type CatalogRepository struct {
	q    querier
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) (*CatalogRepository, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}

	return &CatalogRepository{
		q:    pool,
		pool: pool,
	}, nil
}

func NewCatalogWithTx(tx pgx.Tx) *CatalogRepository {
	return &CatalogRepository{
		q:    tx,
		pool: nil, // use provided transaction instead
	}
}

func (r *CatalogRepository) Lookup(ctx context.Context, itemID string) (domain.CatalogItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CatalogItem{}, fmt.Errorf("itemID is empty: %w", domain.ErrItemNotFound)
	}

	item, err := scanProduct(r.q.QueryRow(ctx, lookupProductSQL, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CatalogItem{}, fmt.Errorf("itemID[%s]: %w", itemID, domain.ErrItemNotFound)
	}
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("q.QueryRow[%s]: %w", itemID, err)
	}

	return item, nil
}

func (r *CatalogRepository) ListAvailable(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := r.q.Query(ctx, listAvailableSQL)
	if err != nil {
		return nil, fmt.Errorf("q.Query: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CatalogItem, error) {
		return scanProduct(row)
	})
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows: %w", err)
	}

	return items, nil
}

// Upsert writes all items in one transaction; a single invalid item rolls back the batch.
func (r *CatalogRepository) Upsert(ctx context.Context, items ...domain.CatalogItem) (int, error) {
	return withTx(ctx, r.pool, r.q, func(q querier) (int, error) {
		for _, item := range items {
			if err := validateItem(item); err != nil {
				return 0, fmt.Errorf("validateItem[%s]: %w", item.ItemID, err)
			}

			_, err := q.Exec(ctx, upsertProductSQL,
				item.ItemID,
				item.DisplayName,
				item.UnitPrice.Amount.String(),
				item.UnitPrice.Currency.String(),
				item.AvailableQuantity,
			)
			if err != nil {
				return 0, fmt.Errorf("q.Exec[%s]: %w", item.ItemID, err)
			}
		}
		return len(items), nil
	})
}

func validateItem(item domain.CatalogItem) error {
	if strings.TrimSpace(item.ItemID) == "" {
		return errors.New("itemID is empty")
	}
	if item.UnitPrice.IsNegative() {
		return fmt.Errorf("price[%s] is negative", item.UnitPrice)
	}
	if item.AvailableQuantity < 0 {
		return fmt.Errorf("quantity[%d] is negative", item.AvailableQuantity)
	}
	return nil
}

func scanProduct(row pgx.Row) (domain.CatalogItem, error) {
	var (
		upc, name, price, cur string
		quantity              int
	)
	if err := row.Scan(&upc, &name, &price, &cur, &quantity); err != nil {
		return domain.CatalogItem{}, err
	}

	return mapProductRowToDomain(upc, name, price, cur, quantity)
}

func mapProductRowToDomain(upc, name, price, cur string, quantity int) (domain.CatalogItem, error) {
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("selling_price[%s] is not valid: %w", price, err)
	}

	parsedCurrency, err := currency.ParseISO(strings.TrimSpace(cur))
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("currency[%s] is not valid: %w", cur, err)
	}

	return domain.CatalogItem{
		ItemID:            upc,
		DisplayName:       name,
		UnitPrice:         domain.NewMoney(amount, parsedCurrency),
		AvailableQuantity: quantity,
	}, nil
}
