package repository_test

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/till/internal/domain"
	"github.com/nikolayk812/till/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/text/currency"
)

type catalogRepositorySuite struct {
	suite.Suite

	repo      *repository.CatalogRepository
	pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// entry point to run the tests in the suite
func TestCatalogRepositorySuite(t *testing.T) {
	suite.Run(t, new(catalogRepositorySuite))
}

// before all tests in the suite
func (suite *catalogRepositorySuite) SetupSuite() {
	ctx := suite.T().Context()

	container, connStr, err := startPostgres(ctx)
	suite.Require().NoError(err)
	suite.container = container

	suite.pool, err = pgxpool.New(ctx, connStr)
	suite.Require().NoError(err)

	suite.repo, err = repository.NewCatalog(suite.pool)
	suite.Require().NoError(err)
}

// after all tests in the suite
func (suite *catalogRepositorySuite) TearDownSuite() {
	if suite.pool != nil {
		suite.pool.Close()
	}
	if suite.container != nil {
		suite.NoError(testcontainers.TerminateContainer(suite.container))
	}
}

func (suite *catalogRepositorySuite) TestLookup() {
	defer suite.deleteAll()

	stored := randomCatalogItem()
	_, err := suite.repo.Upsert(suite.T().Context(), stored)
	suite.Require().NoError(err)

	tests := []struct {
		name      string
		itemID    string
		want      domain.CatalogItem
		wantError error
	}{
		{
			name:   "lookup existing item: ok",
			itemID: stored.ItemID,
			want:   stored,
		},
		{
			name:      "lookup unknown item: not found",
			itemID:    gofakeit.UUID(),
			wantError: domain.ErrItemNotFound,
		},
		{
			name:      "lookup empty item ID: not found",
			itemID:    " ",
			wantError: domain.ErrItemNotFound,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()

			item, err := suite.repo.Lookup(t.Context(), tt.itemID)
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			assertCatalogItem(t, tt.want, item)
		})
	}
}

func (suite *catalogRepositorySuite) TestListAvailable() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	items := []domain.CatalogItem{
		{ItemID: "3", DisplayName: "Cheese", UnitPrice: uah("99.99"), AvailableQuantity: 0},
		{ItemID: "2", DisplayName: "Bread", UnitPrice: uah("4.50"), AvailableQuantity: 3},
		{ItemID: "1", DisplayName: "Apple", UnitPrice: uah("10.50"), AvailableQuantity: 12},
	}
	n, err := suite.repo.Upsert(ctx, items...)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := suite.repo.ListAvailable(ctx)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assertCatalogItem(t, items[2], got[0])
	assertCatalogItem(t, items[1], got[1])

	// out-of-stock items are still addressable by id
	cheese, err := suite.repo.Lookup(ctx, "3")
	require.NoError(t, err)
	assert.Zero(t, cheese.AvailableQuantity)
}

func (suite *catalogRepositorySuite) TestListAvailable_Empty() {
	t := suite.T()

	got, err := suite.repo.ListAvailable(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func (suite *catalogRepositorySuite) TestUpsert() {
	defer suite.deleteAll()

	tests := []struct {
		name      string
		items     []domain.CatalogItem
		wantError string
	}{
		{
			name:  "insert items: ok",
			items: []domain.CatalogItem{randomCatalogItem(), randomCatalogItem()},
		},
		{
			name: "insert zero price: ok",
			items: []domain.CatalogItem{{
				ItemID:            gofakeit.UUID(),
				DisplayName:       gofakeit.ProductName(),
				UnitPrice:         domain.NewMoney(decimal.Zero, domain.UAH),
				AvailableQuantity: 1,
			}},
		},
		{
			name:      "empty item ID: error",
			items:     []domain.CatalogItem{{DisplayName: "x", UnitPrice: uah("1")}},
			wantError: "validateItem[]: itemID is empty",
		},
		{
			name: "negative quantity: error",
			items: []domain.CatalogItem{{
				ItemID: "neg", DisplayName: "x", UnitPrice: uah("1"), AvailableQuantity: -1,
			}},
			wantError: "validateItem[neg]: quantity[-1] is negative",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			n, err := suite.repo.Upsert(ctx, tt.items...)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.items), n)

			for _, want := range tt.items {
				got, err := suite.repo.Lookup(ctx, want.ItemID)
				require.NoError(t, err)
				assertCatalogItem(t, want, got)
			}
		})
	}
}

func (suite *catalogRepositorySuite) TestUpsert_UpdatesExisting() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	item := randomCatalogItem()
	_, err := suite.repo.Upsert(ctx, item)
	require.NoError(t, err)

	item.UnitPrice = uah("123.45")
	item.AvailableQuantity = 0
	_, err = suite.repo.Upsert(ctx, item)
	require.NoError(t, err)

	got, err := suite.repo.Lookup(ctx, item.ItemID)
	require.NoError(t, err)
	assertCatalogItem(t, item, got)
}

func (suite *catalogRepositorySuite) TestUpsert_RollsBackBatch() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	good := randomCatalogItem()
	bad := randomCatalogItem()
	bad.AvailableQuantity = -5

	_, err := suite.repo.Upsert(ctx, good, bad)
	require.Error(t, err)

	_, err = suite.repo.Lookup(ctx, good.ItemID)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func (suite *catalogRepositorySuite) TestWithTx_SharesCallerTransaction() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	tx, err := suite.pool.Begin(ctx)
	require.NoError(t, err)

	item := randomCatalogItem()
	txRepo := repository.NewCatalogWithTx(tx)
	_, err = txRepo.Upsert(ctx, item)
	require.NoError(t, err)

	_, err = txRepo.Lookup(ctx, item.ItemID)
	require.NoError(t, err, "visible inside the transaction")

	_, err = suite.repo.Lookup(ctx, item.ItemID)
	assert.ErrorIs(t, err, domain.ErrItemNotFound, "invisible outside before commit")

	require.NoError(t, tx.Rollback(ctx))

	_, err = suite.repo.Lookup(ctx, item.ItemID)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func (suite *catalogRepositorySuite) TestNewCatalog_NilPool() {
	_, err := repository.NewCatalog(nil)
	suite.EqualError(err, "pool is nil")
}

func (suite *catalogRepositorySuite) deleteAll() {
	_, err := suite.pool.Exec(suite.T().Context(), "TRUNCATE TABLE store_products")
	suite.NoError(err)
}

func randomCatalogItem() domain.CatalogItem {
	return domain.CatalogItem{
		ItemID:            gofakeit.UUID(),
		DisplayName:       gofakeit.ProductName(),
		UnitPrice:         randomMoney(),
		AvailableQuantity: gofakeit.IntRange(1, 50),
	}
}

func randomMoney() domain.Money {
	return domain.Money{
		Amount:   decimal.NewFromFloat(gofakeit.Price(1, 100)).Round(2),
		Currency: randomCurrency(),
	}
}

func randomCurrency() currency.Unit {
	var (
		result currency.Unit
		err    error
	)

	for {
		// tag is not a recognized currency
		result, err = currency.ParseISO(gofakeit.CurrencyShort())
		if err == nil {
			break
		}
	}

	return result
}

func uah(s string) domain.Money {
	return domain.NewMoney(decimal.RequireFromString(s), domain.UAH)
}

func assertCatalogItem(t *testing.T, expected, actual domain.CatalogItem) {
	t.Helper()

	currencyComparer := cmp.Comparer(func(x, y currency.Unit) bool {
		return x.String() == y.String()
	})
	// numeric(13,4) comes back with trailing zeros
	decimalComparer := cmp.Comparer(func(x, y decimal.Decimal) bool {
		return x.Equal(y)
	})

	diff := cmp.Diff(expected, actual, currencyComparer, decimalComparer)
	assert.Empty(t, diff)
}
