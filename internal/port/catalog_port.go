package port

import (
	"context"
	"github.com/nikolayk812/till/internal/domain"
)

type CatalogReader interface {
	Lookup(ctx context.Context, itemID string) (domain.CatalogItem, error)
	ListAvailable(ctx context.Context) ([]domain.CatalogItem, error)
}
