package catalog

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-offline/internal/model"
)

type Repository interface {
	ItemByID(ctx context.Context, mode model.Mode, id int64) (*model.CatalogItem, error)
	// ItemsByBarcode returns every item carrying code, in key order.
	ItemsByBarcode(ctx context.Context, mode model.Mode, code string) ([]model.CatalogItem, error)
	UpsertItem(ctx context.Context, mode model.Mode, item *model.CatalogItem) error

	// Custom barcode overrides
	CustomBarcode(ctx context.Context, code string) (*model.CustomBarcode, error)
	SaveCustomBarcode(ctx context.Context, rec *model.CustomBarcode) error

	LowStock(ctx context.Context, mode model.Mode) ([]model.CatalogItem, error)
	ExpiringWithin(ctx context.Context, mode model.Mode, days int, now time.Time) ([]model.CatalogItem, error)
	Search(ctx context.Context, mode model.Mode, term string) ([]model.CatalogItem, error)
}
