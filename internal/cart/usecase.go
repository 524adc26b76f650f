package cart

import (
	"context"

	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/shopspring/decimal"
)

type UseCase interface {
	Add(ctx context.Context, mode model.Mode, item *model.CatalogItem, qty int, discount decimal.Decimal) (*model.CartEntry, error)
	Entries(ctx context.Context, mode model.Mode) ([]model.CartEntry, error)
	Total(ctx context.Context, mode model.Mode) (decimal.Decimal, error)
	Remove(ctx context.Context, mode model.Mode, id int64) error
	ClearAfterReceipt(ctx context.Context, mode model.Mode) (int, error)
}
