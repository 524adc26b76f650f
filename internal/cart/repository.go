package cart

import (
	"context"

	"github.com/fekuna/omnipos-offline/internal/model"
)

type Repository interface {
	Insert(ctx context.Context, entry *model.CartEntry) error
	ListByUser(ctx context.Context, mode model.Mode, userID string) ([]model.CartEntry, error)
	Delete(ctx context.Context, mode model.Mode, id int64) error
	// ClearUser removes every entry owned by userID and returns how many went.
	ClearUser(ctx context.Context, mode model.Mode, userID string) (int, error)
}
