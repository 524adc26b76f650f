package repository

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-offline/internal/cart"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/store"
)

type storeRepository struct {
	store *store.Store
}

func NewStoreRepository(s *store.Store) cart.Repository {
	return &storeRepository{store: s}
}

func collectionFor(mode model.Mode) string {
	if mode == model.ModeWholesale {
		return store.WholesaleCart
	}
	return store.Cart
}

func (r *storeRepository) Insert(ctx context.Context, entry *model.CartEntry) error {
	key, err := r.store.Put(ctx, collectionFor(entry.Mode), entry)
	if err != nil {
		return err
	}
	id, ok := key.(int64)
	if !ok {
		return fmt.Errorf("unexpected cart key %T", key)
	}
	entry.ID = id
	return nil
}

func (r *storeRepository) ListByUser(ctx context.Context, mode model.Mode, userID string) ([]model.CartEntry, error) {
	return store.AllByIndex[model.CartEntry](ctx, r.store, collectionFor(mode), "user_id", userID)
}

func (r *storeRepository) Delete(ctx context.Context, mode model.Mode, id int64) error {
	return r.store.Delete(ctx, collectionFor(mode), id)
}

func (r *storeRepository) ClearUser(ctx context.Context, mode model.Mode, userID string) (int, error) {
	entries, err := r.ListByUser(ctx, mode, userID)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := r.Delete(ctx, mode, e.ID); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}
