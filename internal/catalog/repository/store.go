package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/catalog"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/store"
)

type storeRepository struct {
	store *store.Store
}

func NewStoreRepository(s *store.Store) catalog.Repository {
	return &storeRepository{store: s}
}

func collectionFor(mode model.Mode) string {
	if mode == model.ModeWholesale {
		return store.WholesaleItems
	}
	return store.Items
}

func (r *storeRepository) ItemByID(ctx context.Context, mode model.Mode, id int64) (*model.CatalogItem, error) {
	return store.One[model.CatalogItem](ctx, r.store, collectionFor(mode), id)
}

func (r *storeRepository) ItemsByBarcode(ctx context.Context, mode model.Mode, code string) ([]model.CatalogItem, error) {
	return store.AllByIndex[model.CatalogItem](ctx, r.store, collectionFor(mode), "barcode", code)
}

// UpsertItem overlays item onto the stored document so fields the local
// model does not know about are preserved.
func (r *storeRepository) UpsertItem(ctx context.Context, mode model.Mode, item *model.CatalogItem) error {
	if item == nil || item.ID == 0 {
		return apperror.Validation("catalog.upsert", "item id is required")
	}
	coll := collectionFor(mode)

	doc := map[string]json.RawMessage{}
	existing, err := r.store.Get(ctx, coll, item.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := json.Unmarshal(existing, &doc); err != nil {
			return fmt.Errorf("decode stored item %d: %w", item.ID, err)
		}
	}

	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		doc[k] = v
	}

	_, err = r.store.Put(ctx, coll, doc)
	return err
}

func (r *storeRepository) CustomBarcode(ctx context.Context, code string) (*model.CustomBarcode, error) {
	return store.One[model.CustomBarcode](ctx, r.store, store.CustomBarcodes, code)
}

func (r *storeRepository) SaveCustomBarcode(ctx context.Context, rec *model.CustomBarcode) error {
	if rec.Code == "" || rec.ItemID == 0 {
		return apperror.Validation("catalog.custom_barcode", "code and item id are required")
	}
	if !rec.Mode.Valid() {
		return apperror.Validation("catalog.custom_barcode", "invalid mode %q", rec.Mode)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := r.store.Put(ctx, store.CustomBarcodes, rec)
	return err
}

func (r *storeRepository) filter(ctx context.Context, mode model.Mode, keep func(*model.CatalogItem) bool) ([]model.CatalogItem, error) {
	items, err := store.All[model.CatalogItem](ctx, r.store, collectionFor(mode))
	if err != nil {
		return nil, err
	}
	out := []model.CatalogItem{}
	for i := range items {
		if keep(&items[i]) {
			out = append(out, items[i])
		}
	}
	return out, nil
}

func (r *storeRepository) LowStock(ctx context.Context, mode model.Mode) ([]model.CatalogItem, error) {
	return r.filter(ctx, mode, func(it *model.CatalogItem) bool {
		return it.LowOnStock()
	})
}

func (r *storeRepository) ExpiringWithin(ctx context.Context, mode model.Mode, days int, now time.Time) ([]model.CatalogItem, error) {
	limit := now.AddDate(0, 0, days)
	return r.filter(ctx, mode, func(it *model.CatalogItem) bool {
		return it.ExpiryDate != nil && !it.ExpiryDate.IsZero() && !it.ExpiryDate.After(limit)
	})
}

func (r *storeRepository) Search(ctx context.Context, mode model.Mode, term string) ([]model.CatalogItem, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []model.CatalogItem{}, nil
	}
	return r.filter(ctx, mode, func(it *model.CatalogItem) bool {
		return strings.Contains(strings.ToLower(it.Name), term) ||
			strings.Contains(strings.ToLower(it.Brand), term)
	})
}
