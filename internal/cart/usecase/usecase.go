package usecase

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-offline/internal/api"
	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/auth"
	"github.com/fekuna/omnipos-offline/internal/cart"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/queue"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ServerCart is the server-side cart endpoint.
type ServerCart interface {
	AddToCart(ctx context.Context, mode model.Mode, req api.CartAddRequest) error
}

type OnlineChecker interface {
	IsOnline() bool
}

type cartUseCase struct {
	repo   cart.Repository
	queue  *queue.Queue
	server ServerCart
	online OnlineChecker
	now    func() time.Time
	logger logger.ZapLogger
}

func NewCartUseCase(repo cart.Repository, q *queue.Queue, server ServerCart, online OnlineChecker, log logger.ZapLogger) cart.UseCase {
	return &cartUseCase{
		repo:   repo,
		queue:  q,
		server: server,
		online: online,
		now:    time.Now,
		logger: log,
	}
}

// Add posts the line to the server when online. Offline, or when the server
// call fails, the line is kept locally and an add_to_cart action is queued.
func (uc *cartUseCase) Add(ctx context.Context, mode model.Mode, item *model.CatalogItem, qty int, discount decimal.Decimal) (*model.CartEntry, error) {
	if item == nil || item.ID == 0 {
		return nil, apperror.Validation("cart.add", "item is required")
	}
	if qty <= 0 {
		return nil, apperror.Validation("cart.add", "quantity must be positive, got %d", qty)
	}
	if !mode.Valid() {
		return nil, apperror.Validation("cart.add", "unknown mode %q", mode)
	}

	entry := &model.CartEntry{
		ItemID:         item.ID,
		UserID:         auth.GetUserID(ctx),
		Mode:           mode,
		Name:           item.Name,
		Quantity:       qty,
		Unit:           item.Unit,
		Price:          item.Price,
		DiscountAmount: discount,
		CreatedAt:      uc.now().UTC(),
	}

	if uc.server != nil && uc.online != nil && uc.online.IsOnline() {
		err := uc.server.AddToCart(ctx, mode, api.CartAddRequest{
			ItemID:         item.ID,
			Quantity:       qty,
			Unit:           item.Unit,
			DiscountAmount: discount.String(),
		})
		if err == nil {
			entry.Synced = true
			if err := uc.repo.Insert(ctx, entry); err != nil {
				return nil, err
			}
			return entry, nil
		}
		uc.logger.Warn("Server cart add failed, keeping line offline",
			zap.Int64("item_id", item.ID),
			zap.Error(err),
		)
	}

	entry.OfflineID = uuid.NewString()
	entry.OfflineCreated = true
	if err := uc.repo.Insert(ctx, entry); err != nil {
		return nil, err
	}
	if _, err := uc.queue.Enqueue(ctx, queue.AddToCart{CartEntry: *entry}); err != nil {
		if derr := uc.repo.Delete(ctx, mode, entry.ID); derr != nil {
			uc.logger.Error("Failed to roll back cart line", zap.Int64("cart_id", entry.ID), zap.Error(derr))
		}
		return nil, err
	}

	uc.logger.Info("Cart line stored offline",
		zap.String("offline_id", entry.OfflineID),
		zap.Int64("item_id", item.ID),
		zap.Int("quantity", qty),
	)
	return entry, nil
}

func (uc *cartUseCase) Entries(ctx context.Context, mode model.Mode) ([]model.CartEntry, error) {
	return uc.repo.ListByUser(ctx, mode, auth.GetUserID(ctx))
}

func (uc *cartUseCase) Total(ctx context.Context, mode model.Mode) (decimal.Decimal, error) {
	entries, err := uc.Entries(ctx, mode)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range entries {
		total = total.Add(entries[i].LineTotal())
	}
	return total, nil
}

func (uc *cartUseCase) Remove(ctx context.Context, mode model.Mode, id int64) error {
	return uc.repo.Delete(ctx, mode, id)
}

func (uc *cartUseCase) ClearAfterReceipt(ctx context.Context, mode model.Mode) (int, error) {
	n, err := uc.repo.ClearUser(ctx, mode, auth.GetUserID(ctx))
	if err != nil {
		return 0, err
	}
	uc.logger.Info("Cart cleared", zap.String("mode", string(mode)), zap.Int("lines", n))
	return n, nil
}
