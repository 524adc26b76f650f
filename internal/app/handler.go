package app

import (
	"context"

	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/queue"
	"github.com/fekuna/omnipos-offline/internal/scan"
	"github.com/fekuna/omnipos-offline/internal/status"
	"go.uber.org/zap"
)

type onlineChecker interface {
	IsOnline() bool
}

// scanHandler publishes scan outcomes to the status feed and, for codes
// unknown while offline or carrying GS1 data, queues a create_item request.
type scanHandler struct {
	queue  *queue.Queue
	online onlineChecker
	hub    *status.Hub
	logger logger.ZapLogger
}

type scanMessage struct {
	Outcome string `json:"outcome"`
	Code    string `json:"code"`
	Source  string `json:"source,omitempty"`
	ItemID  int64  `json:"item_id,omitempty"`
	Matches int    `json:"matches,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *scanHandler) publish(res scan.Result) {
	msg := scanMessage{Outcome: res.Outcome.String(), Code: res.Code, Source: string(res.Source), Matches: len(res.Matches)}
	if res.Item != nil {
		msg.ItemID = res.Item.ID
	}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}
	h.hub.Publish("scan", msg)
}

func (h *scanHandler) OnResolved(ctx context.Context, res scan.Result)  { h.publish(res) }
func (h *scanHandler) OnAmbiguous(ctx context.Context, res scan.Result) { h.publish(res) }
func (h *scanHandler) OnError(ctx context.Context, res scan.Result)     { h.publish(res) }

func (h *scanHandler) OnNotFound(ctx context.Context, res scan.Result) {
	h.publish(res)
	if !res.CreateSuggested && h.online.IsOnline() {
		return
	}
	_, err := h.queue.Enqueue(ctx, queue.CreateItem{Barcode: res.Code, Mode: res.Mode, GS1: res.GS1})
	if err != nil {
		h.logger.Error("Failed to queue item creation", zap.String("barcode", res.Code), zap.Error(err))
	}
}
