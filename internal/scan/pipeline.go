// Package scan resolves scanned codes into catalog items, trying local
// sources before the server and falling back to the local store offline.
package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-offline/internal/api"
	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/catalog"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultCooldown     = 500 * time.Millisecond
	DefaultCacheTTL     = 30 * time.Second
	DefaultRetryBackoff = 200 * time.Millisecond
)

type Lookup interface {
	LookupBarcode(ctx context.Context, barcode string, mode model.Mode) (*api.LookupResponse, error)
}

type OnlineChecker interface {
	IsOnline() bool
}

// CartAdder receives items when auto-add is enabled.
type CartAdder interface {
	Add(ctx context.Context, mode model.Mode, item *model.CatalogItem, qty int, discount decimal.Decimal) (*model.CartEntry, error)
}

// Handler receives scan outcomes from Scan.
type Handler interface {
	OnResolved(ctx context.Context, res Result)
	OnAmbiguous(ctx context.Context, res Result)
	OnNotFound(ctx context.Context, res Result)
	OnError(ctx context.Context, res Result)
}

type Pipeline struct {
	catalog catalog.Repository
	lookup  Lookup
	online  OnlineChecker
	logger  logger.ZapLogger

	mode      model.Mode
	scannerID string
	prefix    string
	cooldown  time.Duration
	attempts  int
	backoff   time.Duration
	autoAdd   bool
	cache     Cache
	gs1       GS1Parser
	cart      CartAdder
	handler   Handler
	now       func() time.Time

	busy atomic.Bool

	mu       sync.Mutex
	lastCode string
	lastAt   time.Time
}

type Option func(*Pipeline)

func WithMode(m model.Mode) Option {
	return func(p *Pipeline) { p.mode = m }
}

func WithScannerID(id string) Option {
	return func(p *Pipeline) { p.scannerID = id }
}

func WithStructuredPrefix(prefix string) Option {
	return func(p *Pipeline) { p.prefix = prefix }
}

// WithCooldown sets how long a repeated code is ignored.
func WithCooldown(d time.Duration) Option {
	return func(p *Pipeline) { p.cooldown = d }
}

// WithLookupAttempts bounds server lookups per scan; retryable failures
// are retried with a doubling backoff.
func WithLookupAttempts(n int, backoff time.Duration) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.attempts = n
		}
		p.backoff = backoff
	}
}

func WithCache(c Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

func WithGS1Parser(g GS1Parser) Option {
	return func(p *Pipeline) { p.gs1 = g }
}

func WithCart(c CartAdder, autoAdd bool) Option {
	return func(p *Pipeline) {
		p.cart = c
		p.autoAdd = autoAdd
	}
}

func WithHandler(h Handler) Option {
	return func(p *Pipeline) { p.handler = h }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(repo catalog.Repository, lookup Lookup, online OnlineChecker, log logger.ZapLogger, opts ...Option) *Pipeline {
	p := &Pipeline{
		catalog:  repo,
		lookup:   lookup,
		online:   online,
		logger:   log,
		mode:     model.ModeRetail,
		prefix:   DefaultStructuredPrefix,
		cooldown: DefaultCooldown,
		attempts: 1,
		backoff:  DefaultRetryBackoff,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = NewMemoryCache(DefaultCacheTTL, p.now)
	}
	return p
}

func (p *Pipeline) Mode() model.Mode {
	return p.mode
}

// SetMode switches between retail and wholesale lookups.
func (p *Pipeline) SetMode(m model.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = m
}

func (p *Pipeline) currentMode() model.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// admit applies the cooldown and the single-flight guard. The caller must
// release the busy flag when admit returns an empty reason.
func (p *Pipeline) admit(code string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if code == p.lastCode && now.Sub(p.lastAt) < p.cooldown {
		return DropDebounce
	}
	if !p.busy.CompareAndSwap(false, true) {
		return DropBusy
	}
	p.lastCode = code
	p.lastAt = now
	return ""
}

// Resolve turns a scanned code into a Result without side effects on the cart.
func (p *Pipeline) Resolve(ctx context.Context, code string) Result {
	code = strings.TrimSpace(code)
	mode := p.currentMode()
	if code == "" {
		return Result{Outcome: Dropped, Mode: mode, DropReason: DropEmpty}
	}
	if reason := p.admit(code); reason != "" {
		p.logger.Debug("Scan dropped", zap.String("barcode", code), zap.String("reason", reason))
		return Result{Outcome: Dropped, Code: code, Mode: mode, DropReason: reason}
	}
	defer p.busy.Store(false)

	res := p.resolve(ctx, code, mode)
	p.logger.Info("Scan resolved",
		zap.String("barcode", code),
		zap.String("scanner_id", p.scannerID),
		zap.String("outcome", res.Outcome.String()),
		zap.String("source", string(res.Source)),
	)
	return res
}

func (p *Pipeline) resolve(ctx context.Context, code string, mode model.Mode) Result {
	sc, structured := ParseStructured(code, p.prefix)
	structured = structured && sc.Mode == mode

	if structured {
		if item := p.itemByID(ctx, mode, sc.ID); item != nil {
			return p.resolved(ctx, code, mode, item, SourceStructured)
		}
	}

	if item := p.customBarcode(ctx, code, mode); item != nil {
		return p.resolved(ctx, code, mode, item, SourceCustom)
	}

	if item, ok := p.cache.Get(ctx, code); ok {
		return Result{Outcome: Resolved, Code: code, Mode: mode, Item: item, Source: SourceCache}
	}

	var netErr error
	if p.lookup != nil && (p.online == nil || p.online.IsOnline()) {
		resp, err := p.lookupWithRetry(ctx, code, mode)
		switch {
		case err == nil:
			if res, ok := p.fromResponse(ctx, code, mode, resp); ok {
				return res
			}
		case errors.Is(err, apperror.ErrLookupNotFound):
		default:
			netErr = err
			p.logger.Warn("Barcode lookup failed, falling back to local store",
				zap.String("barcode", code),
				zap.Error(err),
			)
		}
	}

	if item := p.fromStore(ctx, code, mode, sc, structured); item != nil {
		return p.resolved(ctx, code, mode, item, SourceStore)
	}

	if netErr != nil {
		return Result{Outcome: Failed, Code: code, Mode: mode, Err: netErr}
	}
	res := Result{Outcome: NotFound, Code: code, Mode: mode}
	if p.gs1 != nil {
		if gs1, ok := p.gs1.Parse(code); ok {
			res.GS1 = gs1
			res.CreateSuggested = true
		}
	}
	return res
}

func (p *Pipeline) lookupWithRetry(ctx context.Context, code string, mode model.Mode) (*api.LookupResponse, error) {
	wait := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		var resp *api.LookupResponse
		resp, err = p.lookup.LookupBarcode(ctx, code, mode)
		if err == nil {
			return resp, nil
		}
		if !apperror.IsRetryable(err) || attempt == p.attempts {
			break
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, apperror.Timeout("scan.lookup", ctx.Err())
		case <-t.C:
		}
		wait *= 2
	}
	return nil, err
}

// fromResponse interprets a server answer. It reports false when the answer
// carries nothing usable and resolution should continue locally.
func (p *Pipeline) fromResponse(ctx context.Context, code string, mode model.Mode, resp *api.LookupResponse) (Result, bool) {
	switch {
	case resp.Item != nil && resp.Status != api.LookupStatusError:
		item := resp.Item
		if resp.ParsedData != nil {
			applyGS1(item, resp.ParsedData)
			if err := p.catalog.UpsertItem(ctx, mode, item); err != nil {
				p.logger.Warn("Failed to store looked-up item", zap.Int64("item_id", item.ID), zap.Error(err))
			}
		}
		return p.resolved(ctx, code, mode, item, SourceNetwork), true

	case len(resp.Matches) > 1:
		return Result{Outcome: Ambiguous, Code: code, Mode: mode, Matches: resp.Matches, GS1: resp.ParsedData}, true

	case len(resp.Matches) == 1:
		return p.resolved(ctx, code, mode, p.itemForMatch(ctx, mode, resp.Matches[0]), SourceNetwork), true

	case resp.ParsedData != nil:
		return Result{Outcome: NotFound, Code: code, Mode: mode, GS1: resp.ParsedData, CreateSuggested: true}, true
	}
	return Result{}, false
}

func applyGS1(item *model.CatalogItem, gs1 *model.GS1Data) {
	if item.GTIN == "" {
		item.GTIN = gs1.GTIN
	}
	if gs1.BatchNumber != "" {
		item.BatchNumber = gs1.BatchNumber
	}
	if gs1.SerialNumber != "" {
		item.SerialNumber = gs1.SerialNumber
	}
	if gs1.ExpiryDate != nil {
		item.ExpiryDate = gs1.ExpiryDate
	}
}

func (p *Pipeline) fromStore(ctx context.Context, code string, mode model.Mode, sc StructuredCode, structured bool) *model.CatalogItem {
	if structured {
		return p.itemByID(ctx, mode, sc.ID)
	}
	items, err := p.catalog.ItemsByBarcode(ctx, mode, code)
	if err != nil {
		p.logger.Error("Local barcode lookup failed", zap.String("barcode", code), zap.Error(err))
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	return &items[0]
}

func (p *Pipeline) itemByID(ctx context.Context, mode model.Mode, id int64) *model.CatalogItem {
	item, err := p.catalog.ItemByID(ctx, mode, id)
	if err != nil {
		p.logger.Error("Local item lookup failed", zap.Int64("item_id", id), zap.Error(err))
		return nil
	}
	return item
}

func (p *Pipeline) customBarcode(ctx context.Context, code string, mode model.Mode) *model.CatalogItem {
	rec, err := p.catalog.CustomBarcode(ctx, code)
	if err != nil {
		p.logger.Error("Custom barcode lookup failed", zap.String("barcode", code), zap.Error(err))
		return nil
	}
	if rec == nil || rec.Mode != mode {
		return nil
	}
	return p.itemByID(ctx, mode, rec.ItemID)
}

func (p *Pipeline) itemForMatch(ctx context.Context, mode model.Mode, m api.Match) *model.CatalogItem {
	if item := p.itemByID(ctx, mode, m.ID); item != nil {
		return item
	}
	return &model.CatalogItem{ID: m.ID, Name: m.Name, Brand: m.Brand, GTIN: m.GTIN}
}

func (p *Pipeline) resolved(ctx context.Context, code string, mode model.Mode, item *model.CatalogItem, src Source) Result {
	p.cache.Set(ctx, code, item)
	return Result{Outcome: Resolved, Code: code, Mode: mode, Item: item, Source: src}
}

// Select resolves an ambiguous result to the candidate at idx.
func (p *Pipeline) Select(ctx context.Context, res Result, idx int) (Result, error) {
	if res.Outcome != Ambiguous {
		return Result{}, apperror.Validation("scan.select", "result for %q is %s, not ambiguous", res.Code, res.Outcome)
	}
	if idx < 0 || idx >= len(res.Matches) {
		return Result{}, apperror.Validation("scan.select", "candidate %d out of range [0,%d)", idx, len(res.Matches))
	}
	item := p.itemForMatch(ctx, res.Mode, res.Matches[idx])
	out := p.resolved(ctx, res.Code, res.Mode, item, SourceSelection)
	p.dispatch(ctx, out)
	return out, nil
}

// ClearLastScan forgets the cooldown state and the recency cache.
func (p *Pipeline) ClearLastScan(ctx context.Context) {
	p.mu.Lock()
	p.lastCode = ""
	p.lastAt = time.Time{}
	p.mu.Unlock()
	p.cache.Clear(ctx)
}

// Scan resolves code, adds resolved items to the cart when auto-add is on,
// and hands the outcome to the handler.
func (p *Pipeline) Scan(ctx context.Context, code string) Result {
	res := p.Resolve(ctx, code)
	p.dispatch(ctx, res)
	return res
}

func (p *Pipeline) dispatch(ctx context.Context, res Result) {
	if res.Outcome == Resolved && p.autoAdd && p.cart != nil {
		if _, err := p.cart.Add(ctx, res.Mode, res.Item, 1, decimal.Zero); err != nil {
			p.logger.Error("Failed to add scanned item to cart", zap.Int64("item_id", res.Item.ID), zap.Error(err))
		}
	}
	if p.handler == nil {
		return
	}
	switch res.Outcome {
	case Resolved:
		p.handler.OnResolved(ctx, res)
	case Ambiguous:
		p.handler.OnAmbiguous(ctx, res)
	case NotFound:
		p.handler.OnNotFound(ctx, res)
	case Failed:
		p.handler.OnError(ctx, res)
	}
}
