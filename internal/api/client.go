// Package api is the HTTP client for the POS server endpoints used by the
// offline subsystem.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/auth"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"go.uber.org/zap"
)

const (
	PathLookup        = "/api/barcode/lookup/"
	PathInitialData   = "/api/data/initial/"
	PathHealth        = "/api/health/"
	PathCartAdd       = "/api/cart/add/"
	PathWholesaleCart = "/api/wholesale-cart/add/"

	maxErrorBody = 4 << 10
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL       string
	http          *http.Client
	lookupTimeout time.Duration
	logger        logger.ZapLogger
}

type Option func(*Client)

func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) { c.http = cl }
}

// WithLookupTimeout bounds a single barcode lookup request.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func NewClient(baseURL string, log logger.ZapLogger, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: 30 * time.Second},
		lookupTimeout: 10 * time.Second,
		logger:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperror.Validation(op, "marshal request: %v", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperror.Network(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid := auth.GetUserID(ctx); uid != "" {
		req.Header.Set(auth.HeaderUserID, uid)
	}
	if mid := auth.GetMerchantID(ctx); mid != "" {
		req.Header.Set(auth.HeaderMerchantID, mid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Network(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperror.Timeout(op, err)
	}
	return apperror.Network(op, err)
}

// LookupBarcode resolves a code on the server. A 404 is reported as
// apperror.ErrLookupNotFound; other failures as network or timeout errors.
func (c *Client) LookupBarcode(ctx context.Context, barcode string, mode model.Mode) (*LookupResponse, error) {
	const op = "api.lookup_barcode"
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	var out LookupResponse
	err := c.do(ctx, op, http.MethodPost, PathLookup, LookupRequest{Barcode: barcode, Mode: mode}, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			if se.Code == http.StatusNotFound {
				return nil, apperror.New(op, apperror.KindLookupNotFound, se)
			}
			return nil, apperror.Network(op, se)
		}
		return nil, err
	}
	c.logger.Debug("Barcode lookup answered",
		zap.String("barcode", barcode),
		zap.String("status", out.Status),
		zap.String("lookup_type", out.LookupType),
	)
	return &out, nil
}

func (c *Client) InitialData(ctx context.Context) (*InitialData, error) {
	const op = "api.initial_data"
	var out InitialData
	if err := c.do(ctx, op, http.MethodGet, PathInitialData, nil, &out); err != nil {
		return nil, statusAsNetwork(op, err)
	}
	return &out, nil
}

// PostSync delivers one category batch. Any failure is a sync delivery error.
func (c *Client) PostSync(ctx context.Context, endpoint string, actions []model.PendingAction) error {
	const op = "api.post_sync"
	err := c.do(ctx, op, http.MethodPost, endpoint, SyncRequest{PendingActions: actions}, nil)
	if err != nil {
		return apperror.Delivery(op, fmt.Errorf("%s: %w", endpoint, err))
	}
	return nil
}

func (c *Client) AddToCart(ctx context.Context, mode model.Mode, req CartAddRequest) error {
	const op = "api.add_to_cart"
	path := PathCartAdd
	if mode == model.ModeWholesale {
		path = PathWholesaleCart
	}
	return statusAsNetwork(op, c.do(ctx, op, http.MethodPost, path, req, nil))
}

// Health probes the server; any 2xx counts as reachable.
func (c *Client) Health(ctx context.Context) error {
	const op = "api.health"
	return statusAsNetwork(op, c.do(ctx, op, http.MethodGet, PathHealth, nil, nil))
}

func statusAsNetwork(op string, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		return apperror.Network(op, se)
	}
	return err
}
