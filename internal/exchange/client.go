// Package exchange implements the venue REST and streaming clients.
//
// The REST client (Client) covers the order-management surface the engine
// consumes:
//   - GetInstrument / GetActiveInstruments:  GET  /api/v1/instrument
//   - GetOpenOrders / GetRecentFilledOrders: GET  /api/v1/order
//   - PlaceLimitOrder:                       POST /api/v1/order
//   - CancelOrder / CancelAllOrders:         DELETE /api/v1/order[/all]
//   - GetPosition:                           GET  /api/v1/position
//   - GetHistoricalTrades:                   GET  /api/v1/trade
//
// Every request carries a deadline, is rate-limited via per-category
// TokenBuckets, automatically retried on 5xx, and signed with the
// HMAC(verb+path+expires+body) header scheme.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"gridmex/internal/config"
	"gridmex/pkg/types"
)

const apiPrefix = "/api/v1"

// Client is the venue REST API client. It wraps a resty HTTP client with
// rate limiting, retry, and request signing. In dry-run mode mutating
// methods return synthetic acknowledgments without touching the network.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger

	// dryRunSeq feeds synthetic remote order ids in dry-run mode.
	dryRunSeq atomic.Int64
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger.With("component", "exchange"),
	}
}

// GetInstrument fetches metadata for one symbol.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*types.Instrument, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("count", "1")

	var result []types.Instrument
	if err := c.get(ctx, apiPrefix+"/instrument", q, &result); err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("get instrument: %s not found", symbol)
	}
	return &result[0], nil
}

// GetActiveInstruments fetches all instruments currently open for trading.
func (c *Client) GetActiveInstruments(ctx context.Context) ([]types.Instrument, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	var result []types.Instrument
	if err := c.get(ctx, apiPrefix+"/instrument/active", nil, &result); err != nil {
		return nil, fmt.Errorf("get active instruments: %w", err)
	}
	return result, nil
}

// GetOpenOrders fetches all resting orders for the symbol.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]types.RemoteOrder, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("filter", `{"open":true}`)
	q.Set("count", "500")

	var result []types.RemoteOrder
	if err := c.get(ctx, apiPrefix+"/order", q, &result); err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	return result, nil
}

// GetRecentFilledOrders fetches recently filled orders, newest first.
func (c *Client) GetRecentFilledOrders(ctx context.Context, symbol string) ([]types.RemoteOrder, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("filter", `{"ordStatus":"Filled"}`)
	q.Set("reverse", "true")
	q.Set("count", "100")

	var result []types.RemoteOrder
	if err := c.get(ctx, apiPrefix+"/order", q, &result); err != nil {
		return nil, fmt.Errorf("get filled orders: %w", err)
	}
	return result, nil
}

// PlaceLimitOrder submits a post-only limit order and returns the venue's
// acknowledgment.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side types.Side, price, qty float64) (*types.RemoteOrder, error) {
	if c.dryRun {
		ack := &types.RemoteOrder{
			OrderID:   fmt.Sprintf("dry-run-%d", c.dryRunSeq.Add(1)),
			Symbol:    symbol,
			Side:      string(side),
			Price:     price,
			OrderQty:  qty,
			OrdStatus: "New",
			OrdType:   "Limit",
			ExecInst:  "ParticipateDoNotInitiate",
			Timestamp: time.Now().UTC(),
		}
		c.logger.Info("DRY-RUN: would place order", "side", side, "price", price, "qty", qty)
		return ack, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"symbol":   symbol,
		"side":     string(side),
		"ordType":  "Limit",
		"price":    price,
		"orderQty": qty,
		"execInst": "ParticipateDoNotInitiate",
	}

	var result types.RemoteOrder
	if err := c.send(ctx, http.MethodPost, apiPrefix+"/order", payload, &result); err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return &result, nil
}

// CancelOrder cancels a single order by remote id.
func (c *Client) CancelOrder(ctx context.Context, remoteID string) (*types.RemoteOrder, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", remoteID)
		return &types.RemoteOrder{OrderID: remoteID, OrdStatus: "Canceled"}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{"orderID": remoteID}

	var result []types.RemoteOrder
	if err := c.send(ctx, http.MethodDelete, apiPrefix+"/order", payload, &result); err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("cancel order: empty response for %s", remoteID)
	}
	return &result[0], nil
}

// CancelAllOrders cancels every open order for the symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) ([]types.RemoteOrder, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders", "symbol", symbol)
		return nil, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{"symbol": symbol}

	var result []types.RemoteOrder
	if err := c.send(ctx, http.MethodDelete, apiPrefix+"/order/all", payload, &result); err != nil {
		return nil, fmt.Errorf("cancel all orders: %w", err)
	}
	c.logger.Info("cancelled all orders", "symbol", symbol, "count", len(result))
	return result, nil
}

// GetPosition fetches the net position for the symbol. Returns nil when the
// venue reports no position.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("filter", fmt.Sprintf(`{"symbol":%q}`, symbol))

	var result []types.Position
	if err := c.get(ctx, apiPrefix+"/position", q, &result); err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

// GetHistoricalTrades fetches up to limit public trades from the last
// lookback window, oldest first.
func (c *Client) GetHistoricalTrades(ctx context.Context, symbol string, lookback time.Duration, limit int) ([]types.Trade, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("startTime", time.Now().UTC().Add(-lookback).Format(time.RFC3339))
	q.Set("count", strconv.Itoa(limit))

	var result []types.Trade
	if err := c.get(ctx, apiPrefix+"/trade", q, &result); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}
	return result, nil
}

// get issues a signed GET. Query parameters are folded into the signed path.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	fullPath := path
	if len(q) > 0 {
		fullPath += "?" + q.Encode()
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.auth.Headers(http.MethodGet, fullPath, "")).
		SetResult(out).
		Get(fullPath)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// send issues a signed mutating request with a JSON body.
func (c *Client) send(ctx context.Context, verb, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeaders(c.auth.Headers(verb, path, string(body))).
		SetBody(json.RawMessage(body)).
		SetResult(out)

	var resp *resty.Response
	switch verb {
	case http.MethodPost:
		resp, err = req.Post(path)
	case http.MethodDelete:
		resp, err = req.Delete(path)
	default:
		return fmt.Errorf("unsupported verb %s", verb)
	}
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
