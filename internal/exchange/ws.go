// ws.go implements the streaming transport for real-time venue data.
//
// One authenticated connection carries three subscriptions for the traded
// symbol: public trade prints, private execution reports, and private order
// lifecycle updates. Frames arrive as {table, action, data[]} envelopes and
// are parsed exactly once into the typed events in pkg/types.
//
// The feed auto-reconnects with capped exponential backoff (initial 1s,
// factor 1.5, jitter plus/minus 1s, cap 30s), re-authenticates and
// re-subscribes on every (re)connection. A read deadline ensures silent
// server failures are detected within ~2 missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridmex/pkg/types"
)

const (
	pingInterval    = 25 * time.Second
	readTimeout     = 60 * time.Second // ~2 missed pings triggers reconnect
	writeTimeout    = 10 * time.Second
	tradeBufferSize = 256
	execBufferSize  = 64

	backoffInitial = time.Second
	backoffFactor  = 1.5
	backoffJitter  = time.Second
	backoffCap     = 30 * time.Second
)

// Feed manages the streaming connection: lifecycle, authentication,
// subscription, message routing, and automatic reconnection.
type Feed struct {
	url    string
	symbol string
	auth   *Auth // nil when running without credentials (dry-run public data)

	conn   *websocket.Conn
	connMu sync.Mutex // protects conn reads/writes

	tradeCh chan types.TradeEvent
	execCh  chan types.ExecutionEvent
	orderCh chan types.OrderUpdateEvent

	// onReconnect is invoked after each successful (re)connection; the
	// supervisor uses it to count reconnects.
	onReconnect func()

	logger *slog.Logger
}

// NewFeed creates a streaming feed for one symbol. auth may be nil, in which
// case only the public trade channel is subscribed.
func NewFeed(wsURL, symbol string, auth *Auth, logger *slog.Logger) *Feed {
	return &Feed{
		url:     wsURL,
		symbol:  symbol,
		auth:    auth,
		tradeCh: make(chan types.TradeEvent, tradeBufferSize),
		execCh:  make(chan types.ExecutionEvent, execBufferSize),
		orderCh: make(chan types.OrderUpdateEvent, execBufferSize),
		logger:  logger.With("component", "ws"),
	}
}

// Trades returns a read-only channel of public trade prints.
func (f *Feed) Trades() <-chan types.TradeEvent { return f.tradeCh }

// Executions returns a read-only channel of private execution reports.
func (f *Feed) Executions() <-chan types.ExecutionEvent { return f.execCh }

// OrderUpdates returns a read-only channel of private order updates.
func (f *Feed) OrderUpdates() <-chan types.OrderUpdateEvent { return f.orderCh }

// OnReconnect registers a callback invoked after each (re)connection.
// Must be called before Run.
func (f *Feed) OnReconnect(fn func()) { f.onReconnect = fn }

// Run connects and maintains the connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := backoffInitial

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := backoff + time.Duration((rand.Float64()*2-1)*float64(backoffJitter))
		if wait < 0 {
			wait = 0
		}

		f.logger.Warn("stream disconnected, reconnecting",
			"error", err,
			"backoff", wait,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
}

// Close gracefully closes the connection.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.authenticate(); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := f.subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("stream connected", "symbol", f.symbol)
	if f.onReconnect != nil {
		f.onReconnect()
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

// authenticate sends the authKeyExpires op. Skipped without credentials.
func (f *Feed) authenticate() error {
	if f.auth == nil {
		return nil
	}
	key, expires, sig := f.auth.WSAuthArgs()
	return f.writeJSON(map[string]any{
		"op":   "authKeyExpires",
		"args": []any{key, expires, sig},
	})
}

// subscribe requests the trade, execution, and order channels for the symbol.
func (f *Feed) subscribe() error {
	topics := []any{"trade:" + f.symbol}
	if f.auth != nil {
		topics = append(topics, "execution:"+f.symbol, "order:"+f.symbol)
	}
	return f.writeJSON(map[string]any{
		"op":   "subscribe",
		"args": topics,
	})
}

// frame is the venue's stream envelope.
type frame struct {
	Table   string          `json:"table"`
	Action  string          `json:"action"`
	Data    json.RawMessage `json:"data"`
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
}

func (f *Feed) dispatchMessage(data []byte) {
	var env frame
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Debug("ignoring non-json stream message", "data", string(data))
		return
	}

	if env.Error != "" {
		f.logger.Error("stream error frame", "error", env.Error)
		return
	}
	if env.Success != nil {
		f.logger.Debug("stream op acknowledged", "success", *env.Success)
		return
	}

	switch env.Table {
	case "trade":
		var rows []types.Trade
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			f.logger.Error("unmarshal trade rows", "error", err)
			return
		}
		for _, row := range rows {
			evt := types.TradeEvent{
				Symbol:    row.Symbol,
				Price:     row.Price,
				Size:      row.Size,
				Side:      row.Side,
				Timestamp: row.Timestamp,
			}
			select {
			case f.tradeCh <- evt:
			default:
				f.logger.Warn("trade channel full, dropping event", "symbol", row.Symbol)
			}
		}

	case "execution":
		var rows []struct {
			ExecID    string    `json:"execID"`
			OrderID   string    `json:"orderID"`
			Symbol    string    `json:"symbol"`
			Side      string    `json:"side"`
			ExecType  string    `json:"execType"`
			LastQty   float64   `json:"lastQty"`
			LastPx    float64   `json:"lastPx"`
			OrdStatus string    `json:"ordStatus"`
			Timestamp time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			f.logger.Error("unmarshal execution rows", "error", err)
			return
		}
		for _, row := range rows {
			evt := types.ExecutionEvent(row)
			select {
			case f.execCh <- evt:
			default:
				f.logger.Warn("execution channel full, dropping event", "order_id", row.OrderID)
			}
		}

	case "order":
		var rows []types.RemoteOrder
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			f.logger.Error("unmarshal order rows", "error", err)
			return
		}
		for _, row := range rows {
			evt := types.OrderUpdateEvent{
				OrderID:   row.OrderID,
				Symbol:    row.Symbol,
				Side:      row.Side,
				Price:     row.Price,
				OrderQty:  row.OrderQty,
				AvgPx:     row.AvgPx,
				OrdStatus: row.OrdStatus,
				Timestamp: row.Timestamp,
			}
			select {
			case f.orderCh <- evt:
			default:
				f.logger.Warn("order channel full, dropping event", "order_id", row.OrderID)
			}
		}

	default:
		f.logger.Debug("ignoring stream table", "table", env.Table, "action", env.Action)
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("ping")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *Feed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *Feed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
