package grid

import (
	"context"
	"time"

	"gridmex/pkg/types"
)

// Gateway is the slice of the venue client the order manager consumes. All
// calls carry a per-request deadline through ctx; a timed-out call counts as
// failed and the next reconciliation pass discovers whether it reached the
// venue.
type Gateway interface {
	GetOpenOrders(ctx context.Context, symbol string) ([]types.RemoteOrder, error)
	GetRecentFilledOrders(ctx context.Context, symbol string) ([]types.RemoteOrder, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side types.Side, price, qty float64) (*types.RemoteOrder, error)
	CancelOrder(ctx context.Context, remoteID string) (*types.RemoteOrder, error)
	CancelAllOrders(ctx context.Context, symbol string) ([]types.RemoteOrder, error)
	GetPosition(ctx context.Context, symbol string) (*types.Position, error)
	GetHistoricalTrades(ctx context.Context, symbol string, lookback time.Duration, limit int) ([]types.Trade, error)
}
