package exchange

import (
	"log/slog"
	"os"
	"testing"
)

func testFeed() *Feed {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewFeed("wss://example.invalid/realtime", "XBTUSD", NewAuth("k", "s"), logger)
}

func TestDispatchTradeFrame(t *testing.T) {
	t.Parallel()
	f := testFeed()

	f.dispatchMessage([]byte(`{
		"table": "trade",
		"action": "insert",
		"data": [
			{"timestamp":"2024-05-01T10:00:00.000Z","symbol":"XBTUSD","side":"Buy","size":100,"price":30000.5},
			{"timestamp":"2024-05-01T10:00:01.000Z","symbol":"XBTUSD","side":"Sell","size":50,"price":30000}
		]
	}`))

	select {
	case evt := <-f.Trades():
		if evt.Symbol != "XBTUSD" || evt.Price != 30000.5 || evt.Size != 100 {
			t.Errorf("first trade = %+v", evt)
		}
	default:
		t.Fatal("no trade event dispatched")
	}
	select {
	case evt := <-f.Trades():
		if evt.Price != 30000 {
			t.Errorf("second trade = %+v", evt)
		}
	default:
		t.Fatal("second trade missing")
	}
}

func TestDispatchExecutionFrame(t *testing.T) {
	t.Parallel()
	f := testFeed()

	f.dispatchMessage([]byte(`{
		"table": "execution",
		"action": "insert",
		"data": [{
			"execID": "e-1",
			"orderID": "o-1",
			"symbol": "XBTUSD",
			"side": "Sell",
			"execType": "Trade",
			"lastQty": 300,
			"lastPx": 30070,
			"ordStatus": "Filled",
			"timestamp": "2024-05-01T10:00:00.000Z"
		}]
	}`))

	select {
	case evt := <-f.Executions():
		if evt.OrderID != "o-1" || evt.ExecType != "Trade" || evt.LastPx != 30070 {
			t.Errorf("execution = %+v", evt)
		}
	default:
		t.Fatal("no execution event dispatched")
	}
}

func TestDispatchOrderFrame(t *testing.T) {
	t.Parallel()
	f := testFeed()

	f.dispatchMessage([]byte(`{
		"table": "order",
		"action": "update",
		"data": [{"orderID":"o-2","symbol":"XBTUSD","ordStatus":"Canceled"}]
	}`))

	select {
	case evt := <-f.OrderUpdates():
		if evt.OrderID != "o-2" || evt.OrdStatus != "Canceled" {
			t.Errorf("order update = %+v", evt)
		}
	default:
		t.Fatal("no order event dispatched")
	}
}

func TestDispatchIgnoresUnknownAndControlFrames(t *testing.T) {
	t.Parallel()
	f := testFeed()

	f.dispatchMessage([]byte(`{"success":true,"request":{"op":"subscribe"}}`))
	f.dispatchMessage([]byte(`{"error":"rate limited"}`))
	f.dispatchMessage([]byte(`{"table":"funding","action":"partial","data":[]}`))
	f.dispatchMessage([]byte(`not json`))

	select {
	case evt := <-f.Trades():
		t.Fatalf("unexpected trade event %+v", evt)
	case evt := <-f.Executions():
		t.Fatalf("unexpected execution event %+v", evt)
	case evt := <-f.OrderUpdates():
		t.Fatalf("unexpected order event %+v", evt)
	default:
	}
}
