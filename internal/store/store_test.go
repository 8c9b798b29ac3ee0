package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridmex/pkg/types"
)

func sampleDocument() Document {
	return Document{
		ActiveOrders: []types.Order{
			{LocalID: 1, RemoteID: "r-1", Side: types.Buy, Price: 29930, BaseQty: 0.01, ContractQty: 0.01},
			{LocalID: 2, RemoteID: "r-2", Side: types.Sell, Price: 30070, BaseQty: 0.01, ContractQty: 0.01, EntryReferencePrice: 30000},
		},
		CompletedTrades: []types.CompletedTrade{
			{
				Entry:  types.Order{LocalID: 3, Side: types.Sell, Price: 30070, Filled: true},
				Exit:   types.Order{LocalID: 4, Side: types.Buy, Price: 30000, Filled: true},
				Profit: 0.58,
				Fees:   0.12,
			},
		},
		ReferencePrice:   30000,
		CumulativePnL:    0.58,
		TotalTrades:      1,
		WinningTrades:    1,
		CumulativeFees:   0.12,
		CumulativeVolume: 600.7,
		SessionStartTime: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		GridSizing: types.GridSizingConfig{
			CurrentDistance:     70,
			LastATRValue:        46.7,
			TrendDirection:      types.TrendBullish,
			TrendStrength:       0.4,
			AsymmetryFactor:     1.2,
			UpwardGridSpacing:   84,
			DownwardGridSpacing: 58,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	doc := sampleDocument()
	require.NoError(t, st.Save("XBTUSD", doc))

	got, err := st.Load("XBTUSD")
	require.NoError(t, err)

	assert.Equal(t, doc.ActiveOrders, got.ActiveOrders)
	assert.Equal(t, doc.CompletedTrades, got.CompletedTrades)
	assert.Equal(t, doc.ReferencePrice, got.ReferencePrice)
	assert.Equal(t, doc.CumulativePnL, got.CumulativePnL)
	assert.Equal(t, doc.GridSizing, got.GridSizing)
	assert.False(t, got.LastUpdated.IsZero(), "LastUpdated not stamped on save")
}

func TestLoadMissingFileYieldsFreshDocument(t *testing.T) {
	t.Parallel()
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	got, err := st.Load("XBTUSD")
	require.NoError(t, err)

	assert.Empty(t, got.ActiveOrders)
	assert.Zero(t, got.CumulativePnL)
	assert.WithinDuration(t, time.Now(), got.SessionStartTime, 5*time.Second)
}

func TestLoadEmptyFileYieldsFreshDocument(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "state_XBTUSD.json"), nil, 0o600))

	got, err := st.Load("XBTUSD")
	require.NoError(t, err)
	assert.Empty(t, got.ActiveOrders)
}

func TestLoadRefreshesSessionStart(t *testing.T) {
	t.Parallel()
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	doc := sampleDocument()
	require.NoError(t, st.Save("XBTUSD", doc))

	got, err := st.Load("XBTUSD")
	require.NoError(t, err)

	// Statistics survive; the session clock restarts.
	assert.Equal(t, 1, got.TotalTrades)
	assert.WithinDuration(t, time.Now(), got.SessionStartTime, 5*time.Second)
	assert.NotEqual(t, doc.SessionStartTime, got.SessionStartTime)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, st.Save("XBTUSD", sampleDocument()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state_XBTUSD.json", entries[0].Name())
}

func TestLastWriteWins(t *testing.T) {
	t.Parallel()
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	first := sampleDocument()
	require.NoError(t, st.Save("XBTUSD", first))

	second := sampleDocument()
	second.CumulativePnL = 99
	second.ReferencePrice = 31000
	require.NoError(t, st.Save("XBTUSD", second))

	got, err := st.Load("XBTUSD")
	require.NoError(t, err)
	assert.Equal(t, 99.0, got.CumulativePnL)
	assert.Equal(t, 31000.0, got.ReferencePrice)
}
