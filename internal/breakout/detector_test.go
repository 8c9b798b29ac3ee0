package breakout

import (
	"testing"

	"gridmex/internal/config"
	"gridmex/pkg/types"
)

func testBreakoutConfig() config.BreakoutConfig {
	return config.BreakoutConfig{
		Enabled:              true,
		ATRRatioThreshold:    1.8,
		BodyWickThreshold:    0.7,
		VolumeRatioThreshold: 1.5,
	}
}

// quiet is a small-bodied candle used to warm the windows.
func quiet() types.Candle {
	return types.Candle{Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10}
}

func warm(d *Detector, n int) {
	for i := 0; i < n; i++ {
		d.OnCandle(quiet(), 1.0)
	}
}

func TestBreakoutUp(t *testing.T) {
	t.Parallel()
	d := NewDetector(testBreakoutConfig())
	warm(d, 5)

	// Large body, small wick, triple volume, close above the prior highs.
	c := types.Candle{Open: 100, High: 110.5, Low: 99.9, Close: 110, Volume: 30}
	got := d.OnCandle(c, 1.0)

	if !got.IsBreakout {
		t.Fatalf("expected breakout, got %+v", got)
	}
	if got.Direction != Up {
		t.Errorf("direction = %v, want up", got.Direction)
	}
	if !got.BreakingThrough {
		t.Errorf("expected close above prior high")
	}
	if got.Strength <= 0 {
		t.Errorf("strength = %v, want positive", got.Strength)
	}
}

func TestBreakoutDown(t *testing.T) {
	t.Parallel()
	d := NewDetector(testBreakoutConfig())
	warm(d, 5)

	c := types.Candle{Open: 100, High: 100.1, Low: 89.5, Close: 90, Volume: 30}
	got := d.OnCandle(c, 1.0)

	if !got.IsBreakout {
		t.Fatalf("expected breakout, got %+v", got)
	}
	if got.Direction != Down {
		t.Errorf("direction = %v, want down", got.Direction)
	}
}

func TestNoBreakoutWithoutVolume(t *testing.T) {
	t.Parallel()
	d := NewDetector(testBreakoutConfig())
	warm(d, 5)

	// Same geometry as the up breakout but on average volume.
	c := types.Candle{Open: 100, High: 110.5, Low: 99.9, Close: 110, Volume: 10}
	got := d.OnCandle(c, 1.0)

	if got.IsBreakout {
		t.Errorf("breakout fired at volume ratio %v", got.VolumeRatio)
	}
}

func TestNoBreakoutInsideRange(t *testing.T) {
	t.Parallel()
	d := NewDetector(testBreakoutConfig())
	warm(d, 5)

	// Big candle on volume but closing inside the prior range.
	c := types.Candle{Open: 100, High: 101, Low: 97, Close: 100.9, Volume: 30}
	got := d.OnCandle(c, 1.0)

	if got.IsBreakout {
		t.Errorf("breakout fired while closing inside the range")
	}
	if got.BreakingThrough {
		t.Errorf("breakingThrough true while close below prior high")
	}
}

func TestNoBreakoutBeforeWindowFilled(t *testing.T) {
	t.Parallel()
	d := NewDetector(testBreakoutConfig())
	warm(d, 3)

	c := types.Candle{Open: 100, High: 110.5, Low: 99.9, Close: 110, Volume: 30}
	got := d.OnCandle(c, 1.0)

	if got.IsBreakout {
		t.Errorf("breakout fired before the candle window filled")
	}
}

func TestStrengthConfirmationMultiplier(t *testing.T) {
	t.Parallel()

	// Two large candles on the same volume, one closing above the prior
	// highs and one closing inside the range: the confirmed one must score
	// higher.
	mk := func() *Detector {
		d := NewDetector(testBreakoutConfig())
		warm(d, 5)
		return d
	}

	through := mk().OnCandle(types.Candle{Open: 100, High: 110.5, Low: 99.9, Close: 110, Volume: 30}, 1.0)

	d2 := mk()
	inside := d2.OnCandle(types.Candle{Open: 98, High: 100.9, Low: 97.9, Close: 100.8, Volume: 30}, 1.0)

	if !through.BreakingThrough || inside.BreakingThrough {
		t.Fatalf("setup wrong: through=%v inside=%v", through.BreakingThrough, inside.BreakingThrough)
	}
	if through.Strength <= inside.Strength {
		t.Errorf("confirmed strength %v not above unconfirmed %v", through.Strength, inside.Strength)
	}
}
