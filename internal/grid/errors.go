package grid

import "errors"

// Order-action failures. Each aborts the single operation it occurred in,
// never the engine; callers match with errors.Is.
var (
	// ErrInvalidPrice rejects a non-positive or unroundable price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrDuplicatePricePoint rejects a submission within half a tick of an
	// active unfilled order on the same side.
	ErrDuplicatePricePoint = errors.New("duplicate price point")

	// ErrOrderLimitExceeded rejects a submission past the open-order cap.
	ErrOrderLimitExceeded = errors.New("order limit exceeded")

	// ErrPositionLimitExceeded rejects a submission that would push the net
	// position past its cap, or whose position query failed (conservative).
	ErrPositionLimitExceeded = errors.New("position limit exceeded")
)
