// Package backtest implements the event-driven execution backtester:
// given a recorded market replay and a target order to work, it
// schedules child slices (TWAP or VWAP), drives them through a private
// matching engine interleaved with the recorded market activity, and
// reports transaction cost analysis (TCA) against an arrival benchmark.
package backtest

import (
	"fmt"
	"math"

	"github.com/rishav/lobx/internal/tick"
)

// Strategy selects how slice quantities are sized.
type Strategy int

const (
	TWAP Strategy = iota
	VWAP
)

func (s Strategy) String() string {
	if s == VWAP {
		return "VWAP"
	}
	return "TWAP"
}

// DefaultFirstChildOrderID is a child order id range far above any
// realistic replay dataset's own order ids, so callers that don't
// control the dataset (e.g. a batch of arbitrary datasets) can avoid
// id collisions without inspecting each file first.
const DefaultFirstChildOrderID int32 = 1000000000

// Config describes one execution backtest run.
type Config struct {
	Side              tick.Side
	TargetQuantity    int32
	Slices            int
	Strategy          Strategy
	FirstChildOrderID int32
}

const int32Max = math.MaxInt32

// validate checks the structural preconditions of Config before a run
// starts, independent of the replay data.
func (c Config) validate() error {
	if c.TargetQuantity <= 0 {
		return fmt.Errorf("target_quantity must be positive")
	}
	if c.Slices <= 0 {
		return fmt.Errorf("slices must be at least 1")
	}
	if int32(c.Slices) > c.TargetQuantity {
		return fmt.Errorf("slices must be less than or equal to target_quantity")
	}
	if c.FirstChildOrderID <= 0 {
		return fmt.Errorf("first_child_order_id must be positive")
	}
	maxOrderID := int64(c.FirstChildOrderID) + int64(c.Slices) - 1
	if maxOrderID > int64(int32Max) {
		return fmt.Errorf("child order id range exceeds int32 max")
	}
	return nil
}
