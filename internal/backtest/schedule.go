package backtest

import (
	"math"
	"sort"

	"github.com/rishav/lobx/internal/matching"
	"github.com/rishav/lobx/internal/replay"
	"github.com/rishav/lobx/internal/tick"
)

// plannedTWAPSliceQuantity returns slice k's share of total when split
// into `slices` even pieces: the remainder is distributed one unit at a
// time to the earliest slices, so sizes are monotonically non-increasing.
func plannedTWAPSliceQuantity(total int32, slices int, k int) int32 {
	base := total / int32(slices)
	remainder := int(total % int32(slices))
	if k < remainder {
		return base + 1
	}
	return base
}

// buildEvenSchedule lays out `slices` dispatch timestamps evenly across
// the row set's time span. A single slice, or a zero-width span,
// collapses every dispatch time to the first row's timestamp.
func buildEvenSchedule(rows []replay.Row, slices int) []uint64 {
	schedule := make([]uint64, 0, slices)

	startTs := rows[0].TsNs
	endTs := rows[len(rows)-1].TsNs
	span := endTs - startTs

	if slices == 1 || span == 0 {
		for i := 0; i < slices; i++ {
			schedule = append(schedule, startTs)
		}
		return schedule
	}

	for i := 0; i < slices; i++ {
		offset := (span * uint64(i)) / uint64(slices-1)
		schedule = append(schedule, startTs+offset)
	}
	return schedule
}

// bucketIndexForTs maps a timestamp to one of `buckets` equal-width time
// buckets spanning [startTs, endTs], clamping out-of-range timestamps to
// the nearest edge.
func bucketIndexForTs(ts, startTs, endTs uint64, buckets int) int {
	if buckets <= 1 || endTs <= startTs {
		return 0
	}

	bounded := ts
	if bounded < startTs {
		bounded = startTs
	}
	if bounded > endTs {
		bounded = endTs
	}

	span := endTs - startTs
	offset := bounded - startTs
	denominator := span + 1
	numerator := offset * uint64(buckets)
	index := int(numerator / denominator)
	if index >= buckets {
		index = buckets - 1
	}
	return index
}

// buildMarketVolumeProfileByBucket replays rows through a throwaway
// matching engine (isolated from the live backtest engine) and sums
// traded quantity per time bucket, giving the VWAP allocator a picture
// of where in the horizon the market actually traded.
func buildMarketVolumeProfileByBucket(rows []replay.Row, buckets int) []uint64 {
	bucketVolume := make([]uint64, buckets)
	if len(rows) == 0 {
		return bucketVolume
	}

	startTs := rows[0].TsNs
	endTs := rows[len(rows)-1].TsNs

	marketEngine := matching.NewEngine()
	for _, row := range rows {
		var trades []tick.Trade

		switch row.Action {
		case replay.New:
			result := marketEngine.Submit(tick.Order{
				ID: row.OrderID, Side: row.Side, PriceTicks: row.PriceTicks,
				Quantity: row.Quantity, TIF: row.TIF, Type: row.Type,
			})
			trades = result.Trades
		case replay.Cancel:
			marketEngine.Cancel(row.OrderID)
		case replay.Replace:
			result := marketEngine.Replace(row.OrderID, row.NewPriceTicks, row.NewQuantity)
			trades = result.Trades
		}

		if len(trades) == 0 {
			continue
		}

		bucketIdx := bucketIndexForTs(row.TsNs, startTs, endTs, buckets)
		for _, trade := range trades {
			bucketVolume[bucketIdx] += uint64(trade.Quantity)
		}
	}

	return bucketVolume
}

// allocationRemainder tracks one bucket's fractional share while
// distributing VWAP's rounding remainder.
type allocationRemainder struct {
	index    int
	fraction float64
	weight   uint64
}

// allocateVWAPQuantities distributes targetQuantity across buckets in
// proportion to bucketVolume. Each bucket first gets the floor of its
// exact proportional share; the shortfall left by flooring is handed
// out one unit at a time to the buckets with the largest fractional
// remainder, ties broken by larger volume then by earlier index. If no
// market volume was observed at all, falls back to an even TWAP split
// so the backtest still produces a schedule.
func allocateVWAPQuantities(targetQuantity int32, bucketVolume []uint64) []int32 {
	quantities := make([]int32, len(bucketVolume))

	var totalVolume uint64
	for _, v := range bucketVolume {
		totalVolume += v
	}

	if totalVolume == 0 {
		for i := range quantities {
			quantities[i] = plannedTWAPSliceQuantity(targetQuantity, len(quantities), i)
		}
		return quantities
	}

	assigned := int32(0)
	remainders := make([]allocationRemainder, len(bucketVolume))

	for i, v := range bucketVolume {
		exact := float64(targetQuantity) * float64(v) / float64(totalVolume)
		base := int32(math.Floor(exact))
		quantities[i] = base
		assigned += base
		remainders[i] = allocationRemainder{index: i, fraction: exact - float64(base), weight: v}
	}

	remainder := int(targetQuantity - assigned)

	sort.Slice(remainders, func(i, j int) bool {
		if remainders[i].fraction != remainders[j].fraction {
			return remainders[i].fraction > remainders[j].fraction
		}
		if remainders[i].weight != remainders[j].weight {
			return remainders[i].weight > remainders[j].weight
		}
		return remainders[i].index < remainders[j].index
	})

	for i := 0; i < remainder; i++ {
		quantities[remainders[i].index]++
	}

	return quantities
}

// buildSliceQuantities produces the per-slice target quantities for the
// configured strategy: even split for TWAP, volume-proportional
// allocation against a market volume profile for VWAP.
func buildSliceQuantities(rows []replay.Row, config Config) []int32 {
	quantities := make([]int32, config.Slices)

	if config.Strategy == TWAP {
		for i := range quantities {
			quantities[i] = plannedTWAPSliceQuantity(config.TargetQuantity, config.Slices, i)
		}
		return quantities
	}

	volumeProfile := buildMarketVolumeProfileByBucket(rows, config.Slices)
	return allocateVWAPQuantities(config.TargetQuantity, volumeProfile)
}
