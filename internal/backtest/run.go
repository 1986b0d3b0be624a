package backtest

import (
	"fmt"
	"sort"

	"github.com/rishav/lobx/internal/matching"
	"github.com/rishav/lobx/internal/replay"
	"github.com/rishav/lobx/internal/tick"
)

// ChildExecution is one scheduled slice's outcome.
type ChildExecution struct {
	ChildIndex         int
	OrderID            int32
	ScheduledTsNs      uint64
	RequestedQuantity  int32
	Skipped            bool
	Accepted           bool
	RejectReason       tick.RejectReason
	FilledQuantity     int32
	AverageFillPriceTicks int64
	HasAverageFillPrice   bool
}

// TCASummary is the transaction cost analysis for one backtest run.
type TCASummary struct {
	TargetQuantity int32
	FilledQuantity int32
	UnfilledQuantity int32
	FillRate       float64

	ArrivalBenchmarkPriceTicks int64
	HasArrivalBenchmark        bool
	ArrivalBenchmarkName       string

	AverageFillPriceTicks int64
	HasAverageFillPrice   bool

	ImplementationShortfallBps float64
	HasImplementationShortfall bool

	MarketTradedQuantity uint64
	ParticipationRate    float64
}

// Result is the full outcome of one execution backtest run.
type Result struct {
	ReplayStats   replay.Stats
	MarketTrades  []replay.TradeRecord
	ChildOrders   []ChildExecution
	TCA           TCASummary
}

// RunFile parses the action CSV at path and runs the configured
// execution backtest against it.
func RunFile(path string, config Config) (Result, error) {
	rows, err := replay.ParseActionCSV(path)
	if err != nil {
		return Result{}, err
	}
	return Run(rows, config)
}

// Run drives config's strategy against rows, which need not be
// pre-sorted: Run sorts them itself. Returns an error if config fails
// validation or rows is empty.
func Run(rows []replay.Row, config Config) (Result, error) {
	var result Result
	result.TCA.TargetQuantity = config.TargetQuantity

	if err := config.validate(); err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{}, fmt.Errorf("CSV has no replay rows")
	}

	sorted := make([]replay.Row, len(rows))
	copy(sorted, rows)
	sortRows(sorted)

	schedule := buildEvenSchedule(sorted, config.Slices)
	sliceQuantities := buildSliceQuantities(sorted, config)

	engine := matching.NewEngine()
	result.ChildOrders = make([]ChildExecution, 0, config.Slices)

	var totalFilled int32
	var totalNotionalTicks float64
	var marketTradedQuantity uint64
	benchmarkAttempted := false
	nextSliceIndex := 0

	sendDueSlices := func(nowTsNs uint64) {
		for nextSliceIndex < len(schedule) && schedule[nextSliceIndex] <= nowTsNs {
			requestQty := sliceQuantities[nextSliceIndex]
			childOrderID := config.FirstChildOrderID + int32(nextSliceIndex)

			child := ChildExecution{
				ChildIndex:        nextSliceIndex + 1,
				OrderID:           childOrderID,
				ScheduledTsNs:     schedule[nextSliceIndex],
				RequestedQuantity: requestQty,
			}

			if !benchmarkAttempted {
				benchmarkAttempted = true
				if priceTicks, name, ok := captureArrivalBenchmark(engine, config.Side); ok {
					result.TCA.ArrivalBenchmarkPriceTicks = priceTicks
					result.TCA.HasArrivalBenchmark = true
					result.TCA.ArrivalBenchmarkName = name
				} else {
					result.TCA.ArrivalBenchmarkName = name
				}
			}

			if requestQty <= 0 {
				child.Skipped = true
				child.Accepted = true
				child.RejectReason = tick.RejectNone
				result.ChildOrders = append(result.ChildOrders, child)
				nextSliceIndex++
				continue
			}

			sr := engine.Submit(tick.Order{
				ID: childOrderID, Side: config.Side, Quantity: requestQty,
				TIF: tick.IOC, Type: tick.Market,
			})
			child.Accepted = sr.Accepted
			child.RejectReason = sr.RejectReason

			child.FilledQuantity = fillQuantityFromChildTrades(sr.Trades, config.Side, childOrderID)
			if avg, ok := averageFillPriceFromChildTrades(sr.Trades, config.Side, childOrderID); ok {
				child.AverageFillPriceTicks = avg
				child.HasAverageFillPrice = true
			}

			if child.FilledQuantity > 0 {
				totalFilled += child.FilledQuantity
				for _, trade := range sr.Trades {
					if tradeInvolves(trade, config.Side, childOrderID) {
						totalNotionalTicks += float64(trade.PriceTicks) * float64(trade.Quantity)
					}
				}
			}

			result.ChildOrders = append(result.ChildOrders, child)
			nextSliceIndex++
		}
	}

	for _, row := range sorted {
		result.ReplayStats.RowsProcessed++

		switch row.Action {
		case replay.New:
			sr := engine.Submit(tick.Order{
				ID: row.OrderID, Side: row.Side, PriceTicks: row.PriceTicks,
				Quantity: row.Quantity, TIF: row.TIF, Type: row.Type,
			})
			tallyReplayAction(&result, sr.Accepted)
			appendMarketTrades(row, sr.Trades, &result, &marketTradedQuantity)

		case replay.Cancel:
			if engine.Cancel(row.OrderID) {
				result.ReplayStats.AcceptedActions++
				result.ReplayStats.CancelSuccess++
			} else {
				result.ReplayStats.RejectedActions++
				result.ReplayStats.CancelNotFound++
			}

		case replay.Replace:
			sr := engine.Replace(row.OrderID, row.NewPriceTicks, row.NewQuantity)
			tallyReplayAction(&result, sr.Accepted)
			appendMarketTrades(row, sr.Trades, &result, &marketTradedQuantity)
		}

		sendDueSlices(row.TsNs)
	}

	for nextSliceIndex < len(schedule) {
		sendDueSlices(schedule[nextSliceIndex])
	}

	updateTCASummary(config, totalFilled, totalNotionalTicks, marketTradedQuantity, &result)
	return result, nil
}

func sortRows(rows []replay.Row) {
	// rows arrive already validated by ParseActionCSV; Run accepts a raw
	// slice too (e.g. from a hand-built test fixture), so sort defensively.
	sort.SliceStable(rows, func(i, j int) bool { return rowLess(rows[i], rows[j]) })
}

func rowLess(a, b replay.Row) bool {
	if a.TsNs != b.TsNs {
		return a.TsNs < b.TsNs
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ArrivalIndex < b.ArrivalIndex
}

func tallyReplayAction(result *Result, accepted bool) {
	if accepted {
		result.ReplayStats.AcceptedActions++
	} else {
		result.ReplayStats.RejectedActions++
	}
}

func appendMarketTrades(row replay.Row, trades []tick.Trade, result *Result, marketTradedQuantity *uint64) {
	result.ReplayStats.TradesGenerated += len(trades)
	for _, trade := range trades {
		result.MarketTrades = append(result.MarketTrades, replay.TradeRecord{
			TsNs: row.TsNs, Seq: row.Seq,
			BuyOrderID: trade.BuyOrderID, SellOrderID: trade.SellOrderID,
			PriceTicks: trade.PriceTicks, Quantity: trade.Quantity,
		})
		*marketTradedQuantity += uint64(trade.Quantity)
	}
}

// captureArrivalBenchmark picks the reference price for implementation
// shortfall at the moment the first child is about to be dispatched:
// the mid if both sides are quoted, else the best price on the side the
// child order would cross, else UNAVAILABLE.
func captureArrivalBenchmark(engine *matching.Engine, side tick.Side) (int64, string, bool) {
	top := engine.TopOfBook()

	if top.BestBid != nil && top.BestAsk != nil {
		return (top.BestBid.PriceTicks + top.BestAsk.PriceTicks) / 2, "MID", true
	}
	if side == tick.Buy && top.BestAsk != nil {
		return top.BestAsk.PriceTicks, "BEST_ASK", true
	}
	if side == tick.Sell && top.BestBid != nil {
		return top.BestBid.PriceTicks, "BEST_BID", true
	}

	return 0, "UNAVAILABLE", false
}

func tradeInvolves(trade tick.Trade, side tick.Side, childOrderID int32) bool {
	if side == tick.Buy {
		return trade.BuyOrderID == childOrderID
	}
	return trade.SellOrderID == childOrderID
}

func fillQuantityFromChildTrades(trades []tick.Trade, side tick.Side, childOrderID int32) int32 {
	var filled int32
	for _, trade := range trades {
		if tradeInvolves(trade, side, childOrderID) {
			filled += trade.Quantity
		}
	}
	return filled
}

func averageFillPriceFromChildTrades(trades []tick.Trade, side tick.Side, childOrderID int32) (int64, bool) {
	var filledQuantity int32
	var notionalTicks float64

	for _, trade := range trades {
		if !tradeInvolves(trade, side, childOrderID) {
			continue
		}
		filledQuantity += trade.Quantity
		notionalTicks += float64(trade.PriceTicks) * float64(trade.Quantity)
	}

	if filledQuantity == 0 {
		return 0, false
	}
	return roundHalfAwayFromZero(notionalTicks / float64(filledQuantity)), true
}

func updateTCASummary(config Config, totalFilled int32, totalNotionalTicks float64, marketTradedQuantity uint64, result *Result) {
	result.TCA.FilledQuantity = totalFilled
	result.TCA.UnfilledQuantity = config.TargetQuantity - totalFilled
	result.TCA.FillRate = float64(totalFilled) / float64(config.TargetQuantity)

	if totalFilled > 0 {
		result.TCA.AverageFillPriceTicks = roundHalfAwayFromZero(totalNotionalTicks / float64(totalFilled))
		result.TCA.HasAverageFillPrice = true
	}

	if result.TCA.HasAverageFillPrice && result.TCA.HasArrivalBenchmark {
		averageFill := float64(result.TCA.AverageFillPriceTicks)
		benchmark := float64(result.TCA.ArrivalBenchmarkPriceTicks)

		if benchmark > 0 {
			var shortfall float64
			if config.Side == tick.Buy {
				shortfall = (averageFill - benchmark) / benchmark
			} else {
				shortfall = (benchmark - averageFill) / benchmark
			}
			result.TCA.ImplementationShortfallBps = shortfall * 10000.0
			result.TCA.HasImplementationShortfall = true
		}
	}

	result.TCA.MarketTradedQuantity = marketTradedQuantity
	if marketTradedQuantity > 0 {
		result.TCA.ParticipationRate = float64(totalFilled) / float64(marketTradedQuantity)
	}
}

func roundHalfAwayFromZero(x float64) int64 {
	if x >= 0 {
		return int64(x + 0.5)
	}
	return int64(x - 0.5)
}
