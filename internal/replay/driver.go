package replay

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/rishav/lobx/internal/matching"
	"github.com/rishav/lobx/internal/tick"
)

// Stats tallies what happened while driving a row set through an engine.
type Stats struct {
	RowsProcessed   int
	AcceptedActions int
	RejectedActions int
	CancelSuccess   int
	CancelNotFound  int
	TradesGenerated int
}

// TradeRecord is one execution observed while replaying, stamped with
// the triggering row's time and sequence for downstream CSV output.
type TradeRecord struct {
	TsNs        uint64
	Seq         uint64
	BuyOrderID  int32
	SellOrderID int32
	PriceTicks  int64
	Quantity    int32
}

// Result is the outcome of driving a full row set through an engine.
type Result struct {
	Stats  Stats
	Trades []TradeRecord
}

// RunFile parses the action CSV at path and drives every row, in sorted
// order, through engine.
func RunFile(path string, engine *matching.Engine) (Result, error) {
	rows, err := ParseActionCSV(path)
	if err != nil {
		return Result{}, err
	}
	return Run(rows, engine), nil
}

// Run drives rows, which must already be sorted by (TsNs, Seq,
// ArrivalIndex), through engine in order.
func Run(rows []Row, engine *matching.Engine) Result {
	var result Result

	for _, row := range rows {
		result.Stats.RowsProcessed++

		switch row.Action {
		case New:
			order := tick.Order{
				ID:         row.OrderID,
				Side:       row.Side,
				PriceTicks: row.PriceTicks,
				Quantity:   row.Quantity,
				TIF:        row.TIF,
				Type:       row.Type,
			}
			sr := engine.Submit(order)
			tallySubmit(&result, row, sr)

		case Cancel:
			if engine.Cancel(row.OrderID) {
				result.Stats.AcceptedActions++
				result.Stats.CancelSuccess++
			} else {
				result.Stats.RejectedActions++
				result.Stats.CancelNotFound++
			}

		case Replace:
			sr := engine.Replace(row.OrderID, row.NewPriceTicks, row.NewQuantity)
			tallySubmit(&result, row, sr)
		}
	}

	return result
}

func tallySubmit(result *Result, row Row, sr matching.SubmitResult) {
	if sr.Accepted {
		result.Stats.AcceptedActions++
	} else {
		result.Stats.RejectedActions++
	}

	result.Stats.TradesGenerated += len(sr.Trades)
	for _, trade := range sr.Trades {
		result.Trades = append(result.Trades, TradeRecord{
			TsNs:        row.TsNs,
			Seq:         row.Seq,
			BuyOrderID:  trade.BuyOrderID,
			SellOrderID: trade.SellOrderID,
			PriceTicks:  trade.PriceTicks,
			Quantity:    trade.Quantity,
		})
	}
}

// WriteTradeCSV writes trades to path as a 7-column CSV:
// ts_ns,seq,buy_order_id,sell_order_id,price_ticks,price,quantity.
func WriteTradeCSV(path string, trades []TradeRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open output CSV for writing: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"ts_ns", "seq", "buy_order_id", "sell_order_id", "price_ticks", "price", "quantity"}); err != nil {
		return fmt.Errorf("failed while writing output CSV: %w", err)
	}

	for _, trade := range trades {
		record := []string{
			fmt.Sprintf("%d", trade.TsNs),
			fmt.Sprintf("%d", trade.Seq),
			fmt.Sprintf("%d", trade.BuyOrderID),
			fmt.Sprintf("%d", trade.SellOrderID),
			fmt.Sprintf("%d", trade.PriceTicks),
			tick.FormatPriceTicks(trade.PriceTicks),
			fmt.Sprintf("%d", trade.Quantity),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed while writing output CSV: %w", err)
		}
	}

	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed while writing output CSV: %w", err)
	}

	return nil
}
