// Package replay parses the 12-column action CSV that drives both the
// plain replay CLI and the execution backtester, and writes the trade
// CSVs produced from it.
package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rishav/lobx/internal/tick"
	"github.com/shopspring/decimal"
)

// Action identifies which matching-engine operation a row drives.
type Action int

const (
	New Action = iota
	Cancel
	Replace
)

// Row is one line of the action CSV, already parsed and validated.
// ArrivalIndex is the row's 0-based position in the source file, used
// as the final tie-break key when sorting by (TsNs, Seq).
type Row struct {
	TsNs         uint64
	Seq          uint64
	ArrivalIndex int
	Action       Action

	OrderID    int32
	Side       tick.Side
	Type       tick.OrderType
	PriceTicks int64
	Quantity   int32
	TIF        tick.TimeInForce

	NewPriceTicks int64
	NewQuantity   int32
}

var expectedHeader = []string{
	"ts_ns", "seq", "action", "order_id", "side", "type",
	"price", "qty", "tif", "new_price", "new_qty", "notes",
}

// ParseActionCSV reads and validates every row of the action CSV at
// path, then returns them sorted ascending by (TsNs, Seq, ArrivalIndex).
// Parse errors are reported as "line N: message", 1-indexed including
// the header line.
func ParseActionCSV(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("CSV file is empty")
		}
		return nil, fmt.Errorf("line 1: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, fmt.Errorf("line 1: %w", err)
	}

	rows := make([]Row, 0)
	lineNo := 1
	arrivalIndex := 0

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		// encoding/csv skips empty lines; take the record's real file line.
		lineNo, _ = reader.FieldPos(0)
		if isBlankRecord(fields) {
			continue
		}

		row, err := parseRow(fields, lineNo, arrivalIndex)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		arrivalIndex++
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TsNs != rows[j].TsNs {
			return rows[i].TsNs < rows[j].TsNs
		}
		if rows[i].Seq != rows[j].Seq {
			return rows[i].Seq < rows[j].Seq
		}
		return rows[i].ArrivalIndex < rows[j].ArrivalIndex
	})

	return rows, nil
}

func isBlankRecord(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func checkHeader(fields []string) error {
	if len(fields) != len(expectedHeader) {
		return fmt.Errorf("invalid header: expected %d columns", len(expectedHeader))
	}
	for i, want := range expectedHeader {
		if strings.TrimSpace(fields[i]) != want {
			return fmt.Errorf("invalid header column %d: expected '%s' but found '%s'", i+1, want, fields[i])
		}
	}
	return nil
}

func parseRow(fields []string, lineNo int, arrivalIndex int) (Row, error) {
	if len(fields) != len(expectedHeader) {
		return Row{}, fmt.Errorf("line %d: expected %d columns, found %d", lineNo, len(expectedHeader), len(fields))
	}

	var row Row
	row.ArrivalIndex = arrivalIndex

	tsNs, err := parseU64(fields[0])
	if err != nil {
		return Row{}, fmt.Errorf("line %d: invalid ts_ns", lineNo)
	}
	row.TsNs = tsNs

	seq, err := parseU64(fields[1])
	if err != nil {
		return Row{}, fmt.Errorf("line %d: invalid seq", lineNo)
	}
	row.Seq = seq

	action, err := parseAction(fields[2])
	if err != nil {
		return Row{}, fmt.Errorf("line %d: invalid action (expected NEW/CANCEL/REPLACE)", lineNo)
	}
	row.Action = action

	orderID, err := parseInt32(fields[3])
	if err != nil || orderID <= 0 {
		return Row{}, fmt.Errorf("line %d: invalid order_id (expected positive integer)", lineNo)
	}
	row.OrderID = orderID

	switch action {
	case New:
		side, err := parseSide(fields[4])
		if err != nil {
			return Row{}, fmt.Errorf("line %d: invalid side (expected BUY/SELL)", lineNo)
		}
		row.Side = side

		orderType, err := parseOrderType(fields[5])
		if err != nil {
			return Row{}, fmt.Errorf("line %d: invalid type (expected LIMIT/MARKET)", lineNo)
		}
		row.Type = orderType

		if orderType == tick.Limit {
			priceTicks, err := parsePriceTicks(fields[6])
			if err != nil || priceTicks <= 0 {
				return Row{}, fmt.Errorf("line %d: invalid price for LIMIT order", lineNo)
			}
			row.PriceTicks = priceTicks
		}

		qty, err := parseInt32(fields[7])
		if err != nil || qty <= 0 {
			return Row{}, fmt.Errorf("line %d: invalid qty (expected positive integer)", lineNo)
		}
		row.Quantity = qty

		tif, err := parseTIF(fields[8])
		if err != nil {
			return Row{}, fmt.Errorf("line %d: invalid tif (expected GTC/IOC)", lineNo)
		}
		row.TIF = tif

	case Cancel:
		// no further fields required

	case Replace:
		newPriceTicks, err := parsePriceTicks(fields[9])
		if err != nil || newPriceTicks <= 0 {
			return Row{}, fmt.Errorf("line %d: invalid new_price for REPLACE", lineNo)
		}
		row.NewPriceTicks = newPriceTicks

		newQty, err := parseInt32(fields[10])
		if err != nil || newQty <= 0 {
			return Row{}, fmt.Errorf("line %d: invalid new_qty for REPLACE", lineNo)
		}
		row.NewQuantity = newQty
	}

	return row, nil
}

func parseU64(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "-") {
		return 0, fmt.Errorf("not a non-negative integer")
	}
	return strconv.ParseUint(value, 10, 64)
}

func parseInt32(value string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

func parsePriceTicks(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty price")
	}
	price, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	return tick.PriceToTicks(price), nil
}

func parseAction(value string) (Action, error) {
	switch strings.TrimSpace(value) {
	case "NEW":
		return New, nil
	case "CANCEL":
		return Cancel, nil
	case "REPLACE":
		return Replace, nil
	default:
		return 0, fmt.Errorf("unknown action")
	}
}

func parseSide(value string) (tick.Side, error) {
	switch strings.TrimSpace(value) {
	case "BUY":
		return tick.Buy, nil
	case "SELL":
		return tick.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side")
	}
}

func parseOrderType(value string) (tick.OrderType, error) {
	switch strings.TrimSpace(value) {
	case "LIMIT":
		return tick.Limit, nil
	case "MARKET":
		return tick.Market, nil
	default:
		return 0, fmt.Errorf("unknown order type")
	}
}

func parseTIF(value string) (tick.TimeInForce, error) {
	switch strings.TrimSpace(value) {
	case "", "GTC":
		return tick.GTC, nil
	case "IOC":
		return tick.IOC, nil
	default:
		return 0, fmt.Errorf("unknown tif")
	}
}
