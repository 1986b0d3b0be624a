// Package batch runs a list of execution backtest requests against
// their own replay datasets and reports per-run outcomes plus
// aggregate TWAP-vs-VWAP distribution statistics.
package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rishav/lobx/internal/backtest"
	"github.com/rishav/lobx/internal/tick"
)

// Request is one row of the batch request CSV: a dataset to replay
// plus the execution backtest config to run against it.
type Request struct {
	Dataset  string
	Side     tick.Side
	Quantity int32
	Slices   int
	Strategy backtest.Strategy
}

var expectedHeader = []string{"dataset", "side", "qty", "slices", "strategy"}

// ParseRequestsCSV reads and validates every row of the batch request
// CSV at path. Parse errors are reported as "line N: message",
// 1-indexed including the header line.
func ParseRequestsCSV(path string) ([]Request, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("batch CSV file is empty")
		}
		return nil, fmt.Errorf("line 1: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, fmt.Errorf("line 1: %w", err)
	}

	requests := make([]Request, 0)
	lineNo := 1

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

		request, err := parseRequestRow(fields, lineNo)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}

	if len(requests) == 0 {
		return nil, fmt.Errorf("batch CSV has no request rows")
	}

	return requests, nil
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

func parseRequestRow(fields []string, lineNo int) (Request, error) {
	if len(fields) != len(expectedHeader) {
		return Request{}, fmt.Errorf("line %d: expected %d columns, found %d", lineNo, len(expectedHeader), len(fields))
	}

	dataset := strings.TrimSpace(fields[0])
	if dataset == "" {
		return Request{}, fmt.Errorf("line %d: dataset cannot be empty", lineNo)
	}

	side, err := parseSide(fields[1])
	if err != nil {
		return Request{}, fmt.Errorf("line %d: invalid side (expected BUY/SELL)", lineNo)
	}

	quantity, err := parsePositiveInt(fields[2])
	if err != nil {
		return Request{}, fmt.Errorf("line %d: invalid qty (expected positive integer)", lineNo)
	}

	slices, err := parsePositiveInt(fields[3])
	if err != nil {
		return Request{}, fmt.Errorf("line %d: invalid slices (expected positive integer)", lineNo)
	}

	strategy, err := parseStrategy(fields[4])
	if err != nil {
		return Request{}, fmt.Errorf("line %d: invalid strategy (expected TWAP/VWAP)", lineNo)
	}

	return Request{
		Dataset:  dataset,
		Side:     side,
		Quantity: int32(quantity),
		Slices:   slices,
		Strategy: strategy,
	}, nil
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("not positive")
	}
	return n, nil
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

func parseStrategy(value string) (backtest.Strategy, error) {
	switch strings.TrimSpace(value) {
	case "TWAP":
		return backtest.TWAP, nil
	case "VWAP":
		return backtest.VWAP, nil
	default:
		return 0, fmt.Errorf("unknown strategy")
	}
}
