package batch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rishav/lobx/internal/backtest"
	"github.com/rishav/lobx/internal/tick"
)

// Stats tallies how many requests in a batch succeeded or failed.
type Stats struct {
	Requests   int
	Successful int
	Failed     int
}

// Run is one request's outcome: either a populated backtest.Result, or
// an error string if the dataset failed to load or the config was
// rejected.
type Run struct {
	RunID   int
	Request Request
	Success bool
	Error   string
	Result  backtest.Result
}

// RunAll runs every request against its own dataset, in order,
// assigning 1-based run ids. A single request's failure does not stop
// the rest of the batch.
func RunAll(requests []Request) ([]Run, Stats) {
	runs := make([]Run, 0, len(requests))
	var stats Stats
	stats.Requests = len(requests)

	for i, request := range requests {
		config := backtest.Config{
			Side:              request.Side,
			TargetQuantity:    request.Quantity,
			Slices:            request.Slices,
			Strategy:          request.Strategy,
			FirstChildOrderID: backtest.DefaultFirstChildOrderID,
		}

		run := Run{RunID: i + 1, Request: request}

		result, err := backtest.RunFile(request.Dataset, config)
		if err != nil {
			run.Error = err.Error()
		} else {
			run.Success = true
			run.Result = result
		}

		if run.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}

		runs = append(runs, run)
	}

	return runs, stats
}

// RunFile parses the batch request CSV at requestsPath, runs every
// request, and writes the per-run and summary CSVs.
func RunFile(requestsPath, runsOutputPath, summaryOutputPath string) (Stats, error) {
	requests, err := ParseRequestsCSV(requestsPath)
	if err != nil {
		return Stats{}, err
	}

	runs, stats := RunAll(requests)

	if err := WriteRunsCSV(runsOutputPath, runs); err != nil {
		return Stats{}, err
	}
	if err := WriteSummaryCSV(summaryOutputPath, runs); err != nil {
		return Stats{}, err
	}

	return stats, nil
}

var runsHeader = []string{
	"run_id", "dataset", "side", "qty", "slices", "strategy", "status", "error",
	"filled_qty", "target_qty", "fill_rate", "avg_fill_price",
	"arrival_benchmark_name", "arrival_benchmark_price", "shortfall_bps", "participation_rate",
	"replay_rows", "replay_trades",
}

// WriteRunsCSV writes one row per batch run, with empty outcome
// columns for requests that failed to run.
func WriteRunsCSV(path string, runs []Run) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open runs output CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(runsHeader); err != nil {
		return err
	}

	for _, run := range runs {
		record := []string{
			strconv.Itoa(run.RunID),
			run.Request.Dataset,
			run.Request.Side.String(),
			strconv.Itoa(int(run.Request.Quantity)),
			strconv.Itoa(run.Request.Slices),
			run.Request.Strategy.String(),
			statusString(run.Success),
			run.Error,
		}

		if !run.Success {
			record = append(record, "", "", "", "", "", "", "", "", "", "")
			if err := writer.Write(record); err != nil {
				return err
			}
			continue
		}

		tca := run.Result.TCA
		record = append(record,
			strconv.Itoa(int(tca.FilledQuantity)),
			strconv.Itoa(int(tca.TargetQuantity)),
			formatDouble(tca.FillRate),
			optionalPrice(tca.AverageFillPriceTicks, tca.HasAverageFillPrice),
			tca.ArrivalBenchmarkName,
			optionalPrice(tca.ArrivalBenchmarkPriceTicks, tca.HasArrivalBenchmark),
			optionalDouble(tca.ImplementationShortfallBps, tca.HasImplementationShortfall),
			formatDouble(tca.ParticipationRate),
			strconv.Itoa(run.Result.ReplayStats.RowsProcessed),
			strconv.Itoa(run.Result.ReplayStats.TradesGenerated),
		)

		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func statusString(success bool) string {
	if success {
		return "SUCCESS"
	}
	return "FAILED"
}

func optionalPrice(priceTicks int64, ok bool) string {
	if !ok {
		return ""
	}
	return tick.FormatPriceTicks(priceTicks)
}

func optionalDouble(value float64, ok bool) string {
	if !ok {
		return ""
	}
	return formatDouble(value)
}

func formatDouble(value float64) string {
	return strconv.FormatFloat(value, 'f', 6, 64)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %q: %w", dir, err)
	}
	return nil
}
