package batch

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/rishav/lobx/internal/backtest"
)

// distributionStats summarizes one metric's values across a set of
// successful runs.
type distributionStats struct {
	Count int
	Mean  float64
	P50   float64
	P95   float64
}

// summaryRow is one line of the summary CSV: a (section, key, metric)
// triple plus its distribution.
type summaryRow struct {
	Section string
	Key     string
	Metric  string
	Stats   distributionStats
}

// percentile returns the p-th percentile (0..1) of sorted values using
// linear interpolation between the two nearest ranks.
func percentile(sortedValues []float64, p float64) (float64, bool) {
	if len(sortedValues) == 0 {
		return 0, false
	}
	if len(sortedValues) == 1 {
		return sortedValues[0], true
	}

	index := p * float64(len(sortedValues)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	weight := index - float64(lower)

	return sortedValues[lower] + (sortedValues[upper]-sortedValues[lower])*weight, true
}

// computeDistributionStats sorts values and returns their count, mean,
// p50, and p95. Returns ok=false for an empty input.
func computeDistributionStats(values []float64) (distributionStats, bool) {
	if len(values) == 0 {
		return distributionStats{}, false
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	p50, ok := percentile(sorted, 0.50)
	if !ok {
		return distributionStats{}, false
	}
	p95, ok := percentile(sorted, 0.95)
	if !ok {
		return distributionStats{}, false
	}

	return distributionStats{
		Count: len(sorted),
		Mean:  sum / float64(len(sorted)),
		P50:   p50,
		P95:   p95,
	}, true
}

// scenarioKey groups runs that differ only by strategy, so TWAP and
// VWAP outcomes for "the same request" can be paired for a delta.
func scenarioKey(request Request) string {
	return fmt.Sprintf("%s|%s|%d|%d", request.Dataset, request.Side, request.Quantity, request.Slices)
}

// pairedDelta subtracts rhs[i] from lhs[i] for the overlapping prefix
// of both slices; a scenario missing one strategy's run contributes no
// delta entry for the tail it's missing.
func pairedDelta(lhs, rhs []float64) []float64 {
	count := len(lhs)
	if len(rhs) < count {
		count = len(rhs)
	}
	delta := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		delta = append(delta, lhs[i]-rhs[i])
	}
	return delta
}

type strategyValuesByScenario struct {
	fillRate      []float64
	shortfall     []float64
	participation []float64
}

type scenarioValues struct {
	twap strategyValuesByScenario
	vwap strategyValuesByScenario
}

func pushStrategySummaryRows(name string, fillRate, shortfall, participation []float64, rows *[]summaryRow) {
	if stats, ok := computeDistributionStats(fillRate); ok {
		*rows = append(*rows, summaryRow{Section: "strategy", Key: name, Metric: "fill_rate", Stats: stats})
	}
	if stats, ok := computeDistributionStats(shortfall); ok {
		*rows = append(*rows, summaryRow{Section: "strategy", Key: name, Metric: "shortfall_bps", Stats: stats})
	}
	if stats, ok := computeDistributionStats(participation); ok {
		*rows = append(*rows, summaryRow{Section: "strategy", Key: name, Metric: "participation_rate", Stats: stats})
	}
}

// buildSummaryRows aggregates every successful run's TCA by strategy,
// then pairs each (dataset, side, qty, slices) scenario's TWAP and
// VWAP runs to report how much VWAP differed from TWAP.
func buildSummaryRows(runs []Run) []summaryRow {
	var twapFillRate, twapShortfall, twapParticipation []float64
	var vwapFillRate, vwapShortfall, vwapParticipation []float64

	byScenario := make(map[string]*scenarioValues)

	for _, run := range runs {
		if !run.Success {
			continue
		}

		fillRate := run.Result.TCA.FillRate
		participation := run.Result.TCA.ParticipationRate

		key := scenarioKey(run.Request)
		scenario, ok := byScenario[key]
		if !ok {
			scenario = &scenarioValues{}
			byScenario[key] = scenario
		}

		var target *strategyValuesByScenario
		if run.Request.Strategy == backtest.TWAP {
			twapFillRate = append(twapFillRate, fillRate)
			twapParticipation = append(twapParticipation, participation)
			target = &scenario.twap
		} else {
			vwapFillRate = append(vwapFillRate, fillRate)
			vwapParticipation = append(vwapParticipation, participation)
			target = &scenario.vwap
		}

		target.fillRate = append(target.fillRate, fillRate)
		target.participation = append(target.participation, participation)

		if run.Result.TCA.HasImplementationShortfall {
			shortfall := run.Result.TCA.ImplementationShortfallBps
			if run.Request.Strategy == backtest.TWAP {
				twapShortfall = append(twapShortfall, shortfall)
			} else {
				vwapShortfall = append(vwapShortfall, shortfall)
			}
			target.shortfall = append(target.shortfall, shortfall)
		}
	}

	var rows []summaryRow
	pushStrategySummaryRows("TWAP", twapFillRate, twapShortfall, twapParticipation, &rows)
	pushStrategySummaryRows("VWAP", vwapFillRate, vwapShortfall, vwapParticipation, &rows)

	var deltaFillRate, deltaShortfall, deltaParticipation []float64

	scenarioKeys := make([]string, 0, len(byScenario))
	for key := range byScenario {
		scenarioKeys = append(scenarioKeys, key)
	}
	sort.Strings(scenarioKeys)

	for _, key := range scenarioKeys {
		scenario := byScenario[key]
		deltaFillRate = append(deltaFillRate, pairedDelta(scenario.twap.fillRate, scenario.vwap.fillRate)...)
		deltaShortfall = append(deltaShortfall, pairedDelta(scenario.twap.shortfall, scenario.vwap.shortfall)...)
		deltaParticipation = append(deltaParticipation, pairedDelta(scenario.twap.participation, scenario.vwap.participation)...)
	}

	if stats, ok := computeDistributionStats(deltaFillRate); ok {
		rows = append(rows, summaryRow{Section: "delta", Key: "TWAP_MINUS_VWAP", Metric: "fill_rate_delta", Stats: stats})
	}
	if stats, ok := computeDistributionStats(deltaShortfall); ok {
		rows = append(rows, summaryRow{Section: "delta", Key: "TWAP_MINUS_VWAP", Metric: "shortfall_bps_delta", Stats: stats})
	}
	if stats, ok := computeDistributionStats(deltaParticipation); ok {
		rows = append(rows, summaryRow{Section: "delta", Key: "TWAP_MINUS_VWAP", Metric: "participation_rate_delta", Stats: stats})
	}

	return rows
}

var summaryHeader = []string{"section", "key", "metric", "count", "mean", "p50", "p95"}

// WriteSummaryCSV aggregates every run in runs and writes the
// strategy-level and TWAP-vs-VWAP delta distribution summary.
func WriteSummaryCSV(path string, runs []Run) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open summary output CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(summaryHeader); err != nil {
		return err
	}

	for _, row := range buildSummaryRows(runs) {
		record := []string{
			row.Section, row.Key, row.Metric,
			strconv.Itoa(row.Stats.Count),
			formatDouble(row.Stats.Mean),
			formatDouble(row.Stats.P50),
			formatDouble(row.Stats.P95),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
