// Package main provides the lobx CLI: a demo mode, a plain action-CSV
// replay driver, TWAP/VWAP execution backtests, and a batch runner
// that compares strategies across a set of requests.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rishav/lobx/internal/backtest"
	"github.com/rishav/lobx/internal/batch"
	"github.com/rishav/lobx/internal/matching"
	"github.com/rishav/lobx/internal/replay"
	"github.com/rishav/lobx/internal/tick"
)

// exit codes, per spec: 0 success, 1 run-time failure, 2 usage error.
const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		runDemo()
		return exitSuccess
	}

	switch args[0] {
	case "replay":
		return runReplay(args[1:])
	case "backtest_twap":
		return runBacktest(args[1:], backtest.TWAP)
	case "backtest_vwap":
		return runBacktest(args[1:], backtest.VWAP)
	case "backtest_compare":
		return runBacktestCompare(args[1:])
	case "batch":
		return runBatch(args[1:])
	case "demo":
		runDemo()
		return exitSuccess
	default:
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `lobx - limit order book matching engine and execution backtester

Usage:
  lobx                                                 run the built-in demo
  lobx demo                                            run the built-in demo
  lobx replay <in.csv> [out.csv]                       replay an action CSV, write trades
  lobx backtest_twap <in.csv> <BUY|SELL> <qty> <slices>    run a TWAP execution backtest
  lobx backtest_vwap <in.csv> <BUY|SELL> <qty> <slices>    run a VWAP execution backtest
  lobx backtest_compare [-verbose] <in.csv> <BUY|SELL> <qty> <slices>
                                                        run both strategies, print the delta
  lobx batch <requests.csv> <runs.csv> <summary.csv>   run a batch of requests, write both CSVs

  -verbose applies only to backtest_compare: it prints each strategy's
  full replay-stats JSON summary alongside the TCA numbers.
`)
}

func runReplay(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		printUsage()
		return exitUsage
	}

	inPath := fs.Arg(0)
	outPath := "trades.csv"
	if fs.NArg() == 2 {
		outPath = fs.Arg(1)
	}

	engine := matching.NewEngine()
	result, err := replay.RunFile(inPath, engine)
	if err != nil {
		logger.Error("replay failed", slog.String("input", inPath), slog.Any("error", err))
		return exitFailure
	}

	if err := replay.WriteTradeCSV(outPath, result.Trades); err != nil {
		logger.Error("failed to write trade CSV", slog.String("output", outPath), slog.Any("error", err))
		return exitFailure
	}

	logger.Info("replay complete",
		slog.Int("rows_processed", result.Stats.RowsProcessed),
		slog.Int("accepted_actions", result.Stats.AcceptedActions),
		slog.Int("rejected_actions", result.Stats.RejectedActions),
		slog.Int("trades_generated", result.Stats.TradesGenerated),
		slog.String("output", outPath),
	)
	return exitSuccess
}

func parseBacktestArgs(args []string) (inPath string, config backtest.Config, ok bool) {
	if len(args) != 4 {
		return "", backtest.Config{}, false
	}

	side, err := parseSideArg(args[1])
	if err != nil {
		return "", backtest.Config{}, false
	}

	var qty int
	if _, err := fmt.Sscanf(args[2], "%d", &qty); err != nil || qty <= 0 {
		return "", backtest.Config{}, false
	}

	var slices int
	if _, err := fmt.Sscanf(args[3], "%d", &slices); err != nil || slices <= 0 {
		return "", backtest.Config{}, false
	}

	return args[0], backtest.Config{
		Side:              side,
		TargetQuantity:    int32(qty),
		Slices:            slices,
		FirstChildOrderID: backtest.DefaultFirstChildOrderID,
	}, true
}

func parseSideArg(value string) (tick.Side, error) {
	switch value {
	case "BUY":
		return tick.Buy, nil
	case "SELL":
		return tick.Sell, nil
	default:
		return 0, fmt.Errorf("side must be BUY or SELL")
	}
}

func runBacktest(args []string, strategy backtest.Strategy) int {
	inPath, config, ok := parseBacktestArgs(args)
	if !ok {
		printUsage()
		return exitUsage
	}
	config.Strategy = strategy

	result, err := backtest.RunFile(inPath, config)
	if err != nil {
		logger.Error("backtest failed", slog.String("input", inPath), slog.Any("error", err))
		return exitFailure
	}

	printTCASummary(config.Strategy.String(), result, false)
	return exitSuccess
}

func runBacktestCompare(args []string) int {
	fs := flag.NewFlagSet("backtest_compare", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "print each strategy's full replay-stats JSON summary")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	inPath, config, ok := parseBacktestArgs(fs.Args())
	if !ok {
		printUsage()
		return exitUsage
	}

	twapConfig := config
	twapConfig.Strategy = backtest.TWAP
	twapResult, err := backtest.RunFile(inPath, twapConfig)
	if err != nil {
		logger.Error("TWAP backtest failed", slog.String("input", inPath), slog.Any("error", err))
		return exitFailure
	}

	vwapConfig := config
	vwapConfig.Strategy = backtest.VWAP
	vwapResult, err := backtest.RunFile(inPath, vwapConfig)
	if err != nil {
		logger.Error("VWAP backtest failed", slog.String("input", inPath), slog.Any("error", err))
		return exitFailure
	}

	printTCASummary("TWAP", twapResult, *verbose)
	printTCASummary("VWAP", vwapResult, *verbose)

	fmt.Printf("\nTWAP_MINUS_VWAP fill_rate delta: %.6f\n", twapResult.TCA.FillRate-vwapResult.TCA.FillRate)
	if twapResult.TCA.HasImplementationShortfall && vwapResult.TCA.HasImplementationShortfall {
		fmt.Printf("TWAP_MINUS_VWAP shortfall_bps delta: %.6f\n",
			twapResult.TCA.ImplementationShortfallBps-vwapResult.TCA.ImplementationShortfallBps)
	}
	fmt.Printf("TWAP_MINUS_VWAP participation_rate delta: %.6f\n",
		twapResult.TCA.ParticipationRate-vwapResult.TCA.ParticipationRate)

	return exitSuccess
}

func printTCASummary(label string, result backtest.Result, verbose bool) {
	tca := result.TCA
	fmt.Printf("=== %s ===\n", label)
	fmt.Printf("filled: %d/%d (fill_rate=%.4f)\n", tca.FilledQuantity, tca.TargetQuantity, tca.FillRate)
	if tca.HasAverageFillPrice {
		fmt.Printf("avg_fill_price: %s\n", tick.FormatPriceTicks(tca.AverageFillPriceTicks))
	}
	if tca.HasArrivalBenchmark {
		fmt.Printf("arrival_benchmark: %s @ %s\n", tca.ArrivalBenchmarkName, tick.FormatPriceTicks(tca.ArrivalBenchmarkPriceTicks))
	}
	if tca.HasImplementationShortfall {
		fmt.Printf("implementation_shortfall_bps: %.4f\n", tca.ImplementationShortfallBps)
	}
	fmt.Printf("participation_rate: %.4f\n", tca.ParticipationRate)

	if !verbose {
		return
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(result.ReplayStats)
}

func runBatch(args []string) int {
	if len(args) != 3 {
		printUsage()
		return exitUsage
	}

	stats, err := batch.RunFile(args[0], args[1], args[2])
	if err != nil {
		logger.Error("batch run failed", slog.String("requests", args[0]), slog.Any("error", err))
		return exitFailure
	}

	logger.Info("batch complete",
		slog.Int("requests", stats.Requests),
		slog.Int("successful", stats.Successful),
		slog.Int("failed", stats.Failed),
		slog.String("runs_output", args[1]),
		slog.String("summary_output", args[2]),
	)
	return exitSuccess
}

// runDemo builds a small order book in-process and walks through three
// concrete scenarios: a crossing trade, an IOC that never rests, and a
// market order that finds no liquidity.
func runDemo() {
	engine := matching.NewEngine()

	fmt.Println("=== lobx demo ===")

	submit := func(label string, order tick.Order) {
		result := engine.Submit(order)
		fmt.Printf("%s: accepted=%v reject=%s trades=%d\n", label, result.Accepted, result.RejectReason, len(result.Trades))
		for _, trade := range result.Trades {
			fmt.Printf("  trade: buy=%d sell=%d price=%s qty=%d\n",
				trade.BuyOrderID, trade.SellOrderID, tick.FormatPriceTicks(trade.PriceTicks), trade.Quantity)
		}
	}

	fmt.Println("\n1. aggressive cross")
	submit("submit 1 BUY 101.0 x10", tick.Order{ID: 1, Side: tick.Buy, PriceTicks: tick.PriceToTicksFromFloat(101.0), Quantity: 10, Type: tick.Limit, TIF: tick.GTC})
	submit("submit 2 SELL 100.0 x6", tick.Order{ID: 2, Side: tick.Sell, PriceTicks: tick.PriceToTicksFromFloat(100.0), Quantity: 6, Type: tick.Limit, TIF: tick.GTC})

	snapshot := engine.Depth(5)
	fmt.Printf("book after cross: bids=%v asks=%v\n", snapshot.Bids, snapshot.Asks)

	fmt.Println("\n2. IOC never rests")
	submit("submit 200 BUY 99.0 x5 IOC", tick.Order{ID: 200, Side: tick.Buy, PriceTicks: tick.PriceToTicksFromFloat(99.0), Quantity: 5, Type: tick.Limit, TIF: tick.IOC})

	fmt.Println("\n3. market order into empty opposite side")
	submit("submit 300 BUY MARKET x3", tick.Order{ID: 300, Side: tick.Buy, Quantity: 3, Type: tick.Market, TIF: tick.IOC})

	fmt.Printf("\nlast_seq_num=%d\n", engine.LastSeqNum())
	fmt.Println("=== demo complete ===")
}
