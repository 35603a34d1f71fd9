// Command scan-once runs a single decision pass over a symbol list and
// prints any emitted signals as JSON. Useful for spot-checking the
// pipeline without the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/engine"
	"binance-signal-engine/internal/liquidity"
	"binance-signal-engine/internal/logging"
	"binance-signal-engine/internal/regime"
	"binance-signal-engine/internal/risk"
	"binance-signal-engine/internal/strategy"
)

func main() {
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT", "comma-separated symbol list")
	interval := flag.String("interval", "1h", "kline interval")
	mock := flag.Bool("mock", false, "use simulated market data")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger := logging.New(logging.Config{Level: *logLevel, Output: "stderr", JSONFormat: false})

	var client binance.MarketDataClient
	if *mock {
		client = binance.NewMockClient()
	} else {
		client = binance.NewClient("", os.Getenv("BINANCE_API_KEY"))
	}

	strategies := []strategy.Strategy{
		strategy.NewTrapStrategy(logger),
		strategy.NewSMCStrategy(logger),
		strategy.NewScalpStrategy(logger),
	}
	cfg := engine.DefaultConfig()
	cfg.Interval = *interval
	riskMgr := risk.NewManager(risk.DefaultParameters(), logger)
	eng := engine.New(client, liquidity.NewAnalyzer(0, logger),
		regime.NewClassifier(logger), strategies, riskMgr, nil, cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	exitCode := 0
	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		sig, err := eng.DryRun(ctx, symbol)
		switch {
		case err == nil:
			if encErr := enc.Encode(sig); encErr != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", symbol, encErr)
				exitCode = 1
			}
		case errors.Is(err, engine.ErrNoCandidate):
			fmt.Fprintf(os.Stderr, "%s: no signal\n", symbol)
		default:
			fmt.Fprintf(os.Stderr, "%s: %v\n", symbol, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
