package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fractal-trader/config"
	"fractal-trader/internal/api"
	"fractal-trader/internal/archive"
	"fractal-trader/internal/backtest"
	"fractal-trader/internal/circuit"
	"fractal-trader/internal/events"
	"fractal-trader/internal/logging"
	"fractal-trader/internal/market"
	"fractal-trader/internal/secrets"
	"fractal-trader/internal/state"
	"fractal-trader/internal/strategy"
	"fractal-trader/internal/trader"
	"fractal-trader/internal/venue"
)

func main() {
	mode := flag.String("mode", "run", "run or backtest")
	strategyName := flag.String("strategy", "", "strategy override (liquidity_sweep, fvg_fill, bos_orderblock)")
	network := flag.String("network", "", "venue profile override (paper, testnet, mainnet)")
	configPath := flag.String("config", "", "path to config.json")
	duration := flag.Duration("duration", 0, "stop the session after this long (0 runs until interrupted)")
	confirm := flag.Bool("confirm", false, "skip the interactive real-funds confirmation")
	flag.Parse()

	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	path := *configPath
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *strategyName != "" {
		cfg.Strategy = *strategyName
	}
	if *network != "" {
		cfg.Network = *network
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Console)

	profile, _ := venue.ProfileByName(cfg.Network)
	strat, err := strategy.New(cfg.Strategy, cfg.Detection)
	if err != nil {
		logger.Fatal().Err(err).Msg("strategy setup failed")
	}

	switch *mode {
	case "backtest":
		runBacktest(cfg, profile, strat, logger)
	case "run":
		runLive(cfg, profile, strat, *duration, *confirm, logger)
	default:
		logger.Fatal().Str("mode", *mode).Msg("unknown mode, use run or backtest")
	}
}

func runLive(cfg config.Config, profile venue.Profile, strat strategy.Strategy, duration time.Duration, confirm bool, logger zerolog.Logger) {
	if profile.RealFunds && !confirm {
		if !promptConfirm() {
			logger.Info().Msg("real-funds session not confirmed, exiting")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := state.NewStore(cfg.StatePath, logger, state.WithBackupCount(profile.BackupCount))
	if err != nil {
		logger.Fatal().Err(err).Msg("state store setup failed")
	}

	exchange, data, err := buildVenue(ctx, cfg, profile, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("venue setup failed")
	}

	breaker := circuit.New(circuit.Limits{
		MaxDailyDrawdown: profile.MaxDailyDrawdown,
		MaxDailyTrades:   profile.MaxDailyTrades,
	}, nil)

	bus := events.NewBus()

	deps := trader.Deps{
		Profile: profile,
		Venue:   exchange,
		Data:    data,
		Strat:   strat,
		Store:   store,
		Breaker: breaker,
		Params:  cfg.Risk,
		Bus:     bus,
		Logger:  logger,
	}

	if cfg.Archive.Enabled {
		archiveStore, err := archive.Open(ctx, cfg.Archive.DSN, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("trade archive setup failed")
		}
		defer archiveStore.Close()
		deps.Archive = archiveStore
	}

	loop, err := trader.New(cfg.Trading, deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("trading loop setup failed")
	}

	var dashboard *api.Server
	if cfg.Dashboard.Enabled {
		dashboard = api.NewServer(cfg.Dashboard.Config, api.Deps{
			Store:        store,
			Breaker:      breaker,
			Venue:        exchange,
			Profile:      profile,
			StrategyName: cfg.Strategy,
			Bus:          bus,
			Logger:       logger,
		})
		go func() {
			if err := dashboard.Start(); err != nil {
				logger.Error().Err(err).Msg("dashboard stopped")
			}
		}()
	}

	if duration > 0 {
		timer := time.AfterFunc(duration, loop.Stop)
		defer timer.Stop()
	}

	logger.Info().
		Str("venue", profile.Name).
		Str("strategy", cfg.Strategy).
		Strs("symbols", cfg.Trading.Symbols).
		Str("timeframe", cfg.Trading.Timeframe).
		Bool("real_funds", profile.RealFunds).
		Msg("trading session starting")

	runErr := loop.Run(ctx)

	if dashboard != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := dashboard.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("dashboard shutdown failed")
		}
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("trading session ended with error")
		os.Exit(1)
	}
	logger.Info().Msg("trading session ended")
}

func runBacktest(cfg config.Config, profile venue.Profile, strat strategy.Strategy, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	candles, err := loadCandles(ctx, cfg, profile, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest candle load failed")
	}

	engine := backtest.NewEngine(cfg.Backtest.InitialCapital, cfg.Backtest.Commission, cfg.Risk)
	result := engine.Run(candles, strat)

	logger.Info().
		Str("strategy", strat.Name()).
		Int("bars", len(candles)).
		Int("trades", result.TotalTrades).
		Float64("win_rate", result.WinRate).
		Float64("net_profit", result.NetProfit).
		Float64("roi", result.ROI).
		Float64("max_drawdown", result.MaxDrawdown).
		Float64("sharpe", result.SharpeRatio).
		Msg("backtest complete")

	fmt.Printf("\nBacktest: %s on %d bars\n", strat.Name(), len(candles))
	fmt.Printf("  Trades:        %d (%d wins, %d losses)\n", result.TotalTrades, result.WinningTrades, result.LosingTrades)
	fmt.Printf("  Win rate:      %.1f%%\n", result.WinRate)
	fmt.Printf("  Net profit:    %.2f (ROI %.2f%%)\n", result.NetProfit, result.ROI)
	fmt.Printf("  Profit factor: %.2f\n", result.ProfitFactor)
	fmt.Printf("  Max drawdown:  %.2f%%\n", result.MaxDrawdown)
	fmt.Printf("  Sharpe:        %.2f\n", result.SharpeRatio)
	fmt.Printf("  Final equity:  %.2f\n", result.FinalEquity)
}

// loadCandles reads a candle file when configured, otherwise fetches
// history from the configured venue.
func loadCandles(ctx context.Context, cfg config.Config, profile venue.Profile, logger zerolog.Logger) ([]market.Candle, error) {
	if cfg.Backtest.CandleFile != "" {
		data, err := os.ReadFile(cfg.Backtest.CandleFile)
		if err != nil {
			return nil, fmt.Errorf("read candle file: %w", err)
		}
		var candles []market.Candle
		if err := json.Unmarshal(data, &candles); err != nil {
			return nil, fmt.Errorf("parse candle file %s: %w", cfg.Backtest.CandleFile, err)
		}
		candles = market.Normalize(candles)
		if len(candles) == 0 {
			return nil, fmt.Errorf("candle file %s: %w", cfg.Backtest.CandleFile, market.ErrEmptySeries)
		}
		return candles, nil
	}

	_, data, err := buildVenue(ctx, cfg, profile, logger)
	if err != nil {
		return nil, err
	}
	symbol := cfg.Trading.Symbols[0]
	candles, err := data.FetchCandles(ctx, symbol, cfg.Trading.Timeframe, 1000)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, cfg.Trading.Timeframe, market.ErrEmptySeries)
	}
	return candles, nil
}

// buildVenue constructs the execution venue and market data source for
// the selected profile.
func buildVenue(ctx context.Context, cfg config.Config, profile venue.Profile, logger zerolog.Logger) (venue.Venue, venue.MarketData, error) {
	if profile.Simulated {
		paper := venue.NewPaperVenue(cfg.Backtest.InitialCapital, time.Now().UnixNano())
		return paper, paper, nil
	}

	loader, err := secrets.NewLoader(cfg.Vault, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := loader.Health(); err != nil {
		return nil, nil, fmt.Errorf("vault health check: %w", err)
	}
	creds, err := loader.Load(ctx, profile.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("load venue credentials: %w", err)
	}

	rest := venue.NewRESTVenue(profile, creds.APIKey, creds.APISecret, logger)
	return rest, rest, nil
}

// promptConfirm requires an explicit CONFIRM before trading real funds.
func promptConfirm() bool {
	fmt.Print("Mainnet trades real funds. Type 'CONFIRM' to continue: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "CONFIRM"
}
