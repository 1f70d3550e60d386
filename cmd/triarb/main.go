// Triangular-arbitrage engine — watches three order books forming a
// currency cycle (I1/I2/I3) and sweeps top-of-book across all three legs
// whenever the fee-adjusted round-trip return clears a minimum trade value.
//
// Architecture:
//
//	main.go                   — entry point: loads config, wires components, waits for SIGINT/SIGTERM
//	internal/exchange         — WebSocket session, HMAC auth, instrument metadata, rate limiting
//	internal/orderbook        — depth-capped per-instrument book mirror
//	internal/triangle         — forward/backward multiplier and order-sizing arithmetic
//	internal/account          — position tracking from GetAccountPositions replies
//	internal/trader           — trade-cycle state machine: recheck, emit, reconcile fills
//	internal/router           — dispatches inbound frames by operation name
//	internal/supervisor       — structured-concurrency task lifecycle and reset sequencing
//	internal/coordination     — TradeLock and ResetSignal, the engine's only shared mutable state
//	internal/store            — JSON position-snapshot persistence (survives restarts)
//	internal/metrics          — Prometheus counters/gauges
//	internal/diagnostics      — /healthz, /metrics, /status HTTP server
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"triarb/internal/account"
	"triarb/internal/config"
	"triarb/internal/coordination"
	"triarb/internal/diagnostics"
	"triarb/internal/exchange"
	"triarb/internal/orderbook"
	"triarb/internal/router"
	"triarb/internal/store"
	"triarb/internal/supervisor"
	"triarb/internal/trader"
	"triarb/internal/triangle"
	"triarb/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("TRIARB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids := cfg.Triangle.InstrumentIds

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open position store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	acct := account.New()
	if saved, err := st.LoadPositions(); err != nil {
		logger.Error("failed to load saved positions", "error", err)
	} else if saved != nil {
		if err := acct.ProcessPositions(positionsToEntries(saved)); err != nil {
			logger.Error("failed to restore saved positions", "error", err)
		}
	}

	metaClient := exchange.NewMetadataClient(cfg.Exchange.MetadataURL, logger)
	precision := triangle.Precision{}
	if catalog, err := metaClient.FetchInstruments(ctx); err != nil {
		logger.Warn("instrument metadata fetch failed, falling back to default precision", "error", err)
	} else {
		precision = exchange.PrecisionFor(catalog, ids[:])
	}

	book := orderbook.NewMultiBook(ids[:], cfg.Triangle.Depth)

	evaluator, err := triangle.New(
		triangle.Variant(cfg.Triangle.Variant),
		book,
		ids,
		decimal.NewFromFloat(cfg.Triangle.Fee),
		precision,
	)
	if err != nil {
		logger.Error("failed to build triangle evaluator", "error", err)
		os.Exit(1)
	}

	auth := exchange.NewAuth(cfg.Exchange.UserId, cfg.Exchange.ApiKey, cfg.Exchange.Secret)
	session := exchange.NewSession(cfg.Exchange.WSURL, auth, cfg.Exchange.OMSId, logger)

	lock := coordination.NewTradeLock()
	reset := coordination.NewResetSignal()

	tr := trader.New(session, evaluator, lock, reset, trader.Config{
		MinTradeValue: decimal.NewFromFloat(cfg.Triangle.MinTradeValue),
		OMSId:         cfg.Exchange.OMSId,
		AccountId:     cfg.Account.AccountId,
		DryRun:        cfg.DryRun,
	}, logger)

	r := router.New(book, acct, tr, reset, logger)

	sup := supervisor.New(book, acct, tr, r, lock, reset, session.Frames(), supervisor.Config{
		AutoResetInterval: cfg.AutoResetInterval(),
		BookPrintInterval: cfg.BookPrintInterval(),
		AssetDiffInterval: cfg.AssetDiffInterval(),
		CashAvailable:     decimal.NewFromFloat(cfg.Account.CashAvailable),
	}, logger)

	var diag *diagnostics.Server
	if cfg.Diagnostics.Enabled {
		diag = diagnostics.New(fmt.Sprintf(":%d", cfg.Diagnostics.Port), diagnostics.StatusProvider{
			Trader: tr,
			Reset:  reset,
		}, logger)
		go func() {
			if err := diag.Start(); err != nil {
				logger.Error("diagnostics server failed", "error", err)
			}
		}()
	}

	go func() {
		if err := session.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("session exited", "error", err)
		}
	}()

	go func() {
		if err := subscribeAll(ctx, session, cfg, ids); err != nil {
			logger.Error("initial subscription failed", "error", err)
		}
	}()

	fatalCh := make(chan error, 1)
	go func() {
		if err := sup.Run(ctx); err != nil {
			fatalCh <- err
		}
	}()

	logger.Info("triangular arbitrage engine started",
		"instrument_ids", ids,
		"variant", cfg.Triangle.Variant,
		"min_trade_value", cfg.Triangle.MinTradeValue,
		"cash_available", cfg.Account.CashAvailable,
		"dry_run", cfg.DryRun,
	)
	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-fatalCh:
		logger.Error("supervisor hit a fatal condition, shutting down", "error", err)
	}

	if err := st.SavePositions(acct.Snapshot()); err != nil {
		logger.Error("failed to persist positions on shutdown", "error", err)
	}

	if diag != nil {
		if err := diag.Stop(); err != nil {
			logger.Error("failed to stop diagnostics server", "error", err)
		}
	}

	cancel()
	session.Close()
}

// subscribeAll sends the three book subscriptions and the account-events
// subscription once the session has had a moment to connect and
// authenticate.
func subscribeAll(ctx context.Context, session exchange.Session, cfg *config.Config, ids [3]types.InstrumentId) error {
	for _, id := range ids {
		payload := map[string]interface{}{
			"OMSId":        cfg.Exchange.OMSId,
			"InstrumentId": id,
			"Depth":        cfg.Triangle.Depth,
		}
		if err := session.Subscribe(ctx, "SubscribeLevel2", payload); err != nil {
			return fmt.Errorf("subscribe level2 instrument %d: %w", id, err)
		}
	}

	payload := map[string]interface{}{
		"OMSId":     cfg.Exchange.OMSId,
		"AccountId": cfg.Account.AccountId,
	}
	return session.Subscribe(ctx, "SubscribeAccountEvents", payload)
}

// positionsToEntries converts a restored snapshot back into the wire shape
// account.ProcessPositions expects, so a saved snapshot seeds the tracker
// through the same path a live GetAccountPositions reply would.
func positionsToEntries(positions map[types.InstrumentId]decimal.Decimal) []types.AccountPositionEntry {
	entries := make([]types.AccountPositionEntry, 0, len(positions))
	for id, amt := range positions {
		entries = append(entries, types.AccountPositionEntry{InstrumentId: id, Amount: amt.String()})
	}
	return entries
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
