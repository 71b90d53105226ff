package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mcube-trader/internal/averaging"
	"mcube-trader/internal/broker/brokerobs"
	"mcube-trader/internal/broker/zerodha"
	"mcube-trader/internal/daycfg"
	"mcube-trader/internal/engine"
	"mcube-trader/internal/eod"
	"mcube-trader/internal/eod/eodobs"
	"mcube-trader/internal/executor"
	"mcube-trader/internal/flags"
	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/notify"
	"mcube-trader/internal/progress"
	"mcube-trader/internal/risk"
	"mcube-trader/internal/store"
	"mcube-trader/internal/trace"
	"mcube-trader/internal/tradelog"

	"github.com/joho/godotenv"
)

// initializeSystem loads .env and starts logging and tracing
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// app holds every long-lived component of the trader.
type app struct {
	cfg       *store.Config
	flags     *flags.Store
	progress  *progress.BadgerStore
	days      *daycfg.Repository
	journal   *tradelog.Journal
	gateway   interfaces.OrderGateway
	notifier  interfaces.Notifier
	scheduler *engine.Scheduler
	averaging *averaging.Engine
}

func buildApp(ctx context.Context, cfg *store.Config) (*app, error) {
	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	fs, err := flags.Open(flags.OpenOptions{Path: filepath.Join(dataDir, "flags")})
	if err != nil {
		return nil, fmt.Errorf("open flag store: %w", err)
	}
	a := &app{cfg: cfg, flags: fs}

	// progress and cancel keys share the flag store's Badger instance
	a.progress = progress.NewBadgerStore(fs.DB())

	if a.days, err = daycfg.Open(filepath.Join(dataDir, "trader.db")); err != nil {
		a.close()
		return nil, fmt.Errorf("open day config repository: %w", err)
	}
	if a.journal, err = tradelog.Open(tradelog.Options{Compress: true}); err != nil {
		a.close()
		return nil, fmt.Errorf("open order journal: %w", err)
	}

	a.gateway = initializeGateway(ctx, cfg)
	a.notifier = initializeNotifier(ctx, cfg)

	exec := executor.New(a.gateway, a.progress, executor.WithJournal(a.journal))
	gate := risk.New(a.gateway, exec, fs, a.notifier,
		risk.Thresholds{
			StopLoss:    cfg.Risk.StopLossLimit,
			Target:      cfg.Risk.MinDailyProfitTarget,
			Materiality: cfg.Risk.AlertMateriality,
		},
		executor.LiquidationOptions{
			MaxLotsPerBatch: cfg.Execution.MaxLotsPerBatch,
			OrderType:       cfg.Execution.OrderType,
			Exchange:        cfg.Exchange,
		})

	a.scheduler = engine.New(engine.Deps{
		Config:   cfg,
		Gateway:  a.gateway,
		Executor: exec,
		Risk:     gate,
		Flags:    fs,
		Days:     a.days,
		Notifier: a.notifier,
		Eod:      eodobs.Wrap(eod.NewSummarizer(a.journal.Path(), dataDir)),
	})

	p := averaging.DefaultParams()
	p.IndexOIFloor = cfg.Averaging.IndexOIFloor
	p.StockOIFloor = cfg.Averaging.StockOIFloor
	p.MaxVolatilityPct = cfg.Averaging.MaxVolatilityPct
	a.averaging = averaging.New(p)
	return a, nil
}

func initializeGateway(ctx context.Context, cfg *store.Config) interfaces.OrderGateway {
	gw := zerodha.NewGateway(zerodha.Params{
		Mode:            cfg.Mode,
		APIKey:          os.Getenv("KITE_API_KEY"),
		AccessToken:     os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:        cfg.Exchange,
		OrdersPerSecond: cfg.Execution.OrdersPerSecond,
		PaperMargin:     cfg.Execution.PaperMargin,
	})
	if cfg.Mode == zerodha.ModeDryRun {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}
	return brokerobs.Wrap(gw)
}

func initializeNotifier(ctx context.Context, cfg *store.Config) interfaces.Notifier {
	token, chat := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID")
	if !cfg.Telegram.Enabled || token == "" || chat == "" {
		logger.Info(ctx, "Telegram disabled - alerts go to the log only")
		return notify.Log{}
	}
	return notify.Multi{
		notify.Log{},
		notify.NewTelegram(notify.TelegramConfig{Token: token, ChatID: chat}),
	}
}

func (a *app) close() error {
	var errs []error
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.days != nil {
		errs = append(errs, a.days.Close())
	}
	if a.flags != nil {
		errs = append(errs, a.flags.Close())
	}
	return errors.Join(errs...)
}
