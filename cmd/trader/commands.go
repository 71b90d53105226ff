package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mcube-trader/internal/api"
	"mcube-trader/internal/engine/engineobs"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/trace"
	"mcube-trader/internal/types"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "trader",
		Short:        "Short strangle execution and risk control",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeSystem()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Configuration file path")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newPhaseCmd(&configPath))
	root.AddCommand(newSizeCmd(&configPath))
	root.AddCommand(newCancelCmd())
	return root
}

// withApp loads config, builds the app and tears it down after fn.
func withApp(ctx context.Context, configPath string, fn func(a *app) error) error {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Warn(ctx, "Shutdown incomplete", "error", err)
		}
		_ = trace.Shutdown(context.Background())
	}()
	return fn(a)
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daily scheduler and the ops server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, *configPath, func(a *app) error {
				srv := api.New(api.Deps{
					Flags:     a.flags,
					Progress:  a.progress,
					Days:      a.days,
					Averaging: a.averaging,
					Journal:   a.journal,
				})
				srv.Start(a.cfg.HTTP.Addr)

				if err := engineobs.Wrap(a.scheduler).InstallDailyJob(ctx); err != nil {
					return err
				}
				logger.Info(ctx, "Trader started", "mode", a.cfg.Mode, "underlying", a.cfg.Underlying)

				<-ctx.Done()
				logger.Info(context.Background(), "Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
}

func newPhaseCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "phase [setup|entry|monitoring|closing|analysis]",
		Short:     "Run one phase of today's schedule now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"setup", "entry", "monitoring", "closing", "analysis"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, *configPath, func(a *app) error {
				s := engineobs.Wrap(a.scheduler)
				var res types.PhaseResult
				switch strings.ToLower(args[0]) {
				case "setup":
					res = s.RunSetupPhase(ctx, time.Now())
				case "entry":
					res = s.RunEntryPhase(ctx)
				case "monitoring":
					res = s.RunMonitoringPhase(ctx)
				case "closing":
					res = s.RunClosingPhase(ctx)
				case "analysis":
					res = s.RunAnalysisPhase(ctx)
				default:
					return fmt.Errorf("unknown phase %q", args[0])
				}
				if err := printJSON(res); err != nil {
					return err
				}
				if res.Status == types.PhaseFailed {
					return fmt.Errorf("phase %s failed: %s", args[0], res.Message)
				}
				return nil
			})
		},
	}
}

func newSizeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print today's strangle plan and sizing without trading",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, *configPath, func(a *app) error {
				plan, margin, size, err := a.scheduler.SizeEntry(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"plan":   plan,
					"margin": margin,
					"sizing": size,
				})
			})
		},
	}
}

func newCancelCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "cancel RUN_KEY",
		Short: "Ask a running batch run to stop at its next checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api.NewClient(addr)
			if err := c.CancelRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			p, err := c.Progress(cmd.Context(), args[0])
			if err != nil {
				fmt.Printf("cancel requested for %s\n", args[0])
				return nil
			}
			return printJSON(p)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8090", "Ops server base URL")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
