package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alymdu/shortest-plates/internal/app"
)

const closeTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var autostart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP control surface and the enumeration worker",
		Long: `Serves /start, /stop, /status, /results and /results.json. The worker stays
idle until /start is called, unless --autostart (or probe.autostart) is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return runServe(cmd.Context(), e, autostart || e.cfg.Probe.Autostart)
		},
	}
	cmd.Flags().BoolVar(&autostart, "autostart", false, "start a run as soon as the server is up")
	return cmd
}

func runServe(ctx context.Context, e *env, autostart bool) error {
	a, err := app.New(ctx, e.cfg, e.logger, app.Options{})
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			e.logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	if autostart {
		res, err := a.Worker().Start()
		if err != nil {
			return fmt.Errorf("autostart: %w", err)
		}
		e.logger.Info("autostarted run", zap.String("run_id", res.RunID))
	}

	if err := a.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
