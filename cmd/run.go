// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/browser"
	"github.com/xkilldash9x/waypoint/internal/classifier"
	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/flow"
	"github.com/xkilldash9x/waypoint/internal/metrics"
	"github.com/xkilldash9x/waypoint/internal/observability"
	"github.com/xkilldash9x/waypoint/internal/reporting"
	"github.com/xkilldash9x/waypoint/internal/search"
	"github.com/xkilldash9x/waypoint/internal/session"
	"github.com/xkilldash9x/waypoint/internal/store"
)

// ErrRunUnsuccessful is returned when a run ends in any status but success.
var ErrRunUnsuccessful = errors.New("run did not reach its goal")

// Component constructors, swapped in tests.
var (
	newLauncher   = browser.NewLauncher
	newClassifier = classifier.New
	newSearch     = search.New
	openPool      = func(ctx context.Context, url string) (store.DBPool, func(), error) {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return pool, pool.Close, nil
	}
)

const metricsShutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	var initialURL string

	runCmd := &cobra.Command{
		Use:   "run <target-name>",
		Short: "Navigate a site to its login page, log in and reach the change email section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			report, err := runNavigation(cmd.Context(), cfg, flow.Input{TargetName: args[0], InitialURL: initialURL}, observability.GetLogger())
			if report != nil {
				cmd.Printf("Run %s finished with status %s.\n", report.RunID, report.Status)
			}
			return err
		},
	}

	runCmd.Flags().StringVarP(&initialURL, "url", "u", "", "Starting URL. Skips homepage discovery.")
	runCmd.Flags().String("goal", config.GoalChangeEmail, "Run goal: change-email or login-page. (Overrides config/env)")
	runCmd.Flags().StringP("output", "o", "", "Report file path. Defaults to stdout.")
	runCmd.Flags().StringP("format", "f", "json", "Report format: json, yaml or text.")
	runCmd.Flags().String("engine", config.EngineChromedp, "Browser engine: chromedp or playwright. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	runCmd.Flags().String("classifier", config.ProviderMistral, "Classifier provider: gemini, openai, mistral or stub. (Overrides config/env)")
	runCmd.Flags().String("search", config.SearchBrave, "Search provider: brave or static. (Overrides config/env)")
	runCmd.Flags().Bool("metrics", false, "Serve Prometheus metrics during the run. (Overrides config/env)")
	return runCmd
}

// runNavigation wires the components for one run and executes it. The report
// is returned whenever the flow produced a result, even alongside an error.
func runNavigation(ctx context.Context, cfg *config.Config, in flow.Input, logger *zap.Logger) (*reporting.Report, error) {
	cls, closeClassifier, err := newClassifier(ctx, cfg.Classifier, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	defer func() {
		if err := closeClassifier(); err != nil {
			logger.Warn("Failed to close classifier", zap.Error(err))
		}
	}()

	// Discovery is the only consumer of the search provider.
	var searchProvider schemas.SearchProvider
	if in.InitialURL == "" {
		if searchProvider, err = newSearch(cfg.Search, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize search provider: %w", err)
		}
	}

	launch, err := newLauncher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	var runStore *store.Store
	if cfg.Database.URL != "" {
		pool, closePool, err := openPool(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closePool()
		if runStore, err = store.New(ctx, pool, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize database store: %w", err)
		}
		if err := runStore.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, logger)
		g.Go(metricsServer.Start)
	}

	var report *reporting.Report
	g.Go(func() error {
		if metricsServer != nil {
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), metricsShutdownTimeout)
				defer cancel()
				if err := metricsServer.Stop(stopCtx); err != nil {
					logger.Warn("Failed to stop metrics server", zap.Error(err))
				}
			}()
		}

		return session.With(gctx, cfg, launch, logger, func(sess *session.Context) error {
			runLogger := sess.ForTarget(in.TargetName)
			machine, err := flow.NewMachine(flow.FromSession(sess, cls, searchProvider, runLogger))
			if err != nil {
				return err
			}
			metrics.Instrument(machine)

			startedAt := time.Now()
			res, runErr := machine.Run(gctx, in)
			if res == nil {
				return runErr
			}
			metrics.ObserveResult(res)
			report = reporting.NewReport(sess.RunID, startedAt, res)

			if runStore != nil {
				if err := runStore.SaveRun(context.WithoutCancel(gctx), sess.RunID, startedAt, res); err != nil {
					runLogger.Error("Failed to persist run", zap.Error(err))
				}
			}
			return runErr
		})
	})

	runErr := g.Wait()
	if report == nil {
		return nil, runErr
	}
	if err := writeReport(cfg.Output, report); err != nil {
		return report, errors.Join(runErr, err)
	}
	if runErr != nil {
		return report, runErr
	}
	if report.Status != flow.StatusSuccess {
		return report, fmt.Errorf("%w: status %s: %s", ErrRunUnsuccessful, report.Status, report.LastError)
	}
	return report, nil
}

func writeReport(out config.OutputConfig, report *reporting.Report) error {
	r, err := reporting.New(out.Format, out.Path)
	if err != nil {
		return err
	}
	if err := r.Write(report); err != nil {
		_ = r.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return r.Close()
}
