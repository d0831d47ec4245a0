package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kasbot/internal/dashboard"
	"kasbot/internal/dispatch"
	"kasbot/internal/i18n"
	"kasbot/internal/ledger"
	"kasbot/internal/logging"
	"kasbot/internal/metrics"
	"kasbot/internal/poller"
	"kasbot/internal/sender"
	"kasbot/internal/session"
	"kasbot/internal/supervisor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runBot starts the supervisor and the dashboard as independent tasks. They
// share the metrics registry and the ledger file, nothing else.
func runBot(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Bot.Enabled && !cfg.Dashboard.Enabled {
		return errors.New("nothing to run: both bot.enabled and dashboard.enabled are false")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	m := metrics.New(reg)
	out := cmd.OutOrStdout()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Bot.Enabled {
		g.Go(func() error {
			return runSupervisor(gctx, m, func(path string) {
				fmt.Fprintln(out, infoStyle.Render("Scan the login code:"), path)
			})
		})
	}
	if cfg.Dashboard.Enabled {
		g.Go(func() error {
			fmt.Fprintln(out, successStyle.Render("Dashboard:"), "http://"+cfg.Dashboard.Addr)
			return serveDashboard(gctx, reg)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logging.Boot("shutdown complete")
		return nil
	}
	return err
}

func serveOnly(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	metrics.New(reg)
	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Dashboard:"), "http://"+cfg.Dashboard.Addr)
	return serveDashboard(ctx, reg)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func openLedger() (*ledger.Store, error) {
	return ledger.Open(cfg.Ledger.DatabasePath, ledger.WithBusyTimeout(cfg.GetBusyTimeout()))
}

// loadCatalogs returns the dictionary store and a stop function for the file
// watcher, if one was started.
func loadCatalogs(ctx context.Context) (*i18n.Store, func(), error) {
	store, err := loadDictionary()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Locale.File == "" || !cfg.Locale.Watch {
		return store, func() {}, nil
	}

	w, err := i18n.NewWatcher(cfg.Locale.File, store)
	if err != nil {
		return nil, nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, nil, err
	}
	return store, w.Stop, nil
}

func runSupervisor(ctx context.Context, m *metrics.Metrics, onArtifact func(string)) error {
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.BootWarn("closing ledger: %v", err)
		}
	}()

	catalogs, stopWatch, err := loadCatalogs(ctx)
	if err != nil {
		return err
	}
	defer stopWatch()

	responder := supervisor.NewResponder(
		dispatch.New(store, catalogs, dispatch.WithMetrics(m)),
		sender.New(sender.ConfigFrom(cfg)),
		m,
	)
	p := poller.New(poller.ConfigFrom(cfg), responder, poller.WithMetrics(m))
	ctrl := session.NewController(session.ConfigFrom(cfg),
		session.WithMetrics(m),
		session.WithArtifactHook(onArtifact),
	)

	logging.Boot("supervisor starting (ledger %s)", store.Path())
	return supervisor.New(supervisor.ConfigFrom(cfg), ctrl, p, supervisor.WithMetrics(m)).Run(ctx)
}

func serveDashboard(ctx context.Context, gatherer prometheus.Gatherer) error {
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.BootWarn("closing dashboard ledger: %v", err)
		}
	}()

	srv := dashboard.New(store, gatherer)
	return srv.ListenAndServe(ctx, cfg.Dashboard.Addr, cfg.GetShutdownTimeout())
}
