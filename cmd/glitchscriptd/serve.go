package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"glitchscript/internal/config"
	"glitchscript/internal/hostadapter"
	"glitchscript/internal/linkbus"
	glog "glitchscript/internal/log"
	"glitchscript/internal/manager"
	"glitchscript/internal/manager/store"
	"glitchscript/internal/metrics"
	"glitchscript/internal/protocol"
	"glitchscript/internal/timers"
	"glitchscript/internal/worker"
)

var metricsAddr string

// serveCmd starts the manager, places it behind a host adapter, and serves
// Prometheus metrics until SIGINT/SIGTERM (spec §4.11, grounded on
// dagu-org-dagu's cmd/server.go + cmd/signal.go listenSignals pattern).
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the script manager daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	return cmd
}

func runServe() error {
	cfg, err := config.Load(newViper())
	if err != nil {
		return fmt.Errorf("glitchscriptd: load config: %w", err)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("glitchscriptd: open store %s: %w", cfg.DatabasePath, err)
	}
	defer db.Close()

	mgr := manager.New(db,
		manager.WithWorkerOptions(
			worker.WithSlotCount(cfg.SlotCount),
			worker.WithSlotCap(cfg.SlotCap),
			worker.WithBounds(cfg.LoopBound, cfg.RecursionBound),
			worker.WithWatchdog(cfg.WatchdogPeriod, cfg.WatchdogPeriod*2),
		),
		manager.WithTimerOptions(timers.WithResolution(cfg.TimerResolution)),
		manager.WithLinkBusOptions(linkbus.WithBound(cfg.LinkQueueBound)),
		manager.WithTranspileBounds(cfg.LoopBound, cfg.RecursionBound),
	)
	mgr.SetLogHandler(func(scriptID, level string, args []any) {
		glog.Info("script log", append([]any{"scriptId", scriptID, "level", level}, args...)...)
	})
	mgr.SetErrorHandler(func(scriptID, message string) {
		glog.Error("script runtime error", "scriptId", scriptID, "message", message)
	})
	mgr.Start()
	defer mgr.Stop()

	adapter := hostadapter.New(mgr, db)
	// No host application is wired into this standalone daemon; commands
	// are logged rather than dropped, so an operator running glitchscriptd
	// bare still sees what a script tried to call.
	adapter.OnScriptCommand(func(envelope protocol.CommandEnvelope) (any, error) {
		glog.Info("unhandled script command", "scriptId", envelope.ScriptID, "command", envelope.Command.Type)
		return nil, nil
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(mgr))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe() }()
	glog.Info("glitchscriptd: serving", "metricsAddr", metricsAddr, "slotCount", cfg.SlotCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		glog.Info("glitchscriptd: shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("glitchscriptd: metrics server: %w", err)
		}
	}
	return server.Close()
}
