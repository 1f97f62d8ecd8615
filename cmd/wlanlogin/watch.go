package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/wlanlogin/api"
)

func newWatchCmd() *cobra.Command {
	var flags portalFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the machine online, logging in whenever the portal intercepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logCloser, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logCloser)
			if err != nil {
				logCloser.Close()
				return err
			}
			defer a.Close()
			return a.watch(cmd.Context())
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) watch(parent context.Context) error {
	cfg := a.cfg
	a.log.Info("wlanlogin starting",
		"version", version,
		"login_url", cfg.Portal.LoginURL,
		"vendor", cfg.Portal.Vendor,
		"backend", cfg.Browser.Backend,
		"server", cfg.Server.Enabled,
	)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// ── 1. Optional status API ──────────────────────────────────────
	var srv *http.Server
	if cfg.Server.Enabled {
		router := api.NewRouter(ctx, a.sup, a.metrics, cfg, time.Now(), version)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv = &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.log.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("HTTP server error", "error", err)
				cancel()
			}
		}()
	}

	// ── 2. Supervisor loop ──────────────────────────────────────────
	done := make(chan error, 1)
	go func() { done <- a.sup.Watch(ctx) }()

	// ── 3. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var watchErr error
	select {
	case sig := <-quit:
		a.log.Info("shutdown signal received", "signal", sig.String())
		cancel()
		watchErr = <-done
	case watchErr = <-done:
		cancel()
	}

	if srv != nil {
		// Give in-flight requests 5 seconds to complete.
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("HTTP server forced shutdown", "error", err)
		} else {
			a.log.Info("HTTP server drained gracefully")
		}
	}

	slog.Info("wlanlogin stopped")
	return watchErr
}
