package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled engagement sweep and expose metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("cron"); v != "" {
			cfg.Schedule.Cron = v
		}
		if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
			cfg.MetricsAddr = v
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sched, err := a.Scheduler()
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := a.Store.DB().PingContext(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		a.Log.Info("metrics listening", "addr", cfg.MetricsAddr)

		sched.Start()
		if now, _ := cmd.Flags().GetBool("now"); now {
			if err := sched.RunNow(); err != nil {
				a.Log.Warn("immediate sweep", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			a.Log.Info("shutting down")
		case err = <-errCh:
			a.Log.Error("metrics server failed", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			a.Log.Warn("metrics server shutdown", "error", serr)
		}
		if serr := sched.Stop(); serr != nil {
			a.Log.Warn("scheduler shutdown", "error", serr)
		}
		return err
	},
}

func init() {
	serveCmd.Flags().String("cron", "", "Sweep schedule, five-field cron in UTC (overrides the policy file)")
	serveCmd.Flags().String("metrics-addr", "", "Address for /metrics and /healthz")
	serveCmd.Flags().Bool("now", false, "Run one sweep immediately after starting")
}
