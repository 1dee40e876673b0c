package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"tensord/internal/httpapi"
	"tensord/internal/manager"
)

func newServeCmd(o *cliOptions) *cobra.Command {
	var (
		addr        string
		loadTimeout int64
		shutdown    time.Duration
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP observability and model cache API",
		Example: "  tensord serve --addr :8080 --config /etc/tensord.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				o.cfg.Addr = addr
			}
			mc, err := managerConfig(o.cfg, &o.log)
			if err != nil {
				return err
			}
			mc.Registerer = prometheus.DefaultRegisterer
			mgr, err := manager.NewWithConfig(mc)
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, o, mgr, loadTimeout, shutdown)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080 (overrides addr)")
	cmd.Flags().Int64Var(&loadTimeout, "load-timeout", 0, "Seconds a model load request may wait (0 disables)")
	cmd.Flags().DurationVar(&shutdown, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	return cmd
}

// serve runs the HTTP server until ctx is done, then shuts it down.
func serve(ctx context.Context, o *cliOptions, mgr *manager.Manager, loadTimeout int64, shutdown time.Duration) error {
	httpapi.SetLogger(o.log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetLoadTimeoutSeconds(loadTimeout)
	httpapi.SetCORSOptions(o.cfg.CORSEnabled, o.cfg.CORSAllowedOrigins, nil, []string{"Content-Type"})

	srv := &http.Server{
		Addr:              o.cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	st := mgr.Status()
	o.log.Info().
		Str("addr", o.cfg.Addr).
		Str("mode", st.Mode).
		Str("models_dir", o.cfg.ModelCacheDirectory).
		Str("buffer_size", humanize.IBytes(o.cfg.DefaultBufferSizeBytes)).
		Str("cache_budget", humanize.IBytes(o.cfg.MaxCacheMemoryBytes)).
		Msg("tensord listening")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		o.log.Warn().Err(err).Msg("graceful shutdown error")
	}
	o.log.Info().Msg("tensord stopped")
	return nil
}
