package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevemurr/collection-server/config"
	"github.com/stevemurr/collection-server/handler"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(deps *CmdDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := deps.open(cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := rt.cfg
			h := handler.New(rt.store,
				handler.WithLogger(rt.log),
				handler.WithAllowedOrigins(cfg.AllowedOrigins),
				handler.WithPageSizes(cfg.DefaultPerPage, cfg.MaxPerPage),
				handler.WithMaxBodyBytes(cfg.MaxBodyBytes),
			)

			ln, err := net.Listen("tcp", cfg.Addr())
			if err != nil {
				return err
			}
			rt.log.Info("collection server starting",
				"addr", ln.Addr().String(),
				"store", cfg.StoreBackend,
				"data", cfg.DataDir)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, ln, h, rt.log)
		},
	}

	f := cmd.Flags()
	f.String("host", config.DefaultHost, "listen host")
	f.Int("port", config.DefaultPort, "listen port")
	f.StringSlice("allowed-origins", config.DefaultConfig.AllowedOrigins, "CORS origins, * allows all")
	f.Int("default-per-page", config.DefaultDefaultPerPage, "page size when the client sends none")
	f.Int("max-per-page", config.DefaultMaxPerPage, "largest page size a client may request")
	f.Int64("max-body-bytes", config.DefaultMaxBodyBytes, "largest accepted request body")
	return cmd
}

// runServer serves h on ln until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, ln net.Listener, h http.Handler, lg *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
