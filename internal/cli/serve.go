package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/straja-ai/threatkit/internal/app"
	"github.com/straja-ai/threatkit/internal/server"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			srv, err := server.New(cfg.Server, a.ServerDeps())
			if err != nil {
				_ = a.Close(context.Background())
				return err
			}

			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error {
				a.Warm()
				return nil
			})
			grp.Go(func() error { return srv.Run(gctx) })
			runErr := grp.Wait()

			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return errors.Join(runErr, a.Close(closeCtx))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}
