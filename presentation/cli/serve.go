package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"selfheal/application/healing"
	"selfheal/domain/interfaces"
	"selfheal/infrastructure/browser"
	"selfheal/presentation/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the realtime channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from server.addr)")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	driver, err := browser.NewDriver(a.browserOptions(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer driver.Close()

	opts, err := a.controllerOptions()
	if err != nil {
		return err
	}

	factory := func(sink interfaces.EventSink) *healing.Controller {
		return healing.NewController(driver, store.Locators(), sink, a.logger, opts...)
	}
	channels := web.NewChannelHandler(factory, a.logger, a.cfg.Server.AllowedOrigins, a.cfg.Server.MaxMessageBytes)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           web.NewServer(store, channels, a.logger),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"storage": a.cfg.Storage.Backend,
			"engine":  a.cfg.Browser.Engine,
		}).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
