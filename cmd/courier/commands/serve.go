package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/courier/config"
	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/transmission"
	"github.com/arloliu/courier/transport"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive parts over HTTP and run the resend sweeps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func openStore(path string) (transmission.Store, error) {
	if path == "" {
		return transmission.NewMemoryStore(), nil
	}

	return transmission.OpenBoltStore(path)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.MustGetLogger("courier")
	if lvl, err := logging.LevelFromString(cfg.Log.Level); err == nil && logLevel == "" {
		logging.SetLevel(lvl)
	}
	logging.SetJSON(cfg.Log.JSON)

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close store")
		}
	}()

	httpTransport, err := transport.NewHTTPTransport(
		transport.WithFrom(cfg.HTTP.Address),
		transport.WithHTTPLimits(cfg.HTTP.Limits),
	)
	if err != nil {
		return err
	}

	ctrl, err := transmission.NewController(registry, store, transmission.NewMemoryRecordStore(),
		transmission.WithTransport(httpTransport),
		transmission.WithResendTimeout(cfg.ResendTimeout()),
		transmission.WithMaxResendRequests(cfg.Transmission.MaxResendRequests),
		transmission.WithCodecOptions(cfg.CodecOptions()...),
	)
	if err != nil {
		return err
	}

	if err := addCorrespondents(ctx, ctrl, cfg.Correspondents); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           transport.NewHTTPHandler(ctrl.Receiver(format.TransportHTTP), cfg.HTTP.Limits),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Listening for parts")
		serveErr <- srv.ListenAndServe()
	}()
	go func() {
		if err := ctrl.Run(ctx, cfg.SweepInterval()); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Sweeps stopped")
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func addCorrespondents(ctx context.Context, ctrl *transmission.Controller, list []config.CorrespondentConfig) error {
	logger := logging.MustGetLogger("courier")
	for _, cc := range list {
		kind, ok := format.ParseTransportKind(cc.Kind)
		if !ok {
			return fmt.Errorf("%w: transport kind %q", errs.ErrInvalidValue, cc.Kind)
		}
		if _, err := ctrl.Store().FindCorrespondent(ctx, kind, cc.Address); err == nil {
			continue
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		corr, err := ctrl.AddCorrespondent(ctx, cc.Name, cc.Address, kind)
		if err != nil {
			return err
		}
		logger.WithField("correspondent", corr).Info("Added correspondent")
	}

	return nil
}
