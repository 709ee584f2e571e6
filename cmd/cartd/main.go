package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alferdousrana/Lifesheba/internal/api"
	"github.com/alferdousrana/Lifesheba/internal/auth"
	"github.com/alferdousrana/Lifesheba/internal/cart"
	"github.com/alferdousrana/Lifesheba/internal/checkout"
	"github.com/alferdousrana/Lifesheba/internal/config"
	"github.com/alferdousrana/Lifesheba/internal/domain"
	h "github.com/alferdousrana/Lifesheba/internal/http"
	"github.com/alferdousrana/Lifesheba/internal/logging"
	"github.com/alferdousrana/Lifesheba/internal/metrics"
	"github.com/alferdousrana/Lifesheba/internal/poller"
	"github.com/alferdousrana/Lifesheba/internal/pricing"
	"github.com/alferdousrana/Lifesheba/internal/storage"
)

var (
	configPath string
	verbose    bool
	sessionID  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cartd",
		Short:         "Persistent shopping cart service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&sessionID, "session", "", "cart session (empty for the default cart)")

	root.AddCommand(
		newServeCmd(),
		newShowCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newStepCmd("inc", domain.Increase),
		newStepCmd("dec", domain.Decrease),
		newClearCmd(),
		newQuoteCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newCheckoutCmd(),
	)
	return root
}

// app is the wiring shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	storage  storage.Storage
	carts    *cart.Registry
	api      *api.Client
	checkout *checkout.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	st, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	shipping, err := pricing.NewShippingPolicy(cfg.Shipping.Rule)
	if err != nil {
		st.Close()
		logger.Sync()
		return nil, err
	}

	m := metrics.New()
	apiClient := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	carts := cart.NewRegistry(st, cfg.Cart.SlotKey,
		cart.WithRegistryLogger(logger),
		cart.WithRegistryMetrics(m),
		cart.WithWatch(cfg.Cart.Watch),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		storage:  st,
		carts:    carts,
		api:      apiClient,
		checkout: checkout.NewService(apiClient, shipping, logger, m, checkout.WithProfiles(apiClient)),
	}, nil
}

func (a *app) Close() {
	a.carts.Close()
	if err := a.storage.Close(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
	a.logger.Sync()
}

func (a *app) auth() *auth.Store {
	return auth.NewStore(a.storage, a.api, a.cfg.API.TokenKey, a.logger)
}

// withApp runs fn with a fully wired app and tears it down afterwards.
func withApp(fn func(ctx context.Context, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the cart HTTP API",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app) error {
			return serve(ctx, a)
		}),
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := a.logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cartHandler := h.NewCartHandler(a.carts, a.checkout, logger, cfg.HTTP.MaxBodyBytes)
	router := h.NewRouter(cartHandler, h.RouterConfig{
		SessionHeader:  cfg.Cart.SessionHeader,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Metrics:        a.metrics.Handler(),
		Logger:         logger,
	})

	var pollerDone chan struct{}
	if cfg.Kafka.Enabled {
		p := poller.NewPoller(a.carts, logger, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Brokers...)
		pollerDone = make(chan struct{})
		go func() {
			defer close(pollerDone)
			defer p.Close()
			p.Run(ctx)
		}()
		logger.Info("checkout listener started",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	srv := &http.Server{
		Addr:        ":" + cfg.HTTP.Port,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	// Cancelling ctx ends open event streams.
	srv.RegisterOnShutdown(cancel)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("cartd starting",
			zap.String("port", cfg.HTTP.Port),
			zap.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case <-quit:
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	cancel()
	if pollerDone != nil {
		<-pollerDone
	}

	logger.Info("server exited")
	return runErr
}
