package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldforge/schnorrauth/internal/acceptor"
	"github.com/coldforge/schnorrauth/internal/adminapi"
	"github.com/coldforge/schnorrauth/internal/authstore"
	"github.com/coldforge/schnorrauth/internal/group"
	"github.com/coldforge/schnorrauth/internal/logger"
	"github.com/coldforge/schnorrauth/internal/metrics"
	"github.com/coldforge/schnorrauth/internal/metrics/prometheus"
	"github.com/coldforge/schnorrauth/internal/protocol"
	"github.com/coldforge/schnorrauth/internal/registry"
	"github.com/coldforge/schnorrauth/internal/store"
	"github.com/coldforge/schnorrauth/internal/store/memstore"
	"github.com/coldforge/schnorrauth/internal/store/sqlstore"
	"github.com/coldforge/schnorrauth/pkg/config"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the schnorrauthd server",
	Long: `Start the schnorrauthd server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/schnorrauthd/config.yaml.

Examples:
  # Start with the default config location
  schnorrauthd start

  # Start with a custom config file
  schnorrauthd start --config /etc/schnorrauthd/config.yaml

  # Start with environment variable overrides
  SCHNORRAUTH_LOGGING_LEVEL=DEBUG schnorrauthd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()), "group", cfg.Group.ID)
	config.WatchLogLevel(GetConfigFile())

	g, err := group.Get(cfg.Group.ID)
	if err != nil {
		return fmt.Errorf("failed to load group %q: %w", cfg.Group.ID, err)
	}

	docs, err := newDocumentStore(cfg)
	if err != nil {
		return err
	}

	users := authstore.New(docs)
	pairing := registry.New()

	var reg *promclient.Registry
	var m metrics.Metrics = metrics.Noop
	if cfg.Metrics.Enabled {
		reg = promclient.NewRegistry()
		m = prometheus.New(reg)
		logger.Info("metrics enabled")
	} else {
		logger.Info("metrics disabled")
	}

	handler := protocol.New(g, users, pairing, m)
	a := acceptor.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), handler)
	if err := a.Listen(); err != nil {
		return fmt.Errorf("failed to bind protocol listener: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrs := make(chan error, 2)
	go func() {
		serveErrs <- a.Serve(ctx)
	}()
	logger.Info("protocol listener started", "address", a.Addr().String())

	adminSrv, err := startAdminServer(cfg, users, reg, serveErrs)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serveErrs:
		if err != nil {
			logger.Error("server error", logger.Err(err))
			cancel()
			return err
		}
	}

	cancel()
	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin API shutdown error", logger.Err(err))
		}
	}

	logger.Info("server stopped")
	return nil
}

// newDocumentStore selects and opens the persistence backend named by
// cfg.Storage.Driver.
func newDocumentStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memstore.New(), nil
	case "sqlite", "postgres":
		s, err := sqlstore.New(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

// startAdminServer launches the admin HTTP API in the background if enabled,
// forwarding its terminal error onto serveErrs the same way the protocol
// acceptor does. Returns nil if the admin API is disabled.
func startAdminServer(cfg *config.Config, users *authstore.Store, reg *promclient.Registry, serveErrs chan<- error) (*adminapi.Server, error) {
	if !cfg.Admin.Enabled {
		logger.Info("admin API disabled")
		return nil, nil
	}

	jwtSvc, err := adminapi.NewJWTService(adminapi.JWTConfig{
		Secret:              cfg.Admin.JWTSecret,
		Issuer:              cfg.Admin.JWTIssuer,
		AccessTokenDuration: cfg.Admin.AccessTokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure admin API: %w", err)
	}

	var metricsHandler http.Handler
	if reg != nil {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	router := adminapi.NewRouter(users, jwtSvc, metricsHandler)
	addr := fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port)
	srv := adminapi.NewServer(addr, router)

	go func() {
		serveErrs <- srv.Serve()
	}()
	logger.Info("admin API started", "address", addr)

	return srv, nil
}
