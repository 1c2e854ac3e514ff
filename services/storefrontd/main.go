package storefrontd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/core/state"
	"storefront/native/sale"
	"storefront/observability/logging"
	telemetry "storefront/observability/otel"
	"storefront/services/storefrontd/config"
	"storefront/services/storefrontd/feeds"
	"storefront/services/storefrontd/server"
	"storefront/services/storefrontd/storage"
	chainstore "storefront/storage"
)

const roleSaleAdmin = "ROLE_SALE_ADMIN"

// Main runs the storefront daemon using the provided command line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/storefrontd/config.yaml", "path to storefrontd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NHB_ENV"))
	logger := logging.Setup("storefrontd", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "storefrontd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	admin, err := cfg.AdminAddress()
	if err != nil {
		return fmt.Errorf("resolve admin address: %w", err)
	}

	db, err := chainstore.NewLevelDB(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := bootstrapState(manager, cfg.Tokens, admin); err != nil {
		return fmt.Errorf("bootstrap state: %w", err)
	}

	registry := sale.NewRegistry(manager)
	registry.SetEmitter(logEmitter{logger: logger})
	registry.SetPauses(configPauses{paused: cfg.Paused})

	feed, closeFeed, err := buildFeed(cfg.Feeds)
	if err != nil {
		return fmt.Errorf("build price feed: %w", err)
	}
	if closeFeed != nil {
		defer closeFeed()
	}

	engine := sale.NewEngine(registry, manager, feed)

	dsn, err := storage.FileDSN(cfg.QuoteLogPath)
	if err != nil {
		return fmt.Errorf("resolve quote log DSN: %w", err)
	}
	quoteLog, err := storage.Open(dsn)
	if err != nil {
		return fmt.Errorf("open quote log: %w", err)
	}
	defer func() { _ = quoteLog.Close() }()

	srv, err := server.New(server.Config{
		Registry:    registry,
		Engine:      engine,
		QuoteLog:    quoteLog,
		Admin:       admin,
		BearerToken: cfg.Admin.BearerToken,
		Logger:      logger,
		Metrics:     NewMetrics(),
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	logger.Info("admin authentication configured",
		logging.MaskField("bearer_token", cfg.Admin.BearerToken),
		slog.String("admin", cfg.Admin.Address),
	)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(srv.Handler(), "storefrontd"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)
	go func() {
		logger.Info("metrics listening", slog.String("address", cfg.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("storefrontd listening", slog.String("address", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		_ = httpServer.Shutdown(shutdownCtx)
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// bootstrapState registers configured sale assets and grants the admin role.
// Symbols already present in the state database are left untouched so restarts
// never clobber live metadata.
func bootstrapState(manager *state.Manager, tokens []config.Token, admin [20]byte) error {
	for _, token := range tokens {
		existing, err := manager.Token(token.Symbol)
		if err != nil {
			return fmt.Errorf("inspect token %s: %w", token.Symbol, err)
		}
		if existing != nil {
			continue
		}
		if err := manager.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			return fmt.Errorf("register token %s: %w", token.Symbol, err)
		}
	}
	return manager.SetRole(roleSaleAdmin, admin[:])
}

func buildFeed(cfg config.FeedsConfig) (sale.PriceFeed, func(), error) {
	switch cfg.Mode {
	case config.FeedModeChainlink:
		client, err := feeds.DialClient(cfg.RPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial evm rpc: %w", err)
		}
		return feeds.NewChainlink(client, cfg.Timeout.Duration), client.Close, nil
	case config.FeedModeStatic:
		rounds := make([]feeds.StaticRound, 0, len(cfg.Static))
		for _, entry := range cfg.Static {
			addr, err := feeds.ParseFeedAddress(entry.Feed)
			if err != nil {
				return nil, nil, fmt.Errorf("static feed %q: %w", entry.Feed, err)
			}
			answer, ok := new(big.Int).SetString(strings.TrimSpace(entry.Answer), 10)
			if !ok {
				return nil, nil, fmt.Errorf("static feed %q: invalid answer %q", entry.Feed, entry.Answer)
			}
			rounds = append(rounds, feeds.StaticRound{
				Feed:        addr,
				Answer:      answer,
				Decimals:    entry.Decimals,
				Description: entry.Description,
			})
		}
		return feeds.NewStatic(rounds), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported feed mode %q", cfg.Mode)
	}
}
