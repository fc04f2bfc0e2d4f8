package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/tokengate/internal/bus"
	"github.com/amoylab/tokengate/internal/common/cnst"
	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/amoylab/tokengate/internal/gateway"
	"github.com/amoylab/tokengate/internal/identity"
	"github.com/amoylab/tokengate/internal/ledger"
	"github.com/amoylab/tokengate/internal/server"
	"github.com/amoylab/tokengate/internal/storage"
	"github.com/amoylab/tokengate/pkg/logger"
	"github.com/amoylab/tokengate/pkg/metrics"
	"github.com/amoylab/tokengate/pkg/trace"
	"github.com/amoylab/tokengate/pkg/utils"
	"github.com/amoylab/tokengate/pkg/version"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of " + cnst.CommandName,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", cnst.CommandName, version.Full())
		},
	}

	testCmd = &cobra.Command{
		Use:   "test",
		Short: "Test the configuration file",
		Long:  "Load and validate the configuration file without starting the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration %s: %w", cfgPath, err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("configuration file %s test is successful\n", cfgPath)
			return nil
		},
	}

	rootCmd = &cobra.Command{
		Use:          cnst.CommandName,
		Short:        "Token gated real-time gateway",
		Long:         `tokengate admits WebSocket clients holding enough of a Solana token and relays their messages to a backend bus`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.GatewayYaml, "path to configuration file, like /etc/tokengate/tokengate.yaml")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(testCmd)
}

func run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration %s: %w", cfgPath, err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	lg.Info("Starting "+cnst.CommandName,
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			lg.Warn("Failed to shutdown tracing", zap.Error(err))
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}

	if cfg.Server.PID != "" {
		removePID, err := utils.WritePIDFile(cfg.Server.PID)
		if err != nil {
			return err
		}
		defer func() { _ = removePID() }()
	}

	var rdb redis.UniversalClient
	if needsRedis(cfg) {
		rdb, err = storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	provider, err := identity.NewProvider(lg, cfg.Identity)
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	var oracle gateway.BalanceOracle
	if cfg.Admission.EligibilityEnabled() {
		cache, err := ledger.NewCache(lg, cfg.Admission.Cache, rdb, time.Now)
		if err != nil {
			return fmt.Errorf("failed to initialize balance cache: %w", err)
		}
		solana := ledger.NewSolanaClient(cfg.Ledger.RPCURL, cfg.Ledger.Commitment, trace.HTTPClient(cfg.Ledger.Timeout))
		oracle = ledger.NewOracle(lg, solana, cache, cfg.Ledger.Mint, m)
	}

	deps := bus.Deps{
		Redis:      rdb,
		HTTPClient: trace.HTTPClient(cfg.Bus.HTTP.Timeout),
	}
	if cfg.Bus.Publisher == cnst.BusTypeMemory || cfg.Bus.Subscriber == cnst.BusTypeMemory {
		deps.Memory = bus.NewMemoryBus(cfg.Bus.Memory)
	}
	publisher, err := bus.NewPublisher(lg, cfg.Bus, deps)
	if err != nil {
		return fmt.Errorf("failed to initialize bus publisher: %w", err)
	}
	defer publisher.Close()
	subscriber, err := bus.NewSubscriber(ctx, lg, cfg.Bus, deps)
	if err != nil {
		return fmt.Errorf("failed to initialize bus subscriber: %w", err)
	}
	defer subscriber.Close()

	registry := gateway.NewRegistry(m)
	srv := server.NewServer(lg, cfg, server.Components{
		Admitter: gateway.NewAdmitter(lg, provider, oracle, gateway.PolicyFromConfig(cfg), m),
		Registry: registry,
		Router:   gateway.NewRouter(lg, publisher, m),
	}, m)
	bridge := gateway.NewBridge(lg, subscriber, registry, srv.Hub(), m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return bridge.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Shutting down gateway")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("Gateway stopped with error", zap.Error(err))
		return err
	}
	lg.Info("Gateway stopped")
	return nil
}

// needsRedis reports whether any configured component talks to redis
func needsRedis(cfg *config.GatewayConfig) bool {
	if cfg.Admission.EligibilityEnabled() && cfg.Admission.Cache.Type == cnst.CacheTypeRedis {
		return true
	}
	return cfg.Bus.Publisher == cnst.BusTypeRedis || cfg.Bus.Subscriber == cnst.BusTypeRedis
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
