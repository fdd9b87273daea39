package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"DynamicVault/internal/collector"
	"DynamicVault/internal/config"
	"DynamicVault/internal/logging"
	"DynamicVault/internal/metrics"
	"DynamicVault/internal/notifier"
	"DynamicVault/internal/pool"
	"DynamicVault/internal/recorder"
	"DynamicVault/internal/scheduler"
	"DynamicVault/internal/server"
	"DynamicVault/internal/store"
	"DynamicVault/internal/vault"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("config validation", zap.Error(err))
	}
	log.Info("dynamic vault keeper starting", zap.String("config", cfgPath))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("keeper stopped", zap.Error(err))
	}
	log.Info("dynamic vault keeper stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	vaultStore, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "-" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		} else {
			rec = sr
		}
	}
	defer func() { _ = rec.Close() }()

	var adapter vault.PoolAdapter
	switch cfg.Pool.Mode {
	case "mock":
		adapter = pool.NewMockPool()
	default:
		adapter = pool.NewHTTPPool(cfg.Pool.BaseURL, cfg.Pool.APIKey, cfg.Proxy)
	}
	log.Info("pool adapter ready", zap.String("mode", cfg.Pool.Mode))

	vm := vault.NewManager(adapter, vaultStore, rec, log.Named("vault"))
	vm.Metrics = metrics.Vault()
	if _, err := vm.Restore(ctx); err != nil {
		return err
	}

	admin := cfg.AdminKey()
	if _, ok := vm.Snapshot(admin); !ok {
		_, err := vm.Initialize(ctx, admin, vault.Params{
			FeeTokenAccount:    cfg.FeeTokenAccountKey(),
			RebalanceThreshold: uint8(cfg.Vault.RebalanceThreshold),
			MaxFeeAmount:       cfg.Vault.MaxFeeAmount,
			MinRebalanceDelay:  cfg.Vault.MinRebalanceDelay,
		})
		if err != nil {
			return fmt.Errorf("initialize vault: %w", err)
		}
	}

	var fetcher collector.Fetcher
	switch cfg.PriceFeed.Source {
	case "yahoo":
		fetcher = collector.NewYahooFetcher(cfg.Proxy)
	case "mock":
		fetcher = &collector.MockFetcher{Price: 100}
	default:
		fetcher = collector.NewSidecarFetcher(cfg.PriceFeed.BaseURL, cfg.PriceFeed.APIKey, cfg.Proxy)
	}
	log.Info("price source ready", zap.String("source", fetcher.Name()), zap.String("symbol", cfg.PriceFeed.Symbol))
	col := collector.NewCollector(fetcher, cfg.PriceFeed.Symbol)

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log.Named("telegram"))

	sched := scheduler.NewScheduler(ctx, col, vm, tn, admin, log.Named("scheduler"))
	sched.AutoRebalance = cfg.Keeper.AutoRebalance
	sched.RebalanceTokenAmount = cfg.Keeper.RebalanceTokenAmount
	if err := sched.RegisterAll(cfg.Keeper.PriceCron, cfg.Keeper.HarvestCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn.Enabled() {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		go sched.RunPriceNow()
	}

	handler := server.NewRouter(vm, prometheus.DefaultGatherer, log.Named("server"))
	if err := server.Serve(ctx, cfg.Server.Listen, handler, log); err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func openStore(cfg *config.Config, log *zap.Logger) (vault.Store, func(), error) {
	if cfg.Database.SQLitePath == "-" {
		log.Info("using file store", zap.String("path", cfg.Database.StateFile))
		return store.NewFileStore(cfg.Database.StateFile), func() {}, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.SQLitePath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open vault store: %w", err)
	}
	return s, func() { _ = s.Close() }, nil
}
