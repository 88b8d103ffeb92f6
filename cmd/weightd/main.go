package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adgrid-network/weightd/internal/config"
	"github.com/adgrid-network/weightd/internal/logger"
	"github.com/adgrid-network/weightd/internal/observability"
	"github.com/adgrid-network/weightd/internal/opsapi"
	"github.com/adgrid-network/weightd/internal/percentile"
	"github.com/adgrid-network/weightd/internal/pipeline"
	"github.com/adgrid-network/weightd/internal/statsapi"
	"github.com/adgrid-network/weightd/internal/storage"
	"github.com/adgrid-network/weightd/internal/submit"
	"github.com/adgrid-network/weightd/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	runOnce    = flag.Bool("once", false, "Run a single epoch and exit")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(
		cfg.Storage.MaxIterations,
		cfg.Storage.DBPath,
	)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	apiClient := statsapi.NewClient(
		cfg.API.BaseURL,
		cfg.API.Timeout,
		statsapi.ClientConfig{
			MaxRetries:          cfg.API.MaxRetries,
			RetryDelayBase:      cfg.API.RetryDelayBase,
			ConfigTTL:           cfg.API.ConfigTTL,
			MaxIdleConns:        cfg.API.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.API.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.API.IdleConnTimeout,
		},
	)

	tracker := percentile.NewTracker(store)
	submitter := submit.NewRecorder(submit.DryRun{}, store)

	var metrics *observability.Metrics
	if cfg.Ops.Enabled && !*runOnce {
		metrics = observability.NewMetrics()
	}

	pipe := pipeline.New(
		pipeline.Providers{
			Stats:        apiClient,
			ScopeConfigs: apiClient,
			Campaigns:    apiClient,
			BurnPolicies: apiClient,
			Beneficiary:  apiClient,
			Pending:      apiClient,
		},
		tracker,
		store,
		submitter,
		metrics,
	)
	pipe.SetMaxParallel(cfg.Epoch.MaxParallel)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if *runOnce {
		logger.Info("Running single epoch")
		if err := runEpoch(ctx, pipe, telegramClient, cfg); err != nil {
			logger.Fatal("Epoch failed: %v", err)
		}
		return
	}

	var opsSrv *opsapi.Server
	if cfg.Ops.Enabled {
		opsSrv = opsapi.New(cfg.Ops.Listen, store, metrics, pipe)
		go opsSrv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := opsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down ops server: %v", err)
			}
		}()
	}

	if cfg.Telegram.Enabled && telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting weight engine (interval: %v, max_parallel: %d)",
		cfg.Epoch.Interval,
		cfg.Epoch.MaxParallel,
	)

	ticker := time.NewTicker(cfg.Epoch.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleEpochResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Epoch failed: %v", err)
			if consecutiveFailures == 1 && cfg.Telegram.Enabled && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && cfg.Telegram.Enabled && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial epoch")
	handleEpochResult(runEpoch(ctx, pipe, telegramClient, cfg))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled epoch")
			handleEpochResult(runEpoch(ctx, pipe, telegramClient, cfg))
		}
	}
}

func runEpoch(
	ctx context.Context,
	pipe *pipeline.Pipeline,
	telegramClient *telegram.Client,
	cfg *config.Config,
) error {
	logger.Info("Starting epoch")

	res, err := pipe.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("Epoch %s %s: %d campaigns (%d failed), %d weights in %v",
		res.IterationID, res.Outcome, res.Campaigns, res.CampaignsFailed,
		len(res.Weights), res.Duration)

	if cfg.Telegram.Enabled && telegramClient != nil {
		summary := telegram.Summary{
			IterationID:     res.IterationID,
			Outcome:         res.Outcome,
			Campaigns:       res.Campaigns,
			CampaignsFailed: res.CampaignsFailed,
			Beneficiary:     res.Beneficiary,
			Weights:         res.Weights,
			Duration:        res.Duration,
		}
		if sendErr := telegramClient.SendSummary(summary); sendErr != nil {
			logger.Warn("Failed to send submission summary to Telegram: %v", sendErr)
		}
	}

	return nil
}
