package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/coordinator"
	"github.com/iqap-dev/iqap-runner/events"
	"github.com/iqap-dev/iqap-runner/executor"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/queue"
	"github.com/iqap-dev/iqap-runner/testcase"
	"github.com/iqap-dev/iqap-runner/testrun"
	"github.com/iqap-dev/iqap-runner/visual"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a run execution worker",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogrusLogger(cfg.Log.Level)
	log.Info(ctx, "starting run worker", map[string]interface{}{
		"version":     Version,
		"max_workers": cfg.Worker.MaxWorkers,
	})

	db, err := connectDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	blobs, err := newBlobStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	dispatch, err := queue.NewNATSQueue(queue.NATSConfig{
		URL:     cfg.NATS.URL,
		Subject: cfg.NATS.DispatchSubject,
		Group:   cfg.NATS.DispatchGroup,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect dispatch queue: %w", err)
	}
	defer dispatch.Close()

	emitter, err := events.NewNATSEmitter(events.NATSConfig{
		URL:           cfg.NATS.URL,
		SubjectPrefix: cfg.NATS.EventsPrefix,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect event emitter: %w", err)
	}
	defer emitter.Close()

	pwRun, browser, err := launchBrowser(cfg)
	if err != nil {
		return err
	}
	defer pwRun.Stop()
	defer browser.Close()

	coord := coordinator.New(coordinator.Config{
		Runs:       testrun.NewMySQLStore(db, log),
		Cases:      testcase.NewMySQLStore(db, log),
		Blueprints: blueprint.NewCrawler(browser, cfg.Browser.CrawlTimeout, log),
		Executor:   executor.NewExecutor(log),
		Sessions:   executor.NewPlaywrightFactory(browser, actionTimeout(cfg)),
		Checker:    visual.NewChecker(blobs, cfg.Visual.Threshold, log),
		Artifacts:  blobs,
		Emitter:    emitter,
		Queue:      dispatch,
		Logger:     log,
	})

	pool := coordinator.NewWorkerPool(cfg.Worker.MaxWorkers, coord, dispatch, log)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	<-ctx.Done()
	log.Info(context.Background(), "worker shutting down", nil)
	return nil
}
