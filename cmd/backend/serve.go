package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/iqap-dev/iqap-runner/authoring"
	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/cmd/backend/handlers"
	"github.com/iqap-dev/iqap-runner/coordinator"
	"github.com/iqap-dev/iqap-runner/events"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/queue"
	"github.com/iqap-dev/iqap-runner/testcase"
	"github.com/iqap-dev/iqap-runner/testrun"
	"github.com/iqap-dev/iqap-runner/visual"
)

var configFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServer,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogrusLogger(cfg.Log.Level)
	log.Info(ctx, "starting API server", map[string]interface{}{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
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

	// The API process keeps a browser for page crawling during generation.
	pwRun, browser, err := launchBrowser(cfg)
	if err != nil {
		return err
	}
	defer pwRun.Stop()
	defer browser.Close()

	caseStore := testcase.NewMySQLStore(db, log)
	runStore := testrun.NewMySQLStore(db, log)
	crawler := blueprint.NewCrawler(browser, cfg.Browser.CrawlTimeout, log)

	generator, err := authoring.NewBedrockGenerator(
		cfg.Generator.BedrockRegion,
		cfg.Generator.BedrockModel,
		cfg.Generator.MaxTokens,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %w", err)
	}

	// The API-side coordinator expands and cancels runs; execution happens
	// in worker processes, so it carries no session factory.
	coord := coordinator.New(coordinator.Config{
		Runs:       runStore,
		Cases:      caseStore,
		Blueprints: crawler,
		Checker:    visual.NewChecker(blobs, cfg.Visual.Threshold, log),
		Artifacts:  blobs,
		Emitter:    emitter,
		Queue:      dispatch,
		Logger:     log,
	})

	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.HealthHandler).Methods("GET")

	testCaseHandler := handlers.NewTestCaseHandler(caseStore, log)
	runHandler := handlers.NewRunHandler(runStore, coord, log)
	generateHandler := handlers.NewGenerateHandler(generator, crawler, caseStore, coord, log)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/test-cases", testCaseHandler.Create).Methods("POST")
	api.HandleFunc("/test-cases", testCaseHandler.List).Methods("GET")
	api.HandleFunc("/test-cases/generate", generateHandler.Generate).Methods("POST")
	api.HandleFunc("/test-cases/{id}", testCaseHandler.GetByID).Methods("GET")
	api.HandleFunc("/test-cases/{id}", testCaseHandler.Update).Methods("PUT")
	api.HandleFunc("/test-cases/{id}/parameter-sets", testCaseHandler.CreateParameterSet).Methods("POST")
	api.HandleFunc("/test-cases/{id}/parameter-sets", testCaseHandler.ListParameterSets).Methods("GET")
	api.HandleFunc("/test-cases/{id}/runs", runHandler.Start).Methods("POST")
	api.HandleFunc("/runs", runHandler.List).Methods("GET")
	api.HandleFunc("/runs/{id}", runHandler.GetByID).Methods("GET")
	api.HandleFunc("/runs/{id}/cancel", runHandler.Cancel).Methods("POST")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info(ctx, "server listening", map[string]interface{}{
			"address": addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down server", nil)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info(ctx, "server stopped", nil)
	return nil
}
