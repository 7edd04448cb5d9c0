package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clintrovert/praxis/internal/api/rest"
	"github.com/clintrovert/praxis/internal/config"
	"github.com/clintrovert/praxis/internal/metrics"
	"github.com/clintrovert/praxis/internal/repository"
	"github.com/clintrovert/praxis/internal/state"
	"github.com/clintrovert/praxis/internal/storage"
	"github.com/clintrovert/praxis/internal/tracker"
)

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	// Get configuration from environment
	trackerKind := getEnv("TRACKER", "github")
	githubToken := getEnv("GITHUB_TOKEN", "")
	githubOwner := getEnv("GITHUB_OWNER", "")
	githubRepo := getEnv("GITHUB_REPO", "")
	jiraBaseURL := getEnv("JIRA_BASE_URL", "")
	jiraUsername := getEnv("JIRA_USERNAME", "")
	jiraToken := getEnv("JIRA_TOKEN", "")
	jiraProjectKey := getEnv("JIRA_PROJECT_KEY", "")
	repoPath := getEnv("REPO_PATH", "")
	stateDBPath := getEnv("STATE_DB_PATH", "praxis-state.db")
	settingsPath := getEnv("SETTINGS_PATH", "praxis.yaml")
	restPort := getEnv("REST_PORT", "8080")
	headPollInterval := getEnv("HEAD_POLL_INTERVAL", "30s")

	pollInterval, err := time.ParseDuration(headPollInterval)
	if err != nil {
		logger.Warn("invalid head poll interval, using default", zap.Error(err))
		pollInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create tracker provider
	var provider tracker.Provider
	switch trackerKind {
	case "github":
		provider = tracker.NewGitHubProvider(githubToken, githubOwner, githubRepo, logger)
	case "jira":
		provider, err = tracker.NewJiraProvider(jiraBaseURL, jiraUsername, jiraToken, jiraProjectKey, logger)
		if err != nil {
			logger.Fatal("failed to create jira provider", zap.Error(err))
		}
	default:
		logger.Fatal("unknown tracker kind", zap.String("tracker", trackerKind))
	}

	// Open workspace state store
	workspace, err := storage.Open(stateDBPath, logger)
	if err != nil {
		logger.Fatal("failed to open workspace state", zap.Error(err))
	}
	defer workspace.Close()

	// Load settings and watch for changes
	settings, err := config.Load(settingsPath, logger)
	if err != nil {
		logger.Fatal("failed to load settings", zap.Error(err))
	}
	if err := settings.Watch(ctx.Done()); err != nil {
		logger.Warn("settings are not being watched", zap.Error(err))
	}

	// Watch the local checkout when one is configured
	var headSource state.HeadSource
	if repoPath != "" {
		watcher, err := repository.NewWatcher(repoPath, pollInterval, logger)
		if err != nil {
			logger.Fatal("failed to open repository", zap.Error(err))
		}
		if err := watcher.Start(ctx); err != nil {
			logger.Fatal("failed to start repository watcher", zap.Error(err))
		}
		headSource = watcher
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	manager := state.NewManager(provider, workspace, settings, headSource, repoPath, metrics.New(registry), logger)
	defer manager.Dispose()

	// Initialize once the provider is ready; readiness is driven by Load
	go func() {
		if err := provider.Load(ctx); err != nil {
			logger.Error("failed to load tracker", zap.Error(err))
			return
		}
		if err := manager.Initialize(ctx); err != nil {
			logger.Error("failed to initialize state manager", zap.Error(err))
		}
	}()

	// Setup REST API
	restHandler := rest.NewHandler(manager, logger)
	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		restHandler.RegisterRoutes(r)
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	restAddr := fmt.Sprintf(":%s", restPort)
	restServer := &http.Server{
		Addr:    restAddr,
		Handler: router,
	}

	go func() {
		logger.Info("starting REST API server", zap.String("address", restAddr))
		if err := restServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start REST server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	restServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
