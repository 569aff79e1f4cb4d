// Package setup bootstraps the application: configuration, logging, and the
// collaborator graph that the runner and test modes consume.
package setup

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/plumekit/plume/internal/ai"
	"github.com/plumekit/plume/internal/engage"
	"github.com/plumekit/plume/internal/image"
	"github.com/plumekit/plume/internal/platform/threads"
	"github.com/plumekit/plume/internal/poster"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/plumekit/plume/internal/state"
	"github.com/plumekit/plume/pkg/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config      *config.Config       // Application configuration
	Logger      *zap.Logger          // Main application logger
	Store       *state.Store         // Durable counter state
	Threads     *threads.Client      // Platform API client
	Generator   *ai.Generator        // Content generation
	ImageSource *image.Source        // Local image folder
	Uploader    *image.Uploader      // Image host client
	Poster      *poster.Poster       // Post cycle driver
	Replies     *engage.Orchestrator // Reply cycle driver

	genaiClient *genai.Client
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available. The
// logLevel override, when non-empty, takes precedence over configuration.
func InitializeApp(ctx context.Context, logLevel string) (*App, error) {
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	logger, err := GetLogger(cfg.Logging.Dir, level, cfg.Logging.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration", zap.String("configDir", configDir))

	store := state.NewStore(cfg.State.Path, logger)

	threadsClient := threads.NewClient(&cfg.Threads, logger)
	threadsClient.Retry = utils.RetryOptions{
		MaxElapsedTime:  time.Duration(cfg.Retry.MaxElapsedTime) * time.Millisecond,
		InitialInterval: time.Duration(cfg.Retry.InitialInterval) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Retry.MaxInterval) * time.Millisecond,
		MaxRetries:      cfg.Retry.MaxRetries,
	}

	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Gemini.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	generator, err := ai.NewGenerator(genaiClient, &cfg.Gemini, logger)
	if err != nil {
		_ = genaiClient.Close()
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	source := image.NewSource(&cfg.Images, rng, logger)
	uploader := image.NewUploader(&cfg.Images, logger)

	post := poster.New(&cfg.Schedule, threadsClient, generator, source, uploader, store, logger)

	limiter := engage.NewLimiter(&cfg.Reply, rng)
	replies := engage.NewOrchestrator(
		&cfg.Reply, cfg.Threads.UserID, threadsClient, threadsClient,
		generator, limiter, store, logger,
	)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Threads:     threadsClient,
		Generator:   generator,
		ImageSource: source,
		Uploader:    uploader,
		Poster:      post,
		Replies:     replies,
		genaiClient: genaiClient,
	}, nil
}

// Cleanup releases external resources. Errors are logged rather than
// returned since cleanup runs on the way out.
func (a *App) Cleanup() {
	if err := a.genaiClient.Close(); err != nil {
		a.Logger.Error("Failed to close Gemini client", zap.Error(err))
	}

	_ = a.Logger.Sync()
}
