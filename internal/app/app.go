// Package app wires configuration, storage, and services into a runnable
// core. It is the shared composition root for binaries and integration
// tests.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
	"github.com/forumdesk/foyer/internal/services/company"
	"github.com/forumdesk/foyer/internal/services/interview"
	"github.com/forumdesk/foyer/internal/services/queue"
	"github.com/forumdesk/foyer/internal/services/room"
	"github.com/forumdesk/foyer/internal/services/sweeper"
	"github.com/forumdesk/foyer/internal/storage"
)

// App holds the initialized services and storage.
type App struct {
	Config  *common.Config
	Logger  *common.Logger
	Storage interfaces.StorageManager

	QueueService     interfaces.QueueService
	InterviewService interfaces.InterviewService
	RoomService      interfaces.RoomService
	CompanyService   interfaces.CompanyService
	Sweeper          interfaces.SweeperService

	StartupTime time.Time
}

// Option adjusts app construction.
type Option func(*options)

type options struct {
	resolver interfaces.CategoryResolver
	storage  interfaces.StorageManager
}

// WithCategoryResolver supplies the category source of truth. Without one,
// every student is treated as external.
func WithCategoryResolver(r interfaces.CategoryResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithStorage injects a pre-built storage manager, bypassing the backend
// factory. Test use.
func WithStorage(s interfaces.StorageManager) Option {
	return func(o *options) { o.storage = s }
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath checks the provided path, then FOYER_CONFIG, then the
// binary directory, then the development fallback.
func resolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FOYER_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "foyer.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/foyer.toml"
		}
	}
	return configPath
}

// NewApp initializes configuration, storage, and all services.
// configPath may be empty, in which case the default resolution is used.
func NewApp(configPath string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	config, err := common.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager := o.storage
	if storageManager == nil {
		storageManager, err = storage.NewStorageManager(logger, config)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
	}

	resolver := o.resolver
	if resolver == nil {
		logger.Warn().Msg("No category resolver configured - treating every student as external")
		resolver = queue.CategoryFunc(func(_ context.Context, _ string) (models.StudentCategory, error) {
			return models.CategoryExternal, nil
		})
	}
	cached := queue.NewCachedResolver(resolver, config.Queue.GetCategoryCacheTTL())

	locks := common.NewKeyedMutex()
	queueService := queue.NewService(storageManager, cached, locks, logger, config.Queue)
	interviewService := interview.NewService(storageManager, locks, logger, config.Queue)
	roomService := room.NewService(storageManager, locks, logger, config.Queue)
	companyService := company.NewService(storageManager, logger)
	sweeperService := sweeper.NewService(storageManager, locks, logger, config.Sweeper)

	logger.Info().
		Str("environment", config.Environment).
		Str("backend", config.Storage.Backend).
		Msg("Foyer core initialized")

	return &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		QueueService:     queueService,
		InterviewService: interviewService,
		RoomService:      roomService,
		CompanyService:   companyService,
		Sweeper:          sweeperService,
		StartupTime:      time.Now(),
	}, nil
}

// StartSweeper launches the background consistency sweep loop.
func (a *App) StartSweeper() {
	a.Sweeper.Start()
}

// Close stops background work and releases storage.
func (a *App) Close() {
	a.Sweeper.Stop()
	if err := a.Storage.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
	}
}
