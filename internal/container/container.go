package container

import (
	"context"
	"fmt"
	"math/rand/v2"

	"imageduel/internal/config"
	"imageduel/internal/discord"
	"imageduel/internal/matchup"
	"imageduel/internal/repository"
	"imageduel/internal/service"
	"imageduel/pkg/database"
	"imageduel/pkg/logger"
	"imageduel/pkg/redis"
	"imageduel/pkg/storage"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.DB
	RedisClient *redis.Client
	Repos       *repository.Repositories
	Images      service.ImageStore
	Services    *service.Services
	Bot         *discord.Bot
}

// New creates a new dependency injection container. The database is
// required; Redis, object storage and Discord are optional and the
// container degrades without them.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := repository.AutoMigrate(db.Gorm); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.WithField("driver", db.Driver()).Info("Database ready")

	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	var images service.ImageStore
	if cfg.S3.Enabled() {
		store, err := storage.NewS3Store(ctx, cfg.S3, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize image storage, imports are disabled")
		} else {
			images = store
			log.WithField("bucket", cfg.S3.Bucket).Info("Image storage initialized successfully")
		}
	} else {
		log.Info("Image storage not configured, imports are disabled")
	}

	repos := repository.New(db.Gorm)

	cache := service.NewCacheService(redisClient, log.Component("cache"))
	ledger := service.NewVoteLedger(repos, cache, log.Component("ledger"))
	resolver := service.NewDuelResolver(repos, cache, log.Component("resolver"))
	selector := matchup.NewSelector(repos, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), log.Component("matchup"))
	locker := service.NewCommunityLocker(redisClient, log.Component("locker"))

	scheduler, err := service.NewDuelScheduler(cfg.ReconcileInterval, log.Component("scheduler"))
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		db.Close()
		return nil, err
	}

	manager := service.NewLifecycleManager(service.LifecycleDeps{
		Repos:     repos,
		Ledger:    ledger,
		Resolver:  resolver,
		Selector:  selector,
		Scheduler: scheduler,
		Locker:    locker,
		Images:    images,
		Logger:    log.Component("lifecycle"),
	})

	services := &service.Services{
		Lifecycle:   manager,
		Ledger:      ledger,
		Resolver:    resolver,
		Leaderboard: service.NewLeaderboardService(repos, cache, log.Component("leaderboard")),
		Competitors: service.NewCompetitorService(repos, images, cache, locker, log.Component("competitors")),
		Config:      service.NewConfigService(repos, cfg.DefaultResolutionMode, log.Component("config")),
		Cache:       cache,
		Scheduler:   scheduler,
		Locker:      locker,
	}

	var bot *discord.Bot
	if cfg.DiscordToken != "" {
		bot, err = discord.NewBot(cfg.DiscordToken, manager, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to create Discord session, announcements are disabled")
			bot = nil
		} else {
			manager.SetPresenter(discord.NewPresenter(bot.Session(), log.Component("presenter")))
		}
	} else {
		log.Info("Discord token not configured, announcements are disabled")
	}

	return &Container{
		Config:      cfg,
		Logger:      log,
		DB:          db,
		RedisClient: redisClient,
		Repos:       repos,
		Images:      images,
		Services:    services,
		Bot:         bot,
	}, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*database.DB, error) {
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, log.Component("gorm"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, nil
	}
	log.WithField("path", cfg.SQLitePath).Info("DATABASE_URL not set, using SQLite")
	db, err := database.NewSQLiteDB(cfg.SQLitePath, log.Component("gorm"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// HasImageStore returns true if competitor images can be stored
func (c *Container) HasImageStore() bool {
	return c.Images != nil
}

// GetLifecycle returns the lifecycle manager
func (c *Container) GetLifecycle() *service.LifecycleManager {
	return c.Services.Lifecycle
}
