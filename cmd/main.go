package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beunreal/story-service/internal/api"
	"github.com/beunreal/story-service/internal/auth"
	"github.com/beunreal/story-service/internal/bootstrap"
	"github.com/beunreal/story-service/internal/config"
	"github.com/beunreal/story-service/internal/discovery"
	"github.com/beunreal/story-service/internal/events"
	"github.com/beunreal/story-service/internal/logger"
	"github.com/beunreal/story-service/internal/media"
	"github.com/beunreal/story-service/internal/metrics"
	"github.com/beunreal/story-service/internal/middleware"
	"github.com/beunreal/story-service/internal/repository"
	"github.com/beunreal/story-service/internal/service"
	"github.com/beunreal/story-service/internal/users"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("STORY_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	// store
	var (
		repo repository.StoryRepository
		mc   *mongo.Client
	)
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("using in-memory story store; data is lost on restart")
		repo = repository.NewMemoryStoryRepository()
	default:
		mc, err = bootstrap.ConnectMongo(ctx, cfg.Mongo.URI, log)
		if err != nil {
			log.Fatal("mongo connect", zap.Error(err))
		}
		mrepo := repository.NewMongoStoryRepository(mc.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection), cfg.StoreOpTimeout)
		ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := mrepo.EnsureIndexes(ictx); err != nil {
			log.Warn("ensure indexes failed", zap.Error(err))
		}
		cancel()
		repo = mrepo
	}

	// redis backs the display-info cache and the per-user create limit
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = bootstrap.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
	}

	var registry *discovery.Consul
	if cfg.Consul.Addr != "" {
		registry, err = discovery.NewConsul(cfg.Consul.Addr, log)
		if err != nil {
			log.Fatal("consul init", zap.Error(err))
		}
	}

	dir := userDirectory(cfg, registry, rdb, log)
	uploader := mediaUploader(ctx, cfg, log)

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.KafkaTimeout)
		log.Info("publishing story events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	verifier, err := auth.NewVerifier(cfg.JWT.Alg, cfg.JWT.PublicKeyPath, cfg.JWT.HSSecret)
	if err != nil {
		log.Fatal("jwt init", zap.Error(err))
	}

	svc := service.NewStoryService(repo, dir, uploader, pub, log, service.Options{
		DefaultRadiusMeters: cfg.Stories.DefaultRadiusMeters,
		MaxNearby:           cfg.Stories.MaxNearbyResults,
		EventTimeout:        cfg.KafkaTimeout,
	})

	var createLimiter fiber.Handler
	if rdb != nil && cfg.RateLimit.CreatesPerHour > 0 {
		createLimiter = middleware.NewRedisRateLimiter(rdb, cfg.Redis.Prefix, cfg.RateLimit.CreatesPerHour, time.Hour, log).ByUser()
	}

	app := api.NewServer(ctx, api.Deps{
		Service:           svc,
		Verifier:          verifier,
		Logger:            log,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		RequestsPerMinute: cfg.RateLimit.PerMinute,
		CreateLimiter:     createLimiter,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	})

	go func() {
		log.Info("starting story service", zap.String("addr", cfg.Addr()), zap.String("store", cfg.Store.Driver))
		if err := app.Listen(cfg.Addr()); err != nil {
			log.Error("listen failed", zap.Error(err))
			stop()
		}
	}()

	var serviceID string
	if registry != nil {
		reg := discovery.Registration{ID: cfg.Consul.ServiceID, Name: cfg.App.Name, Address: cfg.Consul.ServiceAddress, Port: cfg.App.Port}
		if reg.Address == "" {
			reg.Address, _ = os.Hostname()
		}
		if serviceID, err = registry.Register(reg); err != nil {
			log.Warn("consul register failed", zap.Error(err))
		}
	}

	<-ctx.Done()
	log.Info("shutdown requested")

	if serviceID != "" {
		if err := registry.Deregister(serviceID); err != nil {
			log.Warn("consul deregister failed", zap.Error(err))
		}
	}
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := pub.Close(); err != nil {
		log.Warn("event publisher close", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if mc != nil {
		_ = mc.Disconnect(timeoutCtx)
	}
	log.Info("shutdown completed")
}

func userDirectory(cfg *config.Config, registry *discovery.Consul, rdb *redis.Client, log *zap.Logger) users.Directory {
	base := cfg.Users.BaseURL
	if base == "" && registry != nil {
		u, err := registry.Lookup("user-service")
		if err != nil {
			log.Warn("user service not found in consul", zap.Error(err))
		}
		base = u
	}
	if base == "" {
		log.Warn("no user service configured; stories are served without display info")
		return users.Static{}
	}

	var dir users.Directory = users.NewHTTPDirectory(base, cfg.UsersTimeout, users.BreakerSettings{
		MaxFailures: cfg.Users.Breaker.MaxFailures,
		Interval:    time.Duration(cfg.Users.Breaker.IntervalSec) * time.Second,
		Timeout:     time.Duration(cfg.Users.Breaker.TimeoutSec) * time.Second,
	}, log)
	if rdb != nil && cfg.UserCacheTTL > 0 {
		dir = users.NewCachedDirectory(dir, rdb, cfg.Redis.Prefix, cfg.UserCacheTTL, log)
	}
	return dir
}

func mediaUploader(ctx context.Context, cfg *config.Config, log *zap.Logger) media.Uploader {
	if cfg.AWS.Bucket == "" {
		if !cfg.Development() {
			log.Fatal("aws.bucket is required outside development")
		}
		log.Warn("no media bucket configured; uploads are kept in memory")
		return media.NewMemory("memory://media")
	}
	up, err := media.NewS3Uploader(ctx, media.S3Config{
		Region:     cfg.AWS.Region,
		Bucket:     cfg.AWS.Bucket,
		Endpoint:   cfg.AWS.Endpoint,
		KeyPrefix:  cfg.S3.KeyPrefix,
		PublicRead: cfg.S3.PublicRead,
		PresignTTL: cfg.PresignTTL,
		Thumbnails: cfg.Media.Thumbnails,
		Timeout:    cfg.MediaTimeout,
	}, log)
	if err != nil {
		log.Fatal("s3 init", zap.Error(err))
	}
	return up
}
