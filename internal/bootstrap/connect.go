package bootstrap

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const connectWindow = 30 * time.Second

// retry runs op with exponential backoff until it succeeds, ctx ends, or
// maxElapsed passes.
func retry(ctx context.Context, what string, maxElapsed time.Duration, logger *zap.Logger, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.Warn("connect failed, retrying", zap.String("target", what), zap.Int("attempt", attempt), zap.Duration("next", next), zap.Error(err))
	})
}

func ConnectMongo(ctx context.Context, uri string, logger *zap.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	err = retry(ctx, "mongodb", connectWindow, logger, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pctx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("MongoDB connected successfully")
	return client, nil
}

func ConnectRedis(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	err := retry(ctx, "redis", connectWindow, logger, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return rdb.Ping(pctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	logger.Info("Redis connected successfully")
	return rdb, nil
}
