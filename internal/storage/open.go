package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alferdousrana/Lifesheba/internal/config"
)

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Storage, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "bolt":
		return NewBoltStorage(cfg.Path)
	case "file":
		return NewFileStorage(cfg.Path, logger)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return NewRedisStorage(client, cfg.RedisPrefix), nil
	case "mongo":
		db, err := ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return NewMongoStorage(db), nil
	case "sqlite":
		return NewSQLStorage(DialectSQLite, cfg.Path)
	case "postgres":
		return NewSQLStorage(DialectPostgres, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
