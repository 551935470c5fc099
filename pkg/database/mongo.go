package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// DefaultMongoConfig returns defaults for a local MongoDB.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "proflens",
		MaxPoolSize:    20,
		ConnectTimeout: 10 * time.Second,
	}
}

// NewMongoClient connects to MongoDB and pings the primary, retrying
// transient failures with the same backoff as NewPostgresPool.
func NewMongoClient(ctx context.Context, cfg MongoConfig, logger *slog.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout)

	var client *mongo.Client
	err := withRetry(ctx, "mongo", logger, func() error {
		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx, readpref.Primary()); err != nil {
			_ = c.Disconnect(ctx)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	return client, nil
}
