package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	connectTimeout = 15 * time.Second
	Attempts       = 3
	RetryDelay     = 2 * time.Second
)

// Connect opens a client to uri and pings it, retrying a few times so that a
// server started next to its database does not exit on a cold start.
func Connect(ctx context.Context, uri string, log *zap.Logger) (*mongo.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= Attempts; attempt++ {
		client, err := connectOnce(ctx, uri)
		if err == nil {
			log.Info("mongodb connected", zap.Int("attempt", attempt))
			return client, nil
		}
		lastErr = err
		log.Warn("mongodb connection attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(RetryDelay):
		}
	}
	return nil, fmt.Errorf("connect to mongodb after %d attempts: %w", Attempts, lastErr)
}

func connectOnce(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func Disconnect(client *mongo.Client, log *zap.Logger) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		log.Warn("mongodb disconnect failed", zap.Error(err))
		return
	}
	log.Info("mongodb disconnected")
}
