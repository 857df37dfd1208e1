package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Config holds the connection settings of a read model database.
type Config struct {
	URI             string        `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	Database        string        `env:"MONGODB_DATABASE" envDefault:"readmodels"`
	AppName         string        `env:"MONGODB_APP_NAME" envDefault:"eventsourcing-readstore"`
	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	ConnectAttempts uint64        `env:"MONGODB_CONNECT_ATTEMPTS" envDefault:"5"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("load mongodb config: %w", err)
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("load mongodb config: MONGODB_DATABASE is empty")
	}
	return cfg, nil
}

// Connect opens a client and pings the primary until it answers, retrying
// with exponential backoff up to cfg.ConnectAttempts times. Only the initial
// connection is retried; store operations never are. A nil logger logs nothing.
func Connect(ctx context.Context, cfg *Config, logger *logrus.Entry) (*mongo.Client, *mongo.Database, error) {
	if logger == nil {
		logger = discardLogger()
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectAttempts), ctx)
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		return client.Ping(pingCtx, readpref.Primary())
	}
	notify := func(err error, next time.Duration) {
		logger.WithError(err).Warnf("MongoDB not reachable, retrying in %s", next)
	}

	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	logger.Infof("Connected to MongoDB database '%s'", cfg.Database)
	return client, client.Database(cfg.Database), nil
}
