package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/terraskye/eventsourcing-readstore/readstore/mongodb"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).Warn("Could not load .env file")
	}

	a := &app{
		logger:  logrus.NewEntry(logger),
		connect: connectFromEnv,
	}

	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

// connectFromEnv connects with the MONGODB_* settings of the environment.
func connectFromEnv(ctx context.Context, logger *logrus.Entry) (*mongo.Database, func(context.Context) error, error) {
	cfg, err := mongodb.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	client, db, err := mongodb.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, client.Disconnect, nil
}
