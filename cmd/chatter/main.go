// Command chatter is a line-oriented front end for the conversation engine.
// It contains presentation glue only; all state lives in internal/engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/avelin/chatter/internal/config"
	"github.com/avelin/chatter/internal/engine"
	"github.com/avelin/chatter/internal/observability"
	"github.com/avelin/chatter/internal/store"
	"github.com/avelin/chatter/internal/store/memory"
	"github.com/avelin/chatter/internal/store/postgres"
	"github.com/avelin/chatter/internal/store/redis"
	"github.com/avelin/chatter/internal/store/sqlite"
	"github.com/avelin/chatter/internal/transport"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err == nil {
		fmt.Println("loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.NewLogger(observability.Options{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.Logging.File,
		MaxAge:       cfg.Logging.MaxAge,
		RotationTime: cfg.Logging.RotationTime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open durable store")
	}

	api := transport.NewClient(cfg.API.BaseURL, cfg.API.Model, cfg.API.Temperature, cfg.API.Timeout)

	eng := engine.New(db, api, engine.Options{HistoryLimit: cfg.API.HistoryLimit}, log)
	if err := eng.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize engine")
	}
	defer eng.Close()

	runREPL(ctx, eng, os.Stdin, os.Stdout)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite", "":
		return sqlite.Open(ctx, cfg.Storage.SQLite.Path)
	case "redis":
		return redis.Open(ctx, redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	case "postgres":
		return postgres.Open(ctx, cfg.Storage.Postgres.DSN())
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
