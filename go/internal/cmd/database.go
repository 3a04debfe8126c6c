package main

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mcdev12/tapchain/go/internal/dbconfig"
	"github.com/mcdev12/tapchain/go/internal/journal"
	"github.com/rs/zerolog/log"
)

// setupJournal returns the submission journal and a close function.
func setupJournal(ctx context.Context, config *Config) (journal.Store, func(), error) {
	if config.Journal.Driver != "postgres" {
		log.Info().Msg("using in-memory submission journal")
		return journal.NewMemoryStore(), func() {}, nil
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	database, err := dbCfg.Open(ctx, "postgres")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	store := journal.NewPostgresStore(database, config.Journal.Table)
	if err := store.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Str("table", config.Journal.Table).
		Msg("connected to journal database")
	return store, func() { database.Close() }, nil
}
