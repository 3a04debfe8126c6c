package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/tapchain/go/clients"
	"github.com/mcdev12/tapchain/go/clients/solana_rpc_client"
	"github.com/mcdev12/tapchain/go/internal/dbconfig"
	"github.com/mcdev12/tapchain/go/internal/leaderboard"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/pterm/pterm"
)

const defaultProgramID = "CTvpChrJqAhxAPQPMU2pJk8RcnzLwTJ5s7BJHftzS7vZ"

const createTable = `
CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
  taken_at    TIMESTAMPTZ NOT NULL,
  rank        INTEGER     NOT NULL,
  identity    TEXT        NOT NULL,
  high_score  BIGINT      NOT NULL,
  total_games BIGINT      NOT NULL,
  PRIMARY KEY (taken_at, identity)
)`

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err := run(ctx)
	cancel()
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// run reads every player record from the cluster and stores the ranked
// board as one snapshot row set.
func run(ctx context.Context) error {
	// 1) Resolve the cluster
	cluster := clients.Cluster(getEnv("TAPCHAIN_CLUSTER", string(clients.GetHighestPriorityCluster())))
	if !clients.ValidateCluster(cluster) {
		return fmt.Errorf("unknown cluster %q", cluster)
	}
	endpoints := clients.GetClusters()[cluster]
	rpcURL := getEnv("TAPCHAIN_RPC_URL", endpoints.RPCURL)
	programID, err := ledger.ParseAddress(getEnv("TAPCHAIN_PROGRAM_ID", defaultProgramID))
	if err != nil {
		return fmt.Errorf("program id: %w", err)
	}

	rpc := ledger.NewSolanaRPC(solana_rpc_client.NewSolanaRPCClient(rpcURL, "confirmed"), nil)
	client, err := ledger.NewClient(rpc, programID)
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}

	// 2) Read players
	records, err := client.ListPlayers(ctx)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}
	entries := leaderboard.Project(records, len(records))

	// 3) Connect to DB
	dbCfg := dbconfig.NewConfigFromEnv()
	poolCfg, err := pgxpool.ParseConfig(dbCfg.DSN())
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// 4) Store the snapshot
	takenAt := time.Now().UTC().Truncate(time.Second)
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
            INSERT INTO leaderboard_snapshots (
              taken_at, rank, identity, high_score, total_games
            ) VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (taken_at, identity) DO UPDATE
              SET rank = EXCLUDED.rank,
                  high_score = EXCLUDED.high_score,
                  total_games = EXCLUDED.total_games
        `, takenAt, e.Rank, e.Identity.String(), int64(e.Score), int64(e.Games))
	}

	inserted, errs := 0, 0
	results := pool.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			errs++
			continue
		}
		inserted++
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	// 5) Show the board
	data := pterm.TableData{{"Rank", "Identity", "High score", "Games"}}
	for _, e := range entries {
		data = append(data, []string{
			strconv.Itoa(e.Rank),
			e.Identity.String(),
			strconv.FormatUint(e.Score, 10),
			strconv.FormatUint(e.Games, 10),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	pterm.Success.Printfln(
		"Leaderboard snapshot: cluster=%s players=%d stored=%d errors=%d",
		cluster, len(records), inserted, errs,
	)
	return nil
}
