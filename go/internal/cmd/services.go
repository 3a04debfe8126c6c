package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mcdev12/tapchain/go/clients/solana_rpc_client"
	"github.com/mcdev12/tapchain/go/internal/chainsync"
	"github.com/mcdev12/tapchain/go/internal/events"
	"github.com/mcdev12/tapchain/go/internal/game"
	"github.com/mcdev12/tapchain/go/internal/gateway"
	"github.com/mcdev12/tapchain/go/internal/journal"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/mcdev12/tapchain/go/internal/ledger/localnet"
	"github.com/mcdev12/tapchain/go/internal/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Ledger      *ledger.Client
	Watcher     ledger.AccountWatcher
	Session     *wallet.LocalSession
	Events      *events.Dispatcher
	Journal     journal.Store
	Controller  *chainsync.Controller
	Coordinator *game.Coordinator
	Gateway     *gateway.Service

	closers []func()
}

// Close releases every resource opened by setupServices, last first.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Wire up the chain
	// RPC → ledger client → wallet → controller → coordinator → gateway
	services := &Services{}
	programID := ledger.MustParseAddress(config.ProgramID)

	rpc, watcher, err := setupRPC(config, programID)
	if err != nil {
		return nil, err
	}
	services.Watcher = watcher

	client, err := ledger.NewClient(rpc, programID)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}
	services.Ledger = client

	keypair, err := setupKeypair(config)
	if err != nil {
		return nil, err
	}
	services.Session = wallet.NewLocalSession(keypair)
	if config.AutoLogin {
		services.Session.Login()
	}

	registry := prometheus.NewRegistry()
	publisher := setupPublisher(ctx, config, services)
	dispatchCfg := events.DefaultDispatcherConfig()
	dispatchCfg.Metrics = events.NewPrometheusMetrics(registry)
	services.Events = events.NewDispatcher(publisher, dispatchCfg)

	store, closeJournal, err := setupJournal(ctx, config)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Journal = store
	services.closers = append(services.closers, closeJournal)

	syncCfg := chainsync.DefaultConfig()
	syncCfg.OperationTimeout = config.OperationTimeout
	syncCfg.RefreshInterval = config.RefreshInterval
	syncCfg.LeaderboardSize = config.Leaderboard.Size
	services.Controller = chainsync.NewController(client, services.Session,
		chainsync.WithConfig(syncCfg),
		chainsync.WithPublisher(services.Events),
	)

	gameCfg := game.DefaultConfig()
	gameCfg.Duration = config.Session.DurationTicks
	gameCfg.TickInterval = config.Session.TickInterval
	services.Coordinator = game.NewCoordinator(gameCfg, services.Controller, store,
		game.WithPublisher(services.Events),
	)
	services.closers = append(services.closers, services.Coordinator.Close)

	gwCfg := gateway.DefaultConfig()
	gwCfg.Addr = config.Gateway.Addr
	gwCfg.AllowedOrigins = config.Gateway.AllowedOrigins
	gwCfg.Registry = registry
	services.Gateway = gateway.NewService(gwCfg, services.Controller, services.Coordinator, services.Session)

	return services, nil
}

func setupRPC(config *Config, programID ledger.Address) (ledger.RPC, ledger.AccountWatcher, error) {
	if config.Localnet {
		validator, err := localnet.New(programID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start local validator: %w", err)
		}
		log.Info().Str("program_id", programID.String()).Msg("using in-process local validator")
		return validator, validator, nil
	}

	client := solana_rpc_client.NewSolanaRPCClient(config.RPCURL, config.Commitment)
	client.SetTimeout(config.OperationTimeout)
	subscriber := solana_rpc_client.NewSubscriber(config.WSURL, config.Commitment)
	rpc := ledger.NewSolanaRPC(client, subscriber)
	log.Info().
		Str("cluster", string(config.Cluster)).
		Str("rpc_url", config.RPCURL).
		Str("program_id", programID.String()).
		Msg("using remote RPC")
	return rpc, rpc, nil
}

// setupKeypair loads the configured keypair. On localnet a missing keypair is
// generated, and saved when a path is configured.
func setupKeypair(config *Config) (*wallet.Keypair, error) {
	if config.KeypairPath != "" {
		kp, err := wallet.LoadKeypair(config.KeypairPath)
		if err == nil {
			log.Info().Str("identity", kp.PublicKey().String()).Msg("loaded keypair")
			return kp, nil
		}
		if !config.Localnet || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load keypair: %w", err)
		}
	} else if !config.Localnet {
		return nil, errors.New("keypair_path is required outside localnet")
	}

	kp, err := wallet.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	if config.KeypairPath != "" {
		if err := kp.Save(config.KeypairPath); err != nil {
			return nil, fmt.Errorf("failed to save keypair: %w", err)
		}
	}
	log.Info().Str("identity", kp.PublicKey().String()).Msg("generated localnet keypair")
	return kp, nil
}

// setupPublisher always logs events and also publishes them to JetStream
// when NATS is enabled and reachable.
func setupPublisher(ctx context.Context, config *Config, services *Services) events.Publisher {
	publishers := events.Multi{events.LogPublisher{}}
	if !config.NATS.Enabled {
		return publishers
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = config.NATS.URL
	jsCfg.StreamName = config.NATS.Stream
	jsCfg.SubjectPrefix = config.NATS.SubjectPrefix
	js, err := events.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Warn().Err(err).Str("url", jsCfg.URL).Msg("NATS unavailable, events will only be logged")
		return publishers
	}
	services.closers = append(services.closers, func() {
		if err := js.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close JetStream publisher")
		}
	})
	return append(publishers, js)
}
