package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/tapchain/go/clients"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// defaultProgramID is the devnet deployment of the tap-to-win program.
const defaultProgramID = "CTvpChrJqAhxAPQPMU2pJk8RcnzLwTJ5s7BJHftzS7vZ"

type Config struct {
	Cluster          clients.Cluster `yaml:"cluster"`
	RPCURL           string          `yaml:"rpc_url"`
	WSURL            string          `yaml:"ws_url"`
	ProgramID        string          `yaml:"program_id"`
	Commitment       string          `yaml:"commitment"`
	KeypairPath      string          `yaml:"keypair_path"`
	Localnet         bool            `yaml:"localnet"`
	AutoLogin        bool            `yaml:"auto_login"`
	WatchAccounts    bool            `yaml:"watch_accounts"`
	OperationTimeout time.Duration   `yaml:"operation_timeout"`
	RefreshInterval  time.Duration   `yaml:"refresh_interval"`
	LogLevel         string          `yaml:"log_level"`

	Session struct {
		DurationTicks int           `yaml:"duration_ticks"`
		TickInterval  time.Duration `yaml:"tick_interval"`
	} `yaml:"session"`

	Leaderboard struct {
		Size int `yaml:"size"`
	} `yaml:"leaderboard"`

	Gateway struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"gateway"`

	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Journal struct {
		// Driver is "memory" or "postgres"; postgres reads the DB_* variables.
		Driver string `yaml:"driver"`
		Table  string `yaml:"table"`
	} `yaml:"journal"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Cluster:          clients.ClusterDevnet,
		ProgramID:        defaultProgramID,
		Commitment:       "confirmed",
		AutoLogin:        true,
		OperationTimeout: 30 * time.Second,
		RefreshInterval:  15 * time.Second,
		LogLevel:         "info",
	}
	cfg.Session.DurationTicks = 30
	cfg.Session.TickInterval = time.Second
	cfg.Leaderboard.Size = 10
	cfg.Gateway.Addr = ":8080"
	cfg.Gateway.AllowedOrigins = []string{"*"}
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.NATS.Stream = "TAPCHAIN_EVENTS"
	cfg.NATS.SubjectPrefix = "tapchain.events"
	cfg.Journal.Driver = "memory"
	cfg.Journal.Table = "score_journal"
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()
	if err := config.resolve(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.Cluster = clients.Cluster(getEnv("TAPCHAIN_CLUSTER", string(c.Cluster)))
	c.RPCURL = getEnv("TAPCHAIN_RPC_URL", c.RPCURL)
	c.WSURL = getEnv("TAPCHAIN_WS_URL", c.WSURL)
	c.ProgramID = getEnv("TAPCHAIN_PROGRAM_ID", c.ProgramID)
	c.KeypairPath = getEnv("TAPCHAIN_KEYPAIR", c.KeypairPath)
	c.Localnet = getEnvAsBool("TAPCHAIN_LOCALNET", c.Localnet)
	c.OperationTimeout = getEnvAsDuration("TAPCHAIN_OPERATION_TIMEOUT", c.OperationTimeout)
	c.RefreshInterval = getEnvAsDuration("TAPCHAIN_REFRESH_INTERVAL", c.RefreshInterval)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Gateway.Addr = getEnv("GATEWAY_ADDR", c.Gateway.Addr)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.Journal.Driver = getEnv("JOURNAL_DRIVER", c.Journal.Driver)
}

// resolve fills cluster endpoints and checks the values that would otherwise
// fail late.
func (c *Config) resolve() error {
	if _, err := ledger.ParseAddress(c.ProgramID); err != nil {
		return fmt.Errorf("program_id: %w", err)
	}
	if !c.Localnet && (c.RPCURL == "" || c.WSURL == "") {
		if c.Cluster == "" {
			c.Cluster = clients.GetHighestPriorityCluster()
		}
		if !clients.ValidateCluster(c.Cluster) {
			return fmt.Errorf("unknown cluster %q", c.Cluster)
		}
		endpoints := clients.GetClusters()[c.Cluster]
		if c.RPCURL == "" {
			c.RPCURL = endpoints.RPCURL
		}
		if c.WSURL == "" {
			c.WSURL = endpoints.WSURL
		}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.OperationTimeout <= 0 || c.RefreshInterval <= 0 || c.Session.TickInterval <= 0 {
		return errors.New("timeouts and intervals must be positive")
	}
	if c.Session.DurationTicks <= 0 {
		return errors.New("session.duration_ticks must be positive")
	}
	switch c.Journal.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
	return nil
}
