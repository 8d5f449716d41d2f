package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Coded483-max/smartvote-node/internal"
)

const (
	defaultAPIHost       = "0.0.0.0"
	defaultAPIPort       = 9090
	defaultMongoURL      = "mongodb://localhost:27017"
	defaultMongoDB       = "smartvote"
	defaultRedisAddr     = ""
	defaultLogLevel      = "info"
	defaultLogOutput     = "stdout"
	defaultDatadir       = ".smartvote" // Will be prefixed with user's home directory
	defaultSweepInterval = 5 * time.Minute
	monitorInterval      = 15 * time.Second
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	Mongo   MongoConfig
	Redis   RedisConfig
	Web3    Web3Config
	API     APIConfig
	Prover  ProverConfig
	Log     LogConfig
	Sweep   SweepConfig
	Datadir string
}

// MongoConfig holds the document store configuration
type MongoConfig struct {
	URL string `mapstructure:"url"`
	DB  string `mapstructure:"db"`
}

// RedisConfig holds the cache configuration. An empty address disables the
// cache layer entirely.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Web3Config holds Ethereum-related configuration. An empty RPC disables the
// ledger integration.
type Web3Config struct {
	Rpc      string `mapstructure:"rpc"`
	Contract string `mapstructure:"contract"`
	PrivKey  string `mapstructure:"privkey"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	AdminToken string `mapstructure:"admintoken"`
}

// ProverConfig holds zk-SNARK prover configuration. An empty artifacts
// directory falls back to <datadir>/artifacts.
type ProverConfig struct {
	Artifacts string `mapstructure:"artifacts"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// SweepConfig holds the lifecycle scheduler configuration
type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("mongo.url", defaultMongoURL)
	v.SetDefault("mongo.db", defaultMongoDB)
	v.SetDefault("redis.addr", defaultRedisAddr)
	v.SetDefault("redis.db", 0)
	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("sweep.interval", defaultSweepInterval)
	v.SetDefault("datadir", defaultDatadirPath)

	flag.StringP("mongo.url", "m", defaultMongoURL, "MongoDB connection URL")
	flag.String("mongo.db", defaultMongoDB, "MongoDB database name")
	flag.StringP("redis.addr", "r", defaultRedisAddr, "redis address (empty disables the cache)")
	flag.String("redis.password", "", "redis password")
	flag.Int("redis.db", 0, "redis database index")
	flag.StringP("web3.rpc", "w", "", "web3 rpc endpoint (empty disables the ledger)")
	flag.String("web3.contract", "", "voting contract address")
	flag.StringP("web3.privkey", "k", "", "private key for the Ethereum account")
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.String("api.admintoken", "", "bearer token for election management (empty disables the check)")
	flag.String("prover.artifacts", "", "directory with the circuit artifacts (defaults to <datadir>/artifacts)")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.Duration("sweep.interval", defaultSweepInterval, "lifecycle sweep interval (i.e 1m or 10m)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for local storage files")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "smartvote-node v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: smartvote-node [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, SMARTVOTE_MONGO_URL or SMARTVOTE_API_PORT\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start with a local MongoDB and no ledger\n")
		fmt.Fprintf(os.Stderr, "  smartvote-node --mongo.url=mongodb://localhost:27017\n\n")
		fmt.Fprintf(os.Stderr, "  # Start with the full stack\n")
		fmt.Fprintf(os.Stderr, "  smartvote-node --redis.addr=localhost:6379 --web3.rpc=https://rpc.example.org --web3.contract=0x456... --web3.privkey=0x123...\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("SMARTVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Mongo.URL == "" {
		return fmt.Errorf("mongo URL is required (use --mongo.url or SMARTVOTE_MONGO_URL)")
	}
	if cfg.Web3.Rpc != "" {
		if cfg.Web3.Contract == "" {
			return fmt.Errorf("web3 contract address is required when an rpc endpoint is set")
		}
		if cfg.Web3.PrivKey == "" {
			return fmt.Errorf("web3 private key is required when an rpc endpoint is set")
		}
	}
	if cfg.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	return nil
}
