package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vrflottery/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	Lottery LotteryConfig
	Oracle  OracleConfig
	Keeper  KeeperConfig
	Ledger  LedgerConfig
	Store   StoreConfig
	MongoDB MongoDBConfig
	Log     LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
}

// LotteryConfig holds the parameters fixed when the lottery is created
type LotteryConfig struct {
	Address          string
	EntranceFee      string `mapstructure:"entrance_fee"`
	Interval         time.Duration
	GasLane          string        `mapstructure:"gas_lane"`
	SubscriptionID   uint64        `mapstructure:"subscription_id"`
	CallbackGasLimit uint32        `mapstructure:"callback_gas_limit"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// OracleConfig holds randomness-oracle configuration
type OracleConfig struct {
	Address          string
	JWTSecret        string        `mapstructure:"jwt_secret"`
	FundAmount       string        `mapstructure:"fund_amount"`
	BaseFee          string        `mapstructure:"base_fee"`
	FulfillmentDelay time.Duration `mapstructure:"fulfillment_delay"`
	CallbackURL      string        `mapstructure:"callback_url"`
}

// KeeperConfig holds upkeep-poller configuration
type KeeperConfig struct {
	Enabled      bool
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LedgerConfig holds wallet configuration
type LedgerConfig struct {
	FaucetEnabled bool `mapstructure:"faucet_enabled"`
}

// StoreConfig selects where round history is kept
type StoreConfig struct {
	Driver string
	Path   string
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// LogConfig controls where logger output goes
type LogConfig struct {
	Verbose bool
	// File receives every log line when set.
	File string
}

const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
	DriverMongo  = "mongodb"
	DriverSQLite = "sqlite"
)

// Load reads dir/.env and dir/config.yaml when present, then environment
// variables prefixed with LOTTERY_, on top of the defaults.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(filepath.Join(dir, "config"))
	v.SetEnvPrefix("LOTTERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("lottery.address", "lottery")
	v.SetDefault("lottery.entrance_fee", "0.01")
	v.SetDefault("lottery.interval", 30*time.Second)
	v.SetDefault("lottery.gas_lane", "0x79d3d8832d904592c0bf9818b621522c988bb8b0c05cdc3b15aea1b6e8db0c15")
	v.SetDefault("lottery.subscription_id", 0)
	v.SetDefault("lottery.callback_gas_limit", 500000)
	v.SetDefault("lottery.request_timeout", time.Duration(0))
	v.SetDefault("oracle.address", "vrf-coordinator")
	v.SetDefault("oracle.jwt_secret", "")
	v.SetDefault("oracle.fund_amount", "3")
	v.SetDefault("oracle.base_fee", "0.25")
	v.SetDefault("oracle.fulfillment_delay", 2*time.Second)
	v.SetDefault("oracle.callback_url", "")
	v.SetDefault("keeper.enabled", true)
	v.SetDefault("keeper.poll_interval", 5*time.Second)
	v.SetDefault("ledger.faucet_enabled", true)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.path", "lottery.db")
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "lottery")
	v.SetDefault("log.verbose", true)
	v.SetDefault("log.file", "")
}

// Validate rejects configurations the lottery cannot start with.
func (c *Config) Validate() error {
	fee, err := models.ParseEther(c.Lottery.EntranceFee)
	if err != nil {
		return fmt.Errorf("lottery.entrance_fee: %w", err)
	}
	if fee.Sign() <= 0 {
		return errors.New("lottery.entrance_fee must be positive")
	}
	if c.Lottery.Interval <= 0 {
		return errors.New("lottery.interval must be positive")
	}
	if c.Lottery.RequestTimeout < 0 {
		return errors.New("lottery.request_timeout must not be negative")
	}
	if c.Lottery.Address == "" || c.Oracle.Address == "" {
		return errors.New("lottery.address and oracle.address are required")
	}
	if _, err := models.ParseEther(c.Oracle.FundAmount); err != nil {
		return fmt.Errorf("oracle.fund_amount: %w", err)
	}
	if _, err := models.ParseEther(c.Oracle.BaseFee); err != nil {
		return fmt.Errorf("oracle.base_fee: %w", err)
	}
	if c.Oracle.CallbackURL != "" && c.Oracle.JWTSecret == "" {
		return errors.New("oracle.callback_url requires oracle.jwt_secret")
	}
	switch c.Store.Driver {
	case DriverMemory, DriverBolt, DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("store.driver %q is not one of memory, bolt, mongodb, sqlite", c.Store.Driver)
	}
	return nil
}

// LotteryParams converts the lottery section into the aggregate's configuration.
func (c *Config) LotteryParams(subscriptionID models.SubscriptionID) (models.LotteryConfig, error) {
	fee, err := models.ParseEther(c.Lottery.EntranceFee)
	if err != nil {
		return models.LotteryConfig{}, err
	}
	return models.LotteryConfig{
		Address:          models.Address(c.Lottery.Address),
		EntranceFee:      fee,
		Interval:         c.Lottery.Interval,
		GasLane:          c.Lottery.GasLane,
		SubscriptionID:   subscriptionID,
		CallbackGasLimit: c.Lottery.CallbackGasLimit,
		Oracle:           models.Address(c.Oracle.Address),
		RequestTimeout:   c.Lottery.RequestTimeout,
	}, nil
}

// MustEther parses a value already checked by Validate.
func MustEther(s string) *big.Int {
	v, err := models.ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}
