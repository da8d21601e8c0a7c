package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vrflottery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.01", cfg.Lottery.EntranceFee)
	assert.Equal(t, 30*time.Second, cfg.Lottery.Interval)
	assert.Equal(t, uint32(500000), cfg.Lottery.CallbackGasLimit)
	assert.Equal(t, time.Duration(0), cfg.Lottery.RequestTimeout)
	assert.Equal(t, "vrf-coordinator", cfg.Oracle.Address)
	assert.Equal(t, 2*time.Second, cfg.Oracle.FulfillmentDelay)
	assert.True(t, cfg.Keeper.Enabled)
	assert.True(t, cfg.Ledger.FaucetEnabled)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := "lottery:\n  entrance_fee: \"0.5\"\n  interval: 1m\nstore:\n  driver: bolt\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOTTERY_SERVER_PORT=9090\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LOTTERY_SERVER_PORT") })
	t.Setenv("LOTTERY_KEEPER_POLL_INTERVAL", "250ms")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "0.5", cfg.Lottery.EntranceFee)
	assert.Equal(t, time.Minute, cfg.Lottery.Interval)
	assert.Equal(t, DriverBolt, cfg.Store.Driver)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Keeper.PollInterval)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Lottery: LotteryConfig{Address: "lottery", EntranceFee: "0.01", Interval: time.Second},
			Oracle:  OracleConfig{Address: "vrf", FundAmount: "3", BaseFee: "0.25"},
			Store:   StoreConfig{Driver: DriverMemory},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"zero fee":           func(c *Config) { c.Lottery.EntranceFee = "0" },
		"bad fee":            func(c *Config) { c.Lottery.EntranceFee = "abc" },
		"zero interval":      func(c *Config) { c.Lottery.Interval = 0 },
		"negative timeout":   func(c *Config) { c.Lottery.RequestTimeout = -time.Second },
		"missing oracle":     func(c *Config) { c.Oracle.Address = "" },
		"callback no secret": func(c *Config) { c.Oracle.CallbackURL = "http://localhost/cb" },
		"unknown store":      func(c *Config) { c.Store.Driver = "postgres" },
		"negative fund":      func(c *Config) { c.Oracle.FundAmount = "-1" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLotteryParams(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	params, err := cfg.LotteryParams(7)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionID(7), params.SubscriptionID)
	assert.Equal(t, 0, params.EntranceFee.Cmp(big.NewInt(10_000_000_000_000_000)))
	assert.Equal(t, models.Address("vrf-coordinator"), params.Oracle)
}
