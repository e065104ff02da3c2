// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"hive-staking/internal/item"
	"hive-staking/internal/reward"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Owner     OwnerConfig     `mapstructure:"owner"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Staking   StakingConfig   `mapstructure:"staking"`
	External  ExternalConfig  `mapstructure:"external"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
}

// BotConfig holds Telegram bot configuration. An empty token disables the bot.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	// Enabled selects PostgreSQL; when false state is kept in memory only.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// OwnerConfig identifies the pool owner.
type OwnerConfig struct {
	// ID is the owner's identity on the token ledger.
	ID string `mapstructure:"id"`
	// TelegramIDs may run owner commands from chat.
	TelegramIDs []int64 `mapstructure:"telegram_ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// StakingConfig holds engine parameters.
type StakingConfig struct {
	Lockup               time.Duration     `mapstructure:"lockup"`
	Policy               string            `mapstructure:"policy"`
	MonthlyAmount        string            `mapstructure:"monthly_amount"`
	DistributionInterval time.Duration     `mapstructure:"distribution_interval"`
	Weights              map[string]uint64 `mapstructure:"weights"`
}

// ExternalConfig locates the item registry and the token ledger.
type ExternalConfig struct {
	// CallerID is the identity the engine presents on outbound calls.
	CallerID       string        `mapstructure:"caller_id"`
	RegistryURL    string        `mapstructure:"registry_url"`
	RegistryID     string        `mapstructure:"registry_id"`
	TokenLedgerURL string        `mapstructure:"token_ledger_url"`
	TokenLedgerID  string        `mapstructure:"token_ledger_id"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// APIConfig holds the HTTP API configuration.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, DATABASE_HOST, OWNER_ID, STAKING_POLICY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "staking")
	v.SetDefault("database.name", "staking")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("staking.lockup", "720h")
	v.SetDefault("staking.policy", reward.PolicyAccrual)
	v.SetDefault("staking.distribution_interval", "720h")
	weights := make(map[string]any, len(item.Catalogue))
	for t, cfg := range item.Catalogue {
		weights[strings.ToLower(string(t))] = cfg.Weight
	}
	v.SetDefault("staking.weights", weights)

	v.SetDefault("external.timeout", "15s")

	v.SetDefault("api.listen", ":8080")
	v.SetDefault("log.level", "info")
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Owner.ID == "" {
		return fmt.Errorf("owner.id is required")
	}
	if c.External.TokenLedgerID == "" {
		return fmt.Errorf("external.token_ledger_id is required")
	}
	if c.Staking.Lockup <= 0 {
		return fmt.Errorf("staking.lockup must be positive")
	}
	if _, err := c.WeightTable(); err != nil {
		return fmt.Errorf("staking.weights: %w", err)
	}
	if _, err := c.RewardPolicy(); err != nil {
		return fmt.Errorf("staking.policy: %w", err)
	}
	return nil
}

// WeightTable builds the immutable weight table handed to the engine.
func (c *Config) WeightTable() (item.WeightTable, error) {
	return item.NewWeightTable(c.Staking.Weights)
}

// RewardPolicy builds the configured distribution policy.
func (c *Config) RewardPolicy() (reward.Policy, error) {
	var amount *uint256.Int
	if c.Staking.MonthlyAmount != "" {
		v, err := uint256.FromDecimal(c.Staking.MonthlyAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid monthly_amount %q: %w", c.Staking.MonthlyAmount, err)
		}
		amount = v
	}
	return reward.NewPolicy(c.Staking.Policy, amount, c.Staking.DistributionInterval)
}

// IsAdmin checks if a Telegram user may run owner commands.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Owner.TelegramIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
