package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

// Config holds all keeper configuration.
type Config struct {
	Vault struct {
		Admin              string `yaml:"admin"`
		FeeTokenAccount    string `yaml:"fee_token_account"`
		RebalanceThreshold int    `yaml:"rebalance_threshold"`
		MaxFeeAmount       uint64 `yaml:"max_fee_amount"`
		MinRebalanceDelay  int64  `yaml:"min_rebalance_delay"`
	} `yaml:"vault"`
	PriceFeed struct {
		Source  string `yaml:"source"` // sidecar, yahoo or mock
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Symbol  string `yaml:"symbol"`
	} `yaml:"price_feed"`
	Pool struct {
		Mode    string `yaml:"mode"` // http or mock
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"pool"`
	Keeper struct {
		PriceCron            string `yaml:"price_cron"`
		HarvestCron          string `yaml:"harvest_cron"`
		AutoRebalance        bool   `yaml:"auto_rebalance"`
		RebalanceTokenAmount uint64 `yaml:"rebalance_token_amount"`
	} `yaml:"keeper"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
		StateFile  string `yaml:"state_file"` // used instead of SQLite when sqlite_path is "-"
	} `yaml:"database"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	Log struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("VAULT_ADMIN"); v != "" {
		cfg.Vault.Admin = v
	}
	if v := os.Getenv("VAULT_FEE_TOKEN_ACCOUNT"); v != "" {
		cfg.Vault.FeeTokenAccount = v
	}
	if v := os.Getenv("VAULT_REBALANCE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vault.RebalanceThreshold = n
		}
	}
	if v := os.Getenv("POOL_BASE_URL"); v != "" {
		cfg.Pool.BaseURL = v
	}
	if v := os.Getenv("POOL_API_KEY"); v != "" {
		cfg.Pool.APIKey = v
	}
	if v := os.Getenv("PRICE_FEED_BASE_URL"); v != "" {
		cfg.PriceFeed.BaseURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_ENCODING"); v != "" {
		cfg.Log.Encoding = v
	}

	// Defaults
	if cfg.Vault.RebalanceThreshold == 0 {
		cfg.Vault.RebalanceThreshold = 5
	}
	if cfg.Vault.MaxFeeAmount == 0 {
		cfg.Vault.MaxFeeAmount = 10000
	}
	if cfg.Vault.MinRebalanceDelay == 0 {
		cfg.Vault.MinRebalanceDelay = 3600
	}
	if cfg.PriceFeed.Source == "" {
		cfg.PriceFeed.Source = "sidecar"
	}
	if cfg.PriceFeed.Symbol == "" {
		cfg.PriceFeed.Symbol = "SOL-USDC"
	}
	if cfg.Pool.Mode == "" {
		cfg.Pool.Mode = "http"
	}
	if cfg.PriceFeed.BaseURL == "" {
		cfg.PriceFeed.BaseURL = cfg.Pool.BaseURL
	}
	if cfg.Keeper.PriceCron == "" {
		cfg.Keeper.PriceCron = "*/10 * * * * *"
	}
	if cfg.Keeper.HarvestCron == "" {
		cfg.Keeper.HarvestCron = "0 0 * * * *"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/dynamic_vault.db"
	}
	if cfg.Database.StateFile == "" {
		cfg.Database.StateFile = "data/vault_state.json"
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":9102"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "json"
	}

	return cfg, nil
}

// Validate checks that all required fields are set and within bounds.
func (c *Config) Validate() error {
	if _, err := solana.PublicKeyFromBase58(c.Vault.Admin); err != nil {
		return fmt.Errorf("vault.admin: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(c.Vault.FeeTokenAccount); err != nil {
		return fmt.Errorf("vault.fee_token_account: %w", err)
	}
	if c.Vault.RebalanceThreshold < 1 || c.Vault.RebalanceThreshold > 100 {
		return fmt.Errorf("vault.rebalance_threshold must be between 1-100")
	}
	if c.Vault.MinRebalanceDelay <= 0 {
		return fmt.Errorf("vault.min_rebalance_delay must be positive")
	}
	switch c.Pool.Mode {
	case "mock":
	case "http":
		if c.Pool.BaseURL == "" {
			return fmt.Errorf("pool.base_url is required in http mode")
		}
	default:
		return fmt.Errorf("pool.mode must be http or mock, got %q", c.Pool.Mode)
	}
	switch c.PriceFeed.Source {
	case "mock", "yahoo":
	case "sidecar":
		if c.PriceFeed.BaseURL == "" {
			return fmt.Errorf("price_feed.base_url is required for the sidecar source")
		}
	default:
		return fmt.Errorf("price_feed.source must be sidecar, yahoo or mock, got %q", c.PriceFeed.Source)
	}
	if c.Keeper.PriceCron == "" || c.Keeper.HarvestCron == "" {
		return fmt.Errorf("keeper.price_cron and keeper.harvest_cron are required")
	}
	if c.Keeper.AutoRebalance && c.Keeper.RebalanceTokenAmount == 0 {
		return fmt.Errorf("keeper.rebalance_token_amount is required when auto_rebalance is on")
	}
	return nil
}

// AdminKey returns the parsed admin identity. Call Validate first.
func (c *Config) AdminKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Vault.Admin)
}

// FeeTokenAccountKey returns the parsed fee destination. Call Validate first.
func (c *Config) FeeTokenAccountKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Vault.FeeTokenAccount)
}
