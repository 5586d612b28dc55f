// Package config loads the application configuration from file,
// environment and defaults, in that order of increasing precedence for
// env and decreasing for defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Clean1ines/iXe/internal/models"
	"github.com/Clean1ines/iXe/internal/utils"
)

// Store backends the CLI can select.
const (
	StoreSQLite = "sqlite"
	StoreJSONL  = "jsonl"
)

// OutputConfig controls where run artifacts land.
type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	Store         string `mapstructure:"store"`
	DBPath        string `mapstructure:"db_path"`
	CheckpointDir string `mapstructure:"checkpoint_dir"`
}

// Config is the full application configuration.
type Config struct {
	Scrape  models.ScrapeConfig `mapstructure:"scrape"`
	Logging utils.LogConfig     `mapstructure:"logging"`
	Output  OutputConfig        `mapstructure:"output"`
}

// LoadConfig reads config.yaml from the usual locations, or the
// explicit path when given. A missing file is not an error; defaults
// and IXE_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ixe")
	}

	v.SetEnvPrefix("IXE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if err := c.Scrape.Validate(); err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	switch c.Output.Store {
	case StoreSQLite, StoreJSONL:
	default:
		return fmt.Errorf("output.store must be %q or %q, got %q", StoreSQLite, StoreJSONL, c.Output.Store)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Scraping target. The default project is the informatics bank.
	v.SetDefault("scrape.base_url", "https://ege.fipi.ru/bank/questions.php")
	v.SetDefault("scrape.subjects_url", "https://ege.fipi.ru/bank/")
	v.SetDefault("scrape.max_concurrent_renderers", 2)
	v.SetDefault("scrape.max_requests_per_sec", 1.0)
	v.SetDefault("scrape.max_empty_pages", 2)
	v.SetDefault("scrape.total_pages", 0)
	v.SetDefault("scrape.fetch_timeout_sec", 30)
	v.SetDefault("scrape.render_timeout_sec", 60)
	v.SetDefault("scrape.settle_delay_ms", 1500)
	v.SetDefault("scrape.headless", true)
	v.SetDefault("scrape.insecure_tls", true)
	v.SetDefault("scrape.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.console", true)

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.store", StoreSQLite)
	v.SetDefault("output.db_path", "output/problems.db")
	v.SetDefault("output.checkpoint_dir", "output/checkpoints")
}
