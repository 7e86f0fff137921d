package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Analyze AnalyzeConfig `yaml:"analyze" mapstructure:"analyze"`
	Reports ReportsConfig `yaml:"reports" mapstructure:"reports"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	FTP     FTPConfig     `yaml:"ftp" mapstructure:"ftp"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// AnalyzeConfig configures batch analysis runs.
type AnalyzeConfig struct {
	Source      string `yaml:"source" mapstructure:"source"`
	Dest        string `yaml:"dest" mapstructure:"dest"`
	CopyNumbers string `yaml:"copy_numbers" mapstructure:"copy_numbers"`
	Workers     int    `yaml:"workers" mapstructure:"workers"`
}

// ReportsConfig selects optional report artifacts.
type ReportsConfig struct {
	XLSX bool `yaml:"xlsx" mapstructure:"xlsx"`
}

// StoreConfig configures the run-history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the upload/analyze HTTP server.
type ServerConfig struct {
	Port          int      `yaml:"port" mapstructure:"port"`
	BaseDir       string   `yaml:"base_dir" mapstructure:"base_dir"`
	MaxUploadMB   int64    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	RatePerSecond float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins   []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// FTPConfig holds credentials and limits for ftp:// sources.
type FTPConfig struct {
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FISCAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("analyze.workers", 8)
	v.SetDefault("reports.xlsx", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "fiscal.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_dir", filepath.Join(os.TempDir(), "analyze_files"))
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("server.rate_per_second", 1.0)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("ftp.max_retries", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required by the given command mode are
// present and within bounds. Flag values must be merged in before calling.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "analyze":
		if c.Analyze.Source == "" {
			problems = append(problems, "analyze.source is required")
		}
		if c.Analyze.Dest == "" {
			problems = append(problems, "analyze.dest is required")
		}
		if c.Analyze.Workers < 1 || c.Analyze.Workers > 64 {
			problems = append(problems, "analyze.workers must be between 1 and 64")
		}
		checkStore()
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.MaxUploadMB < 1 || c.Server.MaxUploadMB > 1024 {
			problems = append(problems, "server.max_upload_mb must be between 1 and 1024")
		}
		if c.Server.RatePerSecond <= 0 {
			problems = append(problems, "server.rate_per_second must be > 0")
		}
		if c.Server.RateBurst < 1 {
			problems = append(problems, "server.rate_burst must be >= 1")
		}
		checkStore()
	case "runs":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
