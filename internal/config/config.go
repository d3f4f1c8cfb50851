package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	LocalData LocalDataConfig `yaml:"localdata" mapstructure:"localdata"`
	Geo       GeoConfig       `yaml:"geo" mapstructure:"geo"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LocalDataConfig holds LOCALDATA open API settings.
type LocalDataConfig struct {
	Key           string   `yaml:"key" mapstructure:"key"`
	BaseURL       string   `yaml:"base_url" mapstructure:"base_url"`
	ServiceIDs    []string `yaml:"service_ids" mapstructure:"service_ids"`
	PageSize      int      `yaml:"page_size" mapstructure:"page_size"`
	MaxPages      int      `yaml:"max_pages" mapstructure:"max_pages"`
	RateLimit     float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency   int      `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts   int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	OnlyOperating bool     `yaml:"only_operating" mapstructure:"only_operating"`
}

// GeoConfig configures coordinate conversion and station matching.
type GeoConfig struct {
	StationsFile        string  `yaml:"stations_file" mapstructure:"stations_file"`
	MaxStationDistanceM float64 `yaml:"max_station_distance_m" mapstructure:"max_station_distance_m"`
}

// DedupConfig configures duplicate detection for saves, display and cleanup.
type DedupConfig struct {
	CheckBizID          bool    `yaml:"check_biz_id" mapstructure:"check_biz_id"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	DisplaySimilarity   bool    `yaml:"display_similarity" mapstructure:"display_similarity"`
	DeleteBatchSize     int     `yaml:"delete_batch_size" mapstructure:"delete_batch_size"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	AllowOrigins []string `yaml:"allow_origins" mapstructure:"allow_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("localdata.key", "")
	v.SetDefault("localdata.base_url", "http://www.localdata.go.kr/platform/rest/TO0/openDataApi")
	v.SetDefault("localdata.service_ids", []string{})
	v.SetDefault("localdata.page_size", 500)
	v.SetDefault("localdata.max_pages", 0)
	v.SetDefault("localdata.rate_limit", 5)
	v.SetDefault("localdata.concurrency", 4)
	v.SetDefault("localdata.timeout_secs", 30)
	v.SetDefault("localdata.max_attempts", 3)
	v.SetDefault("localdata.only_operating", true)
	v.SetDefault("geo.stations_file", "")
	v.SetDefault("geo.max_station_distance_m", 0)
	v.SetDefault("dedup.check_biz_id", true)
	v.SetDefault("dedup.similarity_threshold", 0.8)
	v.SetDefault("dedup.display_similarity", true)
	v.SetDefault("dedup.delete_batch_size", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_origins", []string{"*"})
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

// Validate checks the settings a command mode depends on.
// Modes: "migrate", "ingest", "dedup", "serve".
func (c *Config) Validate(mode string) error {
	var errs []error

	switch mode {
	case "migrate", "dedup":
	case "ingest":
		if c.LocalData.Key == "" {
			errs = append(errs, errors.New("localdata.key is required"))
		}
		errs = append(errs, c.validateLocalData()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, errors.New("server.port must be > 0"))
		}
		errs = append(errs, c.validateLocalData()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for postgres"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if t := c.Dedup.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, errors.New("dedup.similarity_threshold must be in (0, 1]"))
	}
	if c.Dedup.DeleteBatchSize <= 0 {
		errs = append(errs, errors.New("dedup.delete_batch_size must be > 0"))
	}
	if c.Geo.MaxStationDistanceM < 0 {
		errs = append(errs, errors.New("geo.max_station_distance_m must be >= 0"))
	}

	if len(errs) > 0 {
		return eris.Wrap(errors.Join(errs...), "config: validate "+mode)
	}
	return nil
}

func (c *Config) validateLocalData() []error {
	var errs []error
	if c.LocalData.PageSize < 1 || c.LocalData.PageSize > 1000 {
		errs = append(errs, errors.New("localdata.page_size must be between 1 and 1000"))
	}
	if c.LocalData.Concurrency < 1 || c.LocalData.Concurrency > 32 {
		errs = append(errs, errors.New("localdata.concurrency must be between 1 and 32"))
	}
	if c.LocalData.RateLimit <= 0 {
		errs = append(errs, errors.New("localdata.rate_limit must be > 0"))
	}
	return errs
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
