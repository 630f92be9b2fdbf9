package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Classify   ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Sink       SinkConfig       `yaml:"sink" mapstructure:"sink"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SourcesConfig configures the upstream adapters.
type SourcesConfig struct {
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Enabled     []string      `yaml:"enabled" mapstructure:"enabled"`
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
	Pappers     PappersConfig `yaml:"pappers" mapstructure:"pappers"`
	Actify      ActifyConfig  `yaml:"actify" mapstructure:"actify"`
	Bodacc      BodaccConfig  `yaml:"bodacc" mapstructure:"bodacc"`
}

// PappersConfig configures the company registry adapter.
type PappersConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	APIToken    string        `yaml:"api_token" mapstructure:"api_token"`
	PageSize    int           `yaml:"page_size" mapstructure:"page_size"`
	MaxResults  int           `yaml:"max_results" mapstructure:"max_results"`
	RateLimit   float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Departments []string      `yaml:"departments" mapstructure:"departments"`
	Regions     []string      `yaml:"regions" mapstructure:"regions"`
	Succession  PappersSearch `yaml:"succession" mapstructure:"succession"`
	Distressed  PappersSearch `yaml:"distressed" mapstructure:"distressed"`
}

// PappersSearch is one named registry query.
type PappersSearch struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	AgeMin        int    `yaml:"age_min" mapstructure:"age_min"`
	AgeMax        int    `yaml:"age_max" mapstructure:"age_max"`
	CreatedBefore string `yaml:"created_before" mapstructure:"created_before"` // dd-mm-yyyy
	RevenueMin    int64  `yaml:"revenue_min" mapstructure:"revenue_min"`
	RevenueMax    int64  `yaml:"revenue_max" mapstructure:"revenue_max"`
	Procedure     string `yaml:"procedure" mapstructure:"procedure"` // any, none, open
}

// ActifyConfig configures the judicial-liquidation listing adapter.
type ActifyConfig struct {
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	MaxPages    int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxDetails  int      `yaml:"max_details" mapstructure:"max_details"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	SectorPaths []string `yaml:"sector_paths" mapstructure:"sector_paths"`
}

// BodaccConfig configures the legal-notice adapter.
type BodaccConfig struct {
	BaseURL      string   `yaml:"base_url" mapstructure:"base_url"`
	LookbackDays int      `yaml:"lookback_days" mapstructure:"lookback_days"`
	Departments  []string `yaml:"departments" mapstructure:"departments"`
	Keywords     []string `yaml:"keywords" mapstructure:"keywords"`
	PageSize     int      `yaml:"page_size" mapstructure:"page_size"`
	MaxResults   int      `yaml:"max_results" mapstructure:"max_results"`
	RateLimit    float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// NormalizeConfig configures the normalizer.
type NormalizeConfig struct {
	SectorsFile    string   `yaml:"sectors_file" mapstructure:"sectors_file"`
	RequireLegalID []string `yaml:"require_legal_id" mapstructure:"require_legal_id"`
}

// ClassifyConfig configures channel rules and scoring.
type ClassifyConfig struct {
	Succession SuccessionConfig   `yaml:"succession" mapstructure:"succession"`
	Distressed DistressedConfig   `yaml:"distressed" mapstructure:"distressed"`
	Weights    map[string]float64 `yaml:"weights" mapstructure:"weights"`
}

// SuccessionConfig holds the SUCCESSION rule thresholds.
type SuccessionConfig struct {
	MinDirectorAge    int   `yaml:"min_director_age" mapstructure:"min_director_age"`
	FoundedBeforeYear int   `yaml:"founded_before_year" mapstructure:"founded_before_year"`
	RevenueMin        int64 `yaml:"revenue_min" mapstructure:"revenue_min"`
	RevenueMax        int64 `yaml:"revenue_max" mapstructure:"revenue_max"`
}

// DistressedConfig holds the DISTRESSED strength parameters.
type DistressedConfig struct {
	HalfLifeDays int `yaml:"half_life_days" mapstructure:"half_life_days"`
}

// DedupConfig configures the merger.
type DedupConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
}

// SinkConfig configures snapshot output.
type SinkConfig struct {
	SnapshotPath string `yaml:"snapshot_path" mapstructure:"snapshot_path"`
	XLSXPath     string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures operator alerts.
type MonitoringConfig struct {
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	DropRateThreshold float64 `yaml:"drop_rate_threshold" mapstructure:"drop_rate_threshold"`
}

// MetricsConfig configures Prometheus output for batch runs.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the configuration for the given command mode
// ("run", "export" or "serve").
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Sink.SnapshotPath == "" {
		errs = append(errs, "sink.snapshot_path is required")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, "store.driver must be sqlite, postgres or none")
	}
	if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "run":
		if c.Sources.TimeoutSecs <= 0 {
			errs = append(errs, "sources.timeout_secs must be > 0")
		}
		s := c.Classify.Succession
		if s.RevenueMin > s.RevenueMax {
			errs = append(errs, "classify.succession.revenue_min exceeds revenue_max")
		}
		if c.Classify.Distressed.HalfLifeDays <= 0 {
			errs = append(errs, "classify.distressed.half_life_days must be > 0")
		}
		for k, w := range c.Classify.Weights {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("classify.weights.%s must be >= 0", k))
			}
		}
		if c.Dedup.FuzzyThreshold <= 0 || c.Dedup.FuzzyThreshold > 1 {
			errs = append(errs, "dedup.fuzzy_threshold must be in (0, 1]")
		}
		if c.Monitoring.DropRateThreshold < 0 || c.Monitoring.DropRateThreshold > 1 {
			errs = append(errs, "monitoring.drop_rate_threshold must be in [0, 1]")
		}
	case "export":
		if c.Sink.XLSXPath == "" {
			errs = append(errs, "sink.xlsx_path is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from config.yaml and REPRENEUR_* environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REPRENEUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("sources.timeout_secs", 300)
	v.SetDefault("sources.enabled", []string{"pappers", "actify", "bodacc"})
	v.SetDefault("sources.user_agent", "repreneur-cli/1.0 (+https://github.com/sells-group/repreneur-cli)")
	v.SetDefault("sources.pappers.base_url", "https://api.pappers.fr/v2")
	v.SetDefault("sources.pappers.api_token", "")
	v.SetDefault("sources.pappers.page_size", 100)
	v.SetDefault("sources.pappers.max_results", 500)
	v.SetDefault("sources.pappers.rate_limit", 2.0)
	v.SetDefault("sources.pappers.succession.enabled", true)
	v.SetDefault("sources.pappers.succession.age_min", 55)
	v.SetDefault("sources.pappers.succession.age_max", 80)
	v.SetDefault("sources.pappers.succession.created_before", "01-01-2000")
	v.SetDefault("sources.pappers.succession.revenue_min", 500000)
	v.SetDefault("sources.pappers.succession.revenue_max", 5000000)
	v.SetDefault("sources.pappers.succession.procedure", "none")
	v.SetDefault("sources.pappers.distressed.enabled", true)
	v.SetDefault("sources.pappers.distressed.procedure", "open")
	v.SetDefault("sources.actify.base_url", "https://actify.fr")
	v.SetDefault("sources.actify.max_pages", 10)
	v.SetDefault("sources.actify.max_details", 200)
	v.SetDefault("sources.actify.rate_limit", 1.25)
	v.SetDefault("sources.bodacc.base_url", "https://bodacc-datadila.opendatasoft.com/api/explore/v2.1")
	v.SetDefault("sources.bodacc.lookback_days", 30)
	v.SetDefault("sources.bodacc.page_size", 100)
	v.SetDefault("sources.bodacc.max_results", 2000)
	v.SetDefault("sources.bodacc.rate_limit", 5.0)
	v.SetDefault("normalize.sectors_file", "")
	v.SetDefault("normalize.require_legal_id", []string{"pappers", "bodacc"})
	v.SetDefault("classify.succession.min_director_age", 55)
	v.SetDefault("classify.succession.founded_before_year", 2000)
	v.SetDefault("classify.succession.revenue_min", 500000)
	v.SetDefault("classify.succession.revenue_max", 5000000)
	v.SetDefault("classify.distressed.half_life_days", 90)
	v.SetDefault("classify.weights", map[string]float64{"succession": 60, "distressed": 40})
	v.SetDefault("dedup.fuzzy_threshold", 0.85)
	v.SetDefault("sink.snapshot_path", "data/candidates.json")
	v.SetDefault("sink.xlsx_path", "data/candidates.xlsx")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/runs.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.drop_rate_threshold", 0.9)
	v.SetDefault("metrics.textfile_path", "")

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
