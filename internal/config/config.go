package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/respstack/respstats/internal/utils"
)

// Config captures the settings required to boot the stats engine.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sources  []SourceConfig `yaml:"sources"`
	Geo      GeoConfig      `yaml:"geo"`
	Script   ScriptConfig   `yaml:"script"`
	Reports  ReportsConfig  `yaml:"reports"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// PipelineConfig controls pipeline execution.
type PipelineConfig struct {
	Workers          int           `yaml:"workers"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
	WindowStart      string        `yaml:"windowStart"`
	WindowEnd        string        `yaml:"windowEnd"`
}

// Window parses the optional load window. Both bounds empty means no window.
func (p PipelineConfig) Window() (time.Time, time.Time, bool, error) {
	if p.WindowStart == "" && p.WindowEnd == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	from, to, err := utils.ParseWindow(p.WindowStart, p.WindowEnd)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return from, to, true, nil
}

// SourceConfig describes one record source and its column mappings.
type SourceConfig struct {
	Name             string          `yaml:"name"`
	Type             string          `yaml:"type"`
	Path             string          `yaml:"path"`
	URL              string          `yaml:"url"`
	Timeout          time.Duration   `yaml:"timeout"`
	IDColumn         string          `yaml:"idColumn"`
	ResponseIDColumn string          `yaml:"responseIDColumn"`
	TimeColumn       string          `yaml:"timeColumn"`
	Mappings         []MappingConfig `yaml:"mappings"`
}

// MappingConfig binds a source column to an incident, response, or benchmark field.
type MappingConfig struct {
	Field  string `yaml:"field"`
	Column string `yaml:"column"`
	Kind   string `yaml:"kind"`
}

// GeoConfig controls geographic enrichment. Cache selects the lookup cache
// backend: "none", "memory", or "valkey".
type GeoConfig struct {
	RegionsPath string             `yaml:"regionsPath"`
	Cache       string             `yaml:"cache"`
	CacheTTL    time.Duration      `yaml:"cacheTTL"`
	Valkey      ValkeyConfig       `yaml:"valkey"`
	Mappings    []GeoMappingConfig `yaml:"mappings"`
}

// ValkeyConfig configures the external geo lookup cache.
type ValkeyConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// GeoMappingConfig routes one looked-up attribute onto incidents or responses.
type GeoMappingConfig struct {
	Attribute string `yaml:"attribute"`
	Target    string `yaml:"target"`
	Field     string `yaml:"field"`
}

// ScriptConfig points at an optional post-processing script.
type ScriptConfig struct {
	Path string `yaml:"path"`
}

// ReportsConfig points at the report pack executed after each run.
type ReportsConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RESPSTATS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{
			Address:         ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:          0, // 0 means NumCPU-1
			ProgressInterval: 500 * time.Millisecond,
		},
		Reports: ReportsConfig{Path: "configs/reports/default.yaml"},
	}
}

func validate(cfg *Config) error {
	for i, src := range cfg.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		switch src.Type {
		case "csv":
			if src.Path == "" {
				return fmt.Errorf("source %s: csv sources require a path", src.Name)
			}
		case "http":
			if src.URL == "" {
				return fmt.Errorf("source %s: http sources require a url", src.Name)
			}
		default:
			return fmt.Errorf("source %s: unknown type %q", src.Name, src.Type)
		}
		if src.IDColumn == "" {
			return fmt.Errorf("source %s: idColumn is required", src.Name)
		}
	}

	for i, m := range cfg.Geo.Mappings {
		switch m.Target {
		case "", "incident", "responses", "timings":
		default:
			return fmt.Errorf("geo.mappings[%d]: unknown target %q", i, m.Target)
		}
	}

	switch cfg.Geo.Cache {
	case "", "none", "memory":
	case "valkey":
		if cfg.Geo.Valkey.Addr == "" {
			return fmt.Errorf("geo: valkey cache requires an addr")
		}
	default:
		return fmt.Errorf("geo: unknown cache backend %q", cfg.Geo.Cache)
	}

	if _, _, _, err := cfg.Pipeline.Window(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RESPSTATS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RESPSTATS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RESPSTATS_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("RESPSTATS_PIPELINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("RESPSTATS_PROGRESS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.ProgressInterval = d
		}
	}
	if v := os.Getenv("RESPSTATS_WINDOW_START"); v != "" {
		cfg.Pipeline.WindowStart = v
	}
	if v := os.Getenv("RESPSTATS_WINDOW_END"); v != "" {
		cfg.Pipeline.WindowEnd = v
	}
	if v := os.Getenv("RESPSTATS_REGIONS_PATH"); v != "" {
		cfg.Geo.RegionsPath = v
	}
	if v := os.Getenv("RESPSTATS_GEO_CACHE"); v != "" {
		cfg.Geo.Cache = strings.ToLower(v)
	}
	if v := os.Getenv("RESPSTATS_VALKEY_ADDR"); v != "" {
		cfg.Geo.Valkey.Addr = v
	}
	if v := os.Getenv("RESPSTATS_VALKEY_PASSWORD"); v != "" {
		cfg.Geo.Valkey.Password = v
	}
	if v := os.Getenv("RESPSTATS_SCRIPT_PATH"); v != "" {
		cfg.Script.Path = v
	}
	if v := os.Getenv("RESPSTATS_REPORTS_PATH"); v != "" {
		cfg.Reports.Path = v
	}
}
