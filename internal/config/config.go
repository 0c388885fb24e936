// Package config loads and validates catalog builder configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// Checkpoint backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Output sinks.
const (
	SinkLocal    = "local"
	SinkGCS      = "gcs"
	SinkMemory   = "memory"
	SinkPostgres = "postgres"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Scan       ScanConfig       `mapstructure:"scan"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Activeness ActivenessConfig `mapstructure:"activeness"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Output     OutputConfig     `mapstructure:"output"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ScanConfig governs the id scan.
type ScanConfig struct {
	Lo          int           `mapstructure:"lo"`
	Hi          int           `mapstructure:"hi"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffUnit time.Duration `mapstructure:"backoff_unit"`
}

// HTTPConfig configures the shared transport.
type HTTPConfig struct {
	Concurrency         int     `mapstructure:"concurrency"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
	ProbeTimeoutSeconds int     `mapstructure:"probe_timeout_seconds"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
	UserAgent           string  `mapstructure:"user_agent"`
}

// ProviderConfig holds the upstream endpoints and content markers.
type ProviderConfig struct {
	APIBaseURL           string `mapstructure:"api_base_url"`
	MetadataContainerURL string `mapstructure:"metadata_container_url"`
	MetadataContentURL   string `mapstructure:"metadata_content_url"`
	DailyMarker          string `mapstructure:"daily_marker"`
	DailyWindowDays      int    `mapstructure:"daily_window_days"`
	CodeTemplate         string `mapstructure:"code_template"`
	DateLayout           string `mapstructure:"date_layout"`
}

// ActivenessConfig maps periodicity labels to freshness windows in days.
type ActivenessConfig struct {
	Thresholds  map[string]int `mapstructure:"thresholds"`
	DefaultDays int            `mapstructure:"default_days"`
}

// CheckpointConfig selects where scan progress is kept.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	Archive bool   `mapstructure:"archive"`
}

// OutputConfig selects where the catalog is written.
type OutputConfig struct {
	Sinks       []string `mapstructure:"sinks"`
	Path        string   `mapstructure:"path"`
	Name        string   `mapstructure:"name"`
	Format      string   `mapstructure:"format"`
	GCSBucket   string   `mapstructure:"gcs_bucket"`
	GCSEndpoint string   `mapstructure:"gcs_endpoint"`
	Prefix      string   `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	CheckpointTable string `mapstructure:"checkpoint_table"`
	CatalogTable    string `mapstructure:"catalog_table"`
	MaxConns        int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds the optional completion notice destination.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig enables the status listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SGSCATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// A configured threshold map replaces the defaults as a whole.
	if len(cfg.Activeness.Thresholds) == 0 {
		cfg.Activeness.Thresholds = catalog.DefaultThresholds()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.lo", 1)
	v.SetDefault("scan.hi", 100000)
	v.SetDefault("scan.batch_size", 2000)
	v.SetDefault("scan.max_retries", 2)
	v.SetDefault("scan.backoff_unit", "1s")
	v.SetDefault("http.concurrency", 50)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.probe_timeout_seconds", 5)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.user_agent", "sgs-catalog/0.1")
	v.SetDefault("provider.api_base_url", catalog.DefaultAPIBaseURL)
	v.SetDefault("provider.metadata_container_url", catalog.DefaultMetadataContainerURL)
	v.SetDefault("provider.metadata_content_url", catalog.DefaultMetadataContentURL)
	v.SetDefault("provider.daily_marker", "periodicidade diária")
	v.SetDefault("provider.daily_window_days", 30)
	v.SetDefault("provider.code_template", catalog.DefaultCodeTemplate)
	v.SetDefault("provider.date_layout", catalog.DefaultProviderDateLayout)
	v.SetDefault("activeness.default_days", catalog.DefaultThresholdDays)
	v.SetDefault("checkpoint.backend", BackendFile)
	v.SetDefault("checkpoint.path", "bcb_discovery_progress.json")
	v.SetDefault("checkpoint.archive", false)
	v.SetDefault("output.sinks", []string{SinkLocal})
	v.SetDefault("output.path", ".")
	v.SetDefault("output.name", "sgs_series_catalog")
	v.SetDefault("output.format", "jsonl")
	v.SetDefault("output.prefix", "catalog")
	v.SetDefault("db.checkpoint_table", "sgs_checkpoint")
	v.SetDefault("db.catalog_table", "sgs_catalog")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scan.Lo < 0 || c.Scan.Hi < c.Scan.Lo {
		return fmt.Errorf("scan range [%d, %d] is invalid", c.Scan.Lo, c.Scan.Hi)
	}
	if c.Scan.Hi > catalog.MaxSeriesID {
		return fmt.Errorf("scan.hi %d exceeds %d", c.Scan.Hi, catalog.MaxSeriesID)
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan.batch_size must be > 0")
	}
	if c.Scan.MaxRetries < 0 {
		return fmt.Errorf("scan.max_retries must be >= 0")
	}
	if c.HTTP.Concurrency <= 0 {
		return fmt.Errorf("http.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("http.probe_timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if !strings.Contains(c.Provider.APIBaseURL, "%d") {
		return fmt.Errorf("provider.api_base_url must contain %%d")
	}
	if !strings.Contains(c.Provider.MetadataContainerURL, "%d") {
		return fmt.Errorf("provider.metadata_container_url must contain %%d")
	}
	if c.Provider.MetadataContentURL == "" {
		return fmt.Errorf("provider.metadata_content_url must be set")
	}
	if c.Provider.DailyWindowDays <= 0 {
		return fmt.Errorf("provider.daily_window_days must be > 0")
	}
	if !strings.Contains(c.Provider.CodeTemplate, "%") {
		return fmt.Errorf("provider.code_template must contain a format verb")
	}

	switch c.Checkpoint.Backend {
	case BackendFile:
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint.path must be set for the file backend")
		}
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres checkpoint backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("checkpoint.backend %q is not supported", c.Checkpoint.Backend)
	}

	if len(c.Output.Sinks) == 0 {
		return fmt.Errorf("output.sinks must name at least one sink")
	}
	for _, s := range c.Output.Sinks {
		switch s {
		case SinkLocal, SinkMemory:
		case SinkGCS:
			if c.Output.GCSBucket == "" {
				return fmt.Errorf("output.gcs_bucket must be set for the gcs sink")
			}
		case SinkPostgres:
			if c.DB.DSN == "" {
				return fmt.Errorf("db.dsn must be set for the postgres sink")
			}
		default:
			return fmt.Errorf("output sink %q is not supported", s)
		}
	}
	switch strings.ToLower(c.Output.Format) {
	case "jsonl", "yaml", "yml":
	default:
		return fmt.Errorf("output.format %q is not supported", c.Output.Format)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequestTimeout is the enrichment request budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ProbeTimeout is the classification probe budget.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.HTTP.ProbeTimeoutSeconds) * time.Second
}

// DailyWindow is how far back the daily observation lookup reaches.
func (c Config) DailyWindow() time.Duration {
	return time.Duration(c.Provider.DailyWindowDays) * 24 * time.Hour
}

// Endpoints converts the provider section into catalog endpoints.
func (c Config) Endpoints() catalog.Endpoints {
	return catalog.Endpoints{
		APIBaseURL:           c.Provider.APIBaseURL,
		MetadataContainerURL: c.Provider.MetadataContainerURL,
		MetadataContentURL:   c.Provider.MetadataContentURL,
		DateLayout:           c.Provider.DateLayout,
	}
}

// ActivenessClassifier builds the freshness classifier.
func (c Config) ActivenessClassifier() catalog.Activeness {
	return catalog.NewActiveness(c.Activeness.Thresholds, c.Activeness.DefaultDays)
}

// UsesPostgres reports whether any component needs a database pool.
func (c Config) UsesPostgres() bool {
	if c.Checkpoint.Backend == BackendPostgres {
		return true
	}
	for _, s := range c.Output.Sinks {
		if s == SinkPostgres {
			return true
		}
	}
	return false
}
