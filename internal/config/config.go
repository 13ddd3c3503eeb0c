package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log         LogConfig        `yaml:"log" mapstructure:"log"`
	HTTP        HTTPConfig       `yaml:"http" mapstructure:"http"`
	Matrikkel   BackendConfig    `yaml:"matrikkel" mapstructure:"matrikkel"`
	Stedsnavn   BackendConfig    `yaml:"stedsnavn" mapstructure:"stedsnavn"`
	Nominatim   NominatimConfig  `yaml:"nominatim" mapstructure:"nominatim"`
	Kommuneinfo BackendConfig    `yaml:"kommuneinfo" mapstructure:"kommuneinfo"`
	Postnummer  PostnummerConfig `yaml:"postnummer" mapstructure:"postnummer"`
	Street      StreetConfig     `yaml:"street" mapstructure:"street"`
	Retry       RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Batch       BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig     `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// HTTPConfig is shared by every backend client.
type HTTPConfig struct {
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// BackendConfig configures one geonorge service.
type BackendConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// NominatimConfig configures the general geocoder and its usage policy.
type NominatimConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Email       string        `yaml:"email" mapstructure:"email"`
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`
	HourlyLimit int           `yaml:"hourly_limit" mapstructure:"hourly_limit"`
	Window      time.Duration `yaml:"window" mapstructure:"window"`
}

// PostnummerConfig locates the postal code register. File wins over URL.
type PostnummerConfig struct {
	URL  string `yaml:"url" mapstructure:"url"`
	File string `yaml:"file" mapstructure:"file"`
}

// StreetConfig configures the street name normalizer.
type StreetConfig struct {
	SynonymsFile  string `yaml:"synonyms_file" mapstructure:"synonyms_file"`
	MaxVariants   int    `yaml:"max_variants" mapstructure:"max_variants"`
	QueryVariants int    `yaml:"query_variants" mapstructure:"query_variants"`
}

// RetryConfig configures retries of backend calls.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// CircuitConfig configures the per-backend circuit breakers.
type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" mapstructure:"reset_timeout"`
}

// BatchConfig configures file runs.
type BatchConfig struct {
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	RunLog      bool `yaml:"run_log" mapstructure:"run_log"`
	OSMExport   bool `yaml:"osm_export" mapstructure:"osm_export"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOCODE2OSM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("http.user_agent", "osm-no/geocode2osm")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("matrikkel.base_url", "https://ws.geonorge.no/adresser/v1")
	v.SetDefault("matrikkel.enabled", true)
	v.SetDefault("stedsnavn.base_url", "https://ws.geonorge.no/stedsnavn/v1")
	v.SetDefault("stedsnavn.enabled", true)
	v.SetDefault("kommuneinfo.base_url", "https://ws.geonorge.no/kommuneinfo/v1")
	v.SetDefault("kommuneinfo.enabled", true)
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.enabled", true)
	v.SetDefault("nominatim.email", "")
	v.SetDefault("nominatim.interval", time.Second)
	v.SetDefault("nominatim.hourly_limit", 500)
	v.SetDefault("nominatim.window", time.Hour)
	v.SetDefault("postnummer.url", "https://www.bring.no/postnummerregister-ansi.txt")
	v.SetDefault("postnummer.file", "")
	v.SetDefault("street.synonyms_file", "")
	v.SetDefault("street.max_variants", 48)
	v.SetDefault("street.query_variants", 6)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff", 5*time.Second)
	v.SetDefault("retry.max_backoff", 80*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout", 2*time.Minute)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.run_log", false)
	v.SetDefault("batch.osm_export", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

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

// Validate checks the settings the resolver cannot run without.
func (c *Config) Validate() error {
	if !c.Matrikkel.Enabled && !c.Stedsnavn.Enabled && !c.Nominatim.Enabled {
		return eris.New("config: all backends are disabled")
	}
	if c.Nominatim.Enabled && c.Nominatim.HourlyLimit <= 0 {
		return eris.Errorf("config: nominatim.hourly_limit must be positive, got %d", c.Nominatim.HourlyLimit)
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
		return eris.Errorf("config: batch.concurrency must be between 1 and 32, got %d", c.Batch.Concurrency)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// InitLogger initializes the global zap logger. Logs go to stderr so that
// command output on stdout stays machine readable.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.DisableStacktrace = true
		zapCfg.EncoderConfig.TimeKey = ""
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
