package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Imagery  ImageryConfig  `yaml:"imagery" mapstructure:"imagery"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	NDVI     NDVIConfig     `yaml:"ndvi" mapstructure:"ndvi"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StoreConfig selects the field store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ImageryConfig configures the satellite statistics provider.
type ImageryConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	TokenURL         string `yaml:"token_url" mapstructure:"token_url"`
	ClientID         string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret     string `yaml:"client_secret" mapstructure:"client_secret"`
	Collection       string `yaml:"collection" mapstructure:"collection"`
	MaxCloudCoverage int    `yaml:"max_cloud_coverage" mapstructure:"max_cloud_coverage"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerFailures  int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Enabled reports whether client credentials are configured.
func (c ImageryConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// BoundaryConfig configures the field boundary sources.
type BoundaryConfig struct {
	GeometryURL string  `yaml:"geometry_url" mapstructure:"geometry_url"`
	GeometryKey string  `yaml:"geometry_key" mapstructure:"geometry_key"`
	GeometryRPS float64 `yaml:"geometry_rps" mapstructure:"geometry_rps"`
	// LocalURL is an external field API. Empty means this service's own
	// fields: the serve port, or the store for one-shot commands.
	LocalURL    string `yaml:"local_url" mapstructure:"local_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
}

// NDVIConfig tunes aggregation.
type NDVIConfig struct {
	WindowDays          int `yaml:"window_days" mapstructure:"window_days"`
	MaxConcurrentFields int `yaml:"max_concurrent_fields" mapstructure:"max_concurrent_fields"`
}

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back to
// ./config.yaml; a named file that cannot be read is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("FARMNDVI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so AutomaticEnv can override it.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "farmndvi.db")
	v.SetDefault("imagery.base_url", "https://services.sentinel-hub.com")
	v.SetDefault("imagery.token_url", "https://services.sentinel-hub.com/auth/realms/main/protocol/openid-connect/token")
	v.SetDefault("imagery.client_id", "")
	v.SetDefault("imagery.client_secret", "")
	v.SetDefault("imagery.collection", "sentinel-2-l2a")
	v.SetDefault("imagery.max_cloud_coverage", 30)
	v.SetDefault("imagery.timeout_secs", 30)
	v.SetDefault("imagery.breaker_failures", 5)
	v.SetDefault("imagery.breaker_reset_secs", 60)
	v.SetDefault("boundary.geometry_url", "")
	v.SetDefault("boundary.geometry_key", "")
	v.SetDefault("boundary.geometry_rps", 5)
	v.SetDefault("boundary.local_url", "")
	v.SetDefault("boundary.timeout_secs", 20)
	v.SetDefault("boundary.retries", 2)
	v.SetDefault("ndvi.window_days", 90)
	v.SetDefault("ndvi.max_concurrent_fields", 8)

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

// Validate checks the settings a command needs. mode is the command name;
// "serve" additionally requires a usable port.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.NDVI.WindowDays <= 0 {
		problems = append(problems, "ndvi.window_days must be positive")
	}
	if c.Imagery.MaxCloudCoverage < 0 || c.Imagery.MaxCloudCoverage > 100 {
		problems = append(problems, "imagery.max_cloud_coverage must be between 0 and 100")
	}
	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
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
