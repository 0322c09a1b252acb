package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Service    ServiceConfig    `yaml:"service" mapstructure:"service"`
	Viewport   ViewportConfig   `yaml:"viewport" mapstructure:"viewport"`
	Chunk      ChunkConfig      `yaml:"chunk" mapstructure:"chunk"`
	Render     RenderConfig     `yaml:"render" mapstructure:"render"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// ServiceConfig configures the zone data service client.
type ServiceConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	CircuitThreshold int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
	CoordOrder       string  `yaml:"coord_order" mapstructure:"coord_order"`
	// Fixture, when set, serves zones from a GeoJSON file instead of the
	// service.
	Fixture string `yaml:"fixture" mapstructure:"fixture"`
}

// Timeout returns the request timeout.
func (c ServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ViewportConfig configures the initial view and zoom limits.
type ViewportConfig struct {
	Width   int     `yaml:"width" mapstructure:"width"`
	Height  int     `yaml:"height" mapstructure:"height"`
	Year    int     `yaml:"year" mapstructure:"year"`
	Top     float64 `yaml:"top" mapstructure:"top"`
	Left    float64 `yaml:"left" mapstructure:"left"`
	Bottom  float64 `yaml:"bottom" mapstructure:"bottom"`
	Right   float64 `yaml:"right" mapstructure:"right"`
	MinSpan float64 `yaml:"min_span" mapstructure:"min_span"`
	MaxSpan float64 `yaml:"max_span" mapstructure:"max_span"`
	ZoomIn  float64 `yaml:"zoom_in" mapstructure:"zoom_in"`
	ZoomOut float64 `yaml:"zoom_out" mapstructure:"zoom_out"`
}

// ChunkConfig configures refresh cycles and the cell cache.
type ChunkConfig struct {
	Policy         string `yaml:"policy" mapstructure:"policy"`
	GridSize       int    `yaml:"grid_size" mapstructure:"grid_size"`
	MaxConcurrency int    `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	CacheSize      int    `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs   int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// RenderConfig configures drawing and the two periodic tasks.
type RenderConfig struct {
	StyleFile string `yaml:"style_file" mapstructure:"style_file"`
	RefreshMS int    `yaml:"refresh_ms" mapstructure:"refresh_ms"`
	RedrawMS  int    `yaml:"redraw_ms" mapstructure:"redraw_ms"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background health checker.
type MonitoringConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleAfterSecs    int     `yaml:"stale_after_secs" mapstructure:"stale_after_secs"`
	FailureThreshold  int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CellFailureRate   float64 `yaml:"cell_failure_rate" mapstructure:"cell_failure_rate"`
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
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
	v.SetConfigName("zonemap")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ZONEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("service.base_url", "http://127.0.0.1:8080/api")
	v.SetDefault("service.timeout_secs", 30)
	v.SetDefault("service.rate_limit", 50)
	v.SetDefault("service.retry_attempts", 3)
	v.SetDefault("service.circuit_threshold", 5)
	v.SetDefault("service.circuit_reset_secs", 30)
	v.SetDefault("service.coord_order", "latlon")
	v.SetDefault("service.fixture", "")
	v.SetDefault("viewport.width", 800)
	v.SetDefault("viewport.height", 600)
	v.SetDefault("viewport.year", 2024)
	v.SetDefault("viewport.top", 51.0)
	v.SetDefault("viewport.left", 14.0)
	v.SetDefault("viewport.bottom", 50.0)
	v.SetDefault("viewport.right", 15.0)
	v.SetDefault("viewport.min_span", 0.01)
	v.SetDefault("viewport.max_span", 170.0)
	v.SetDefault("viewport.zoom_in", 0.9)
	v.SetDefault("viewport.zoom_out", 1.1)
	v.SetDefault("chunk.policy", "grid")
	v.SetDefault("chunk.grid_size", 3)
	v.SetDefault("chunk.max_concurrency", 9)
	v.SetDefault("chunk.cache_size", 512)
	v.SetDefault("chunk.cache_ttl_secs", 300)
	v.SetDefault("render.style_file", "")
	v.SetDefault("render.refresh_ms", 100)
	v.SetDefault("render.redraw_ms", 25)
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 60)
	v.SetDefault("monitoring.stale_after_secs", 300)
	v.SetDefault("monitoring.failure_threshold", 5)
	v.SetDefault("monitoring.cell_failure_rate", 0.5)
	v.SetDefault("monitoring.webhook_url", "")

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

// Validate checks the fields a command needs. mode is one of "render",
// "serve" or "grid".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "render", "serve":
		errs = append(errs, c.validateView()...)
		errs = append(errs, c.validateChunk()...)
		if c.Service.Fixture == "" && c.Service.BaseURL == "" {
			errs = append(errs, "service.base_url or service.fixture is required")
		}
		if c.Service.CoordOrder != "" && c.Service.CoordOrder != "latlon" && c.Service.CoordOrder != "lonlat" {
			errs = append(errs, fmt.Sprintf("service.coord_order must be latlon or lonlat, got %q", c.Service.CoordOrder))
		}
		if mode == "serve" {
			if c.Server.Port <= 0 || c.Server.Port > 65535 {
				errs = append(errs, "server.port must be > 0 and <= 65535")
			}
			if c.Render.RefreshMS <= 0 || c.Render.RedrawMS <= 0 {
				errs = append(errs, "render.refresh_ms and render.redraw_ms must be > 0")
			}
		}
	case "grid":
		errs = append(errs, c.validateChunk()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateView() []string {
	var errs []string
	vp := c.Viewport
	if vp.Width <= 0 || vp.Height <= 0 {
		errs = append(errs, "viewport.width and viewport.height must be > 0")
	}
	if vp.Year < 1900 || vp.Year > 2100 {
		errs = append(errs, "viewport.year must be between 1900 and 2100")
	}
	if vp.Top <= vp.Bottom {
		errs = append(errs, "viewport.top must be greater than viewport.bottom")
	}
	if vp.Left >= vp.Right {
		errs = append(errs, "viewport.left must be less than viewport.right")
	}
	if vp.MinSpan <= 0 || vp.MaxSpan <= vp.MinSpan {
		errs = append(errs, "viewport.min_span must be > 0 and below viewport.max_span")
	}
	if vp.ZoomIn <= 0 || vp.ZoomIn >= 1 || vp.ZoomOut <= 1 {
		errs = append(errs, "viewport.zoom_in must be in (0,1) and viewport.zoom_out > 1")
	}
	return errs
}

func (c *Config) validateChunk() []string {
	var errs []string
	if c.Chunk.Policy != "grid" && c.Chunk.Policy != "single" {
		errs = append(errs, fmt.Sprintf("chunk.policy must be grid or single, got %q", c.Chunk.Policy))
	}
	if c.Chunk.GridSize < 1 || c.Chunk.GridSize > 16 {
		errs = append(errs, "chunk.grid_size must be between 1 and 16")
	}
	if c.Chunk.MaxConcurrency < 0 {
		errs = append(errs, "chunk.max_concurrency must be >= 0")
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
