package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no zonemap.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "http://127.0.0.1:8080/api", cfg.Service.BaseURL)
	assert.Equal(t, 30, cfg.Service.TimeoutSecs)
	assert.InDelta(t, 50, cfg.Service.RateLimit, 0.001)
	assert.Equal(t, 3, cfg.Service.RetryAttempts)
	assert.Equal(t, 5, cfg.Service.CircuitThreshold)
	assert.Equal(t, "latlon", cfg.Service.CoordOrder)
	assert.Equal(t, 800, cfg.Viewport.Width)
	assert.Equal(t, 600, cfg.Viewport.Height)
	assert.Equal(t, 2024, cfg.Viewport.Year)
	assert.InDelta(t, 51, cfg.Viewport.Top, 0.001)
	assert.InDelta(t, 15, cfg.Viewport.Right, 0.001)
	assert.InDelta(t, 0.9, cfg.Viewport.ZoomIn, 0.001)
	assert.Equal(t, "grid", cfg.Chunk.Policy)
	assert.Equal(t, 3, cfg.Chunk.GridSize)
	assert.Equal(t, 512, cfg.Chunk.CacheSize)
	assert.Equal(t, 100, cfg.Render.RefreshMS)
	assert.Equal(t, 25, cfg.Render.RedrawMS)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.StaleAfterSecs)

	assert.NoError(t, cfg.Validate("render"))
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("grid"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
service:
  coord_order: lonlat
viewport:
  year: 1950
chunk:
  policy: single
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zonemap.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "lonlat", cfg.Service.CoordOrder)
	assert.Equal(t, 1950, cfg.Viewport.Year)
	assert.Equal(t, "single", cfg.Chunk.Policy)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Chunk.GridSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
chunk:
  policy: single
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zonemap.yaml"), []byte(yaml), 0o644))

	t.Setenv("ZONEMAP_CHUNK_POLICY", "grid")
	t.Setenv("ZONEMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "grid", cfg.Chunk.Policy)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ZONEMAP_SERVER_PORT", "3000")
	t.Setenv("ZONEMAP_SERVICE_BASE_URL", "http://zones.internal/api")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "http://zones.internal/api", cfg.Service.BaseURL)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zonemap.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Service.BaseURL = "http://127.0.0.1:8080/api"
	cfg.Service.CoordOrder = "latlon"
	cfg.Viewport = ViewportConfig{
		Width: 800, Height: 600, Year: 2024,
		Top: 51, Left: 14, Bottom: 50, Right: 15,
		MinSpan: 0.01, MaxSpan: 170, ZoomIn: 0.9, ZoomOut: 1.1,
	}
	cfg.Chunk.Policy = "grid"
	cfg.Chunk.GridSize = 3
	cfg.Render.RefreshMS = 100
	cfg.Render.RedrawMS = 25
	cfg.Server.Port = 8090
	return cfg
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port only matters when serving.
	assert.NoError(t, cfg.Validate("render"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateViewport(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"size", func(c *Config) { c.Viewport.Width = 0 }, "viewport.width"},
		{"year", func(c *Config) { c.Viewport.Year = 1800 }, "viewport.year"},
		{"inverted lat", func(c *Config) { c.Viewport.Top = 49 }, "viewport.top"},
		{"inverted lon", func(c *Config) { c.Viewport.Left = 16 }, "viewport.left"},
		{"spans", func(c *Config) { c.Viewport.MaxSpan = 0.001 }, "viewport.min_span"},
		{"zoom", func(c *Config) { c.Viewport.ZoomIn = 1.2 }, "viewport.zoom_in"},
		{"coord order", func(c *Config) { c.Service.CoordOrder = "xy" }, "service.coord_order"},
		{"no source", func(c *Config) { c.Service.BaseURL = "" }, "service.base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("render")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateFixtureReplacesBaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Service.BaseURL = ""
	cfg.Service.Fixture = "zones.geojson"
	assert.NoError(t, cfg.Validate("render"))
}

func TestValidateChunkBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Chunk.GridSize = 0
	err := cfg.Validate("grid")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chunk.grid_size must be between 1 and 16")

	cfg.Chunk.GridSize = 17
	assert.Error(t, cfg.Validate("grid"))

	cfg.Chunk.GridSize = 16
	assert.NoError(t, cfg.Validate("grid"))

	cfg.Chunk.Policy = "quadtree"
	err = cfg.Validate("grid")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chunk.policy")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Viewport.Width = 0
	cfg.Chunk.Policy = "x"
	cfg.Server.Port = -1

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "viewport.width")
	assert.Contains(t, err.Error(), "chunk.policy")
	assert.Contains(t, err.Error(), "server.port")
}

func TestServiceTimeout(t *testing.T) {
	assert.Equal(t, "30s", ServiceConfig{TimeoutSecs: 30}.Timeout().String())
}
