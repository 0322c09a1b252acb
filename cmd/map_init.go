package main

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonemap/internal/chunk"
	"github.com/sells-group/zonemap/internal/config"
	"github.com/sells-group/zonemap/internal/mapview"
	"github.com/sells-group/zonemap/internal/monitoring"
	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/render"
	"github.com/sells-group/zonemap/internal/resilience"
	"github.com/sells-group/zonemap/internal/viewport"
	"github.com/sells-group/zonemap/internal/zones"
)

// mapEnv holds everything the render and serve commands need.
type mapEnv struct {
	Map     *mapview.Map
	Metrics *monitoring.Metrics
	Cache   *zones.CachedSource
	Client  *zones.Client // nil when zones come from a fixture
}

// Breaker returns the zone service breaker, or nil for a fixture source.
func (e *mapEnv) Breaker() monitoring.BreakerStater {
	if e.Client == nil {
		return nil
	}
	return e.Client.Breaker()
}

// initMap builds the zone source, orchestrator, viewport and renderer from
// c. mode is passed to Config.Validate.
func initMap(c *config.Config, mode string) (*mapEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	env := &mapEnv{Metrics: monitoring.NewMetrics()}

	var src zones.Source
	if c.Service.Fixture != "" {
		static, err := zones.LoadStatic(c.Service.Fixture)
		if err != nil {
			return nil, err
		}
		zap.L().Info("using zone fixture",
			zap.String("path", c.Service.Fixture),
			zap.Int("zones", static.Len()),
		)
		src = static
	} else {
		order, err := zones.ParseCoordOrder(c.Service.CoordOrder)
		if err != nil {
			return nil, err
		}
		backoff := resilience.DefaultBackoff()
		backoff.Attempts = c.Service.RetryAttempts
		env.Client = zones.NewClient(zones.ClientConfig{
			BaseURL:    c.Service.BaseURL,
			Timeout:    c.Service.Timeout(),
			RateLimit:  c.Service.RateLimit,
			CoordOrder: order,
			Backoff:    backoff,
			Breaker: resilience.BreakerConfig{
				Threshold:     c.Service.CircuitThreshold,
				Cooldown:      time.Duration(c.Service.CircuitResetSecs) * time.Second,
				OnStateChange: env.Metrics.SetBreakerState,
			},
			Observer: env.Metrics,
		})
		src = env.Client
	}

	if c.Chunk.CacheSize > 0 {
		env.Cache = zones.NewCachedSource(src, c.Chunk.CacheSize, time.Duration(c.Chunk.CacheTTLSecs)*time.Second)
		src = env.Cache
	}

	policy, err := chunk.ParsePolicy(c.Chunk.Policy)
	if err != nil {
		return nil, err
	}
	orch := chunk.NewOrchestrator(src, chunk.Config{
		Policy:         policy,
		GridSize:       c.Chunk.GridSize,
		MaxConcurrency: c.Chunk.MaxConcurrency,
	}, nil, env.Metrics)

	vp, err := newViewport(c.Viewport)
	if err != nil {
		return nil, err
	}

	style := render.DefaultStyle()
	if c.Render.StyleFile != "" {
		if style, err = render.LoadStyle(c.Render.StyleFile); err != nil {
			return nil, err
		}
	}

	env.Map = mapview.New(vp, orch, render.NewRenderer(style), mapview.Options{
		RefreshInterval: time.Duration(c.Render.RefreshMS) * time.Millisecond,
		RedrawInterval:  time.Duration(c.Render.RedrawMS) * time.Millisecond,
		Metrics:         env.Metrics,
		Cache:           env.Cache,
	})
	return env, nil
}

func newViewport(vc config.ViewportConfig) (*viewport.Viewport, error) {
	vp, err := viewport.New(
		viewport.Config{MinSpan: vc.MinSpan, MaxSpan: vc.MaxSpan, ZoomIn: vc.ZoomIn, ZoomOut: vc.ZoomOut},
		viewBounds(vc),
		projection.Size{Width: float64(vc.Width), Height: float64(vc.Height)},
		vc.Year,
	)
	if err != nil {
		return nil, eris.Wrap(err, "init viewport")
	}
	return vp, nil
}

func viewBounds(vc config.ViewportConfig) projection.Bounds {
	return projection.Bounds{
		TopLeft:     projection.GeoPoint{Lat: vc.Top, Lon: vc.Left},
		BottomRight: projection.GeoPoint{Lat: vc.Bottom, Lon: vc.Right},
	}
}
