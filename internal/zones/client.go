package zones

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/resilience"
)

// maxResponseBytes caps a single zone response.
const maxResponseBytes = 64 << 20

// RequestObserver receives the outcome of every service call.
type RequestObserver interface {
	ObserveRequest(op string, err error, d time.Duration)
}

// ClientConfig configures Client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	CoordOrder CoordOrder
	Backoff    resilience.Backoff
	Breaker    resilience.BreakerConfig
	Observer   RequestObserver
	HTTPClient *http.Client
}

// Client talks to the zone data service over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	backoff  resilience.Backoff
	order    CoordOrder
	observer RequestObserver
}

// NewClient creates a zone service client.
func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	order := cfg.CoordOrder
	if order == "" {
		order = LatLon
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     hc,
		limiter:  limiter,
		breaker:  resilience.NewBreaker(cfg.Breaker),
		backoff:  cfg.Backoff,
		order:    order,
		observer: cfg.Observer,
	}
}

// Breaker exposes the client's circuit breaker state for health checks.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Zones fetches the zones of a year intersecting the given box via
// POST /areas/{year}.
func (c *Client) Zones(ctx context.Context, year int, topLeft, bottomRight projection.GeoPoint) ([]Zone, error) {
	if err := ValidateRequest(year, topLeft, bottomRight); err != nil {
		return nil, err
	}
	body, err := json.Marshal(newBoundingBox(topLeft, bottomRight))
	if err != nil {
		return nil, eris.Wrap(err, "zones: encode bounding box")
	}
	return c.call(ctx, "areas", http.MethodPost, fmt.Sprintf("/areas/%d", year), body)
}

// AllZones fetches every zone of a year via GET /all/{year}.
func (c *Client) AllZones(ctx context.Context, year int) ([]Zone, error) {
	if err := ValidateYear(year); err != nil {
		return nil, err
	}
	return c.call(ctx, "all", http.MethodGet, fmt.Sprintf("/all/%d", year), nil)
}

func (c *Client) call(ctx context.Context, op, method, path string, body []byte) ([]Zone, error) {
	start := time.Now()
	zones, err := resilience.Execute(ctx, c.breaker, func(ctx context.Context) ([]Zone, error) {
		return resilience.Retry(ctx, c.backoff, "zones."+op, func(ctx context.Context) ([]Zone, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "zones: rate limit wait")
			}
			return c.do(ctx, method, path, body)
		})
	})
	if c.observer != nil {
		c.observer.ObserveRequest(op, err, time.Since(start))
	}
	return zones, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]Zone, error) {
	url := c.baseURL + path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, eris.Wrap(err, "zones: create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "zones: %s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := eris.Errorf("zones: %s %s returned %d", method, path, resp.StatusCode)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, eris.Wrap(err, "zones: read response body")
	}
	zones, err := c.decode(data)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("zones: fetched",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("zones", len(zones)),
		zap.Int("bytes", len(data)),
	)
	return zones, nil
}

// decode parses a JSON array of zones. Zones that fail validation are dropped
// with a warning; a malformed array fails the whole response.
func (c *Client) decode(data []byte) ([]Zone, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "zones: decode response")
	}
	out := make([]Zone, 0, len(raw))
	for i, msg := range raw {
		var w wireZone
		if err := json.Unmarshal(msg, &w); err != nil {
			zap.L().Warn("zones: dropping undecodable zone", zap.Int("index", i), zap.Error(err))
			continue
		}
		z, err := w.zone(c.order)
		if err != nil {
			zap.L().Warn("zones: dropping invalid zone",
				zap.Int("index", i),
				zap.String("name", w.Name),
				zap.Error(err),
			)
			continue
		}
		out = append(out, z)
	}
	return out, nil
}
