package mapview

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/zonemap/internal/chunk"
	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/viewport"
)

// maxInputBody bounds a single POST /input body.
const maxInputBody = 64 << 10

// HandlerConfig configures the HTTP surface.
type HandlerConfig struct {
	AllowedOrigins []string
}

// snapshotView is the JSON summary of a snapshot.
type snapshotView struct {
	ID          string            `json:"id"`
	Generation  uint64            `json:"generation"`
	Year        int               `json:"year"`
	Bounds      projection.Bounds `json:"bounds"`
	Chunks      []chunkView       `json:"chunks"`
	Failed      int               `json:"failed"`
	Zones       int               `json:"zones"`
	InitiatedAt time.Time         `json:"initiated_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

type chunkView struct {
	chunk.Chunk
	ZoneCount int `json:"zone_count"`
}

// Handler returns the HTTP API: the current frame, the live snapshot, input
// events, health and metrics.
func (m *Map) Handler(cfg HandlerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if m.opts.Metrics != nil {
		r.Use(m.opts.Metrics.Middleware)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Frame-Version", "X-Snapshot-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", m.handleHealth)
	r.Get("/frame.png", m.handleFrame)
	r.Get("/snapshot", m.handleSnapshot)
	r.Get("/viewport", m.handleViewport)
	r.Post("/input", m.handleInput)
	if m.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", m.opts.Metrics.Handler())
	}
	return r
}

func (m *Map) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": m.vp.Version(),
	}
	if snap := m.Snapshot(); snap != nil {
		resp["generation"] = snap.Generation
		resp["zones"] = snap.ZoneCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *Map) handleFrame(w http.ResponseWriter, _ *http.Request) {
	f := m.Frame()
	if f == nil || m.stale() {
		var err error
		if f, err = m.Redraw(); err != nil {
			zap.L().Error("mapview: render frame", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "render failed")
			return
		}
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Version", strconv.FormatUint(f.Version, 10))
	w.Header().Set("X-Snapshot-Id", f.SnapshotID)
	_, _ = w.Write(f.PNG)
}

func (m *Map) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := m.Snapshot()
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshot yet")
		return
	}
	view := snapshotView{
		ID:          snap.ID,
		Generation:  snap.Generation,
		Year:        snap.Year,
		Bounds:      snap.Bounds,
		Failed:      snap.Failed,
		Zones:       snap.ZoneCount(),
		InitiatedAt: snap.InitiatedAt,
		CompletedAt: snap.CompletedAt,
	}
	for _, c := range snap.Chunks {
		view.Chunks = append(view.Chunks, chunkView{Chunk: c, ZoneCount: len(c.Zones)})
	}
	writeJSON(w, http.StatusOK, view)
}

func (m *Map) handleViewport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.vp.State())
}

func (m *Map) handleInput(w http.ResponseWriter, r *http.Request) {
	var ev viewport.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInputBody)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := m.vp.Handle(ev); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, viewport.ErrUnknownEvent) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m.vp.State())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
