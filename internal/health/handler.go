package health

import (
	"context"
	"net/http"
	"time"

	"lv-brokerage/internal/httputil"
)

const pingTimeout = time.Second

// Pinger is satisfied by *pgxpool.Pool and store.Memory.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db        Pinger
	store     string
	startedAt time.Time
	now       func() time.Time
}

func NewHandler(db Pinger, store string, startedAt time.Time) *Handler {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	return &Handler{db: db, store: store, startedAt: startedAt.UTC(), now: time.Now}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
}

type readyResponse struct {
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	UptimeSec int64       `json:"uptime_sec"`
	Database  databaseRes `json:"database"`
}

type databaseRes struct {
	Store     string `json:"store"`
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) uptime(now time.Time) int64 {
	if d := now.Sub(h.startedAt); d > 0 {
		return int64(d.Seconds())
	}
	return 0
}

// Live does not touch the database.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: h.uptime(now),
	})
}

// Ready pings the store and answers 503 when it is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	db := databaseRes{Store: h.store}
	start := time.Now()
	if h.db == nil {
		db.Error = "store is not configured"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := h.db.Ping(ctx)
		cancel()
		if err != nil {
			db.Error = err.Error()
		} else {
			db.Reachable = true
		}
	}
	db.PingMs = time.Since(start).Milliseconds()

	now := h.now().UTC()
	res := readyResponse{Status: "ok", Timestamp: now.Format(time.RFC3339), UptimeSec: h.uptime(now), Database: db}
	status := http.StatusOK
	if !db.Reachable {
		res.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, res)
}
