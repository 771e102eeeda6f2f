package server

import (
	"context"
	"net/http"
	"time"
)

// PingFunc checks one backing service.
type PingFunc func(ctx context.Context) error

// HealthHandler reports liveness and the state of each backing service.
type HealthHandler struct {
	env       string
	dbPing    PingFunc
	redisPing PingFunc // nil when Redis is disabled
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	Database    string    `json:"database"`
	Redis       string    `json:"redis"`
}

func probe(ctx context.Context, ping PingFunc) string {
	if ping == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := ping(ctx); err != nil {
		return "down"
	}
	return "up"
}

// HealthHandler handles GET /api/health. It always answers 200.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "OK",
		Timestamp:   time.Now().UTC(),
		Environment: h.env,
		Database:    probe(r.Context(), h.dbPing),
		Redis:       probe(r.Context(), h.redisPing),
	})
}
