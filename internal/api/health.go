package api

import (
	"net/http"
	"time"

	"github.com/snarg/rtls-engine/internal/database"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	WSClients     int               `json:"ws_clients"`
	QueueDepth    int               `json:"queue_depth"`
}

type HealthHandler struct {
	db        *database.DB
	pollers   *Pollers
	broadcast *Broadcaster
	version   string
	startTime time.Time
}

func NewHealthHandler(db *database.DB, pollers *Pollers, broadcast *Broadcaster, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		pollers:   pollers,
		broadcast: broadcast,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.broadcast != nil {
		resp.WSClients = h.broadcast.ClientCount()
	}
	if h.pollers != nil {
		resp.QueueDepth = h.pollers.QueueDepth()
	}

	WriteJSON(w, httpStatus, resp)
}
