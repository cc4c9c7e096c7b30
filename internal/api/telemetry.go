package api

import (
	"net/http"

	"github.com/snarg/rtls-engine/internal/database"
)

// TelemetryHandler serves the read-only latest-state endpoints backed by the
// positions, scans, and anchor_status tables.
type TelemetryHandler struct {
	db *database.DB
}

func NewTelemetryHandler(db *database.DB) *TelemetryHandler {
	return &TelemetryHandler{db: db}
}

// LatestPositions returns the newest position per wearable, up to ?limit=
// rows (default 100).
func (h *TelemetryHandler) LatestPositions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if n, ok := QueryInt(r, "limit"); ok {
		if n < 1 {
			WriteError(w, http.StatusBadRequest, "limit must be >= 1")
			return
		}
		limit = n
	}

	positions, err := h.db.LatestPositions(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to get positions")
		return
	}
	if positions == nil {
		positions = []database.Position{}
	}
	WriteJSON(w, http.StatusOK, positions)
}

// LatestScans returns per-wearable latest telemetry and last-seen instants.
func (h *TelemetryHandler) LatestScans(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.db.ScanSummaries(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to get scan summaries")
		return
	}
	if summaries == nil {
		summaries = []database.ScanSummary{}
	}
	WriteJSON(w, http.StatusOK, summaries)
}

// LatestAnchorStatus returns the newest heartbeat per anchor.
func (h *TelemetryHandler) LatestAnchorStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.db.LatestAnchorStatuses(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to get anchor status")
		return
	}
	if statuses == nil {
		statuses = []database.AnchorStatusRow{}
	}
	WriteJSON(w, http.StatusOK, statuses)
}

// GetStats returns the aggregate system snapshot.
func (h *TelemetryHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
