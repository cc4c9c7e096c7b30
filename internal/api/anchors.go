package api

import (
	"net/http"

	"github.com/snarg/rtls-engine/internal/database"
)

type AnchorsHandler struct {
	db *database.DB
}

func NewAnchorsHandler(db *database.DB) *AnchorsHandler {
	return &AnchorsHandler{db: db}
}

// List returns all registered anchors.
func (h *AnchorsHandler) List(w http.ResponseWriter, r *http.Request) {
	anchors, err := h.db.ListAnchors(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list anchors")
		return
	}
	if anchors == nil {
		anchors = []database.Anchor{}
	}
	WriteJSON(w, http.StatusOK, anchors)
}

type createAnchorRequest struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// Create registers a new anchor at a surveyed position.
func (h *AnchorsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAnchorRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		WriteError(w, http.StatusBadRequest, "id is required")
		return
	}

	anchor, err := h.db.CreateAnchor(r.Context(), req.ID, req.Name, req.X, req.Y, req.Z)
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to create anchor", err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, anchor)
}
