package api

import (
	"net/http"

	"github.com/snarg/rtls-engine/internal/database"
)

type WearablesHandler struct {
	db *database.DB
}

func NewWearablesHandler(db *database.DB) *WearablesHandler {
	return &WearablesHandler{db: db}
}

// List returns all registered wearables.
func (h *WearablesHandler) List(w http.ResponseWriter, r *http.Request) {
	wearables, err := h.db.ListWearables(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list wearables")
		return
	}
	if wearables == nil {
		wearables = []database.Wearable{}
	}
	WriteJSON(w, http.StatusOK, wearables)
}

type createWearableRequest struct {
	UID       string  `json:"uid"`
	PersonRef *string `json:"person_ref"`
	Role      *string `json:"role"`
}

// Create registers a new wearable beacon.
func (h *WearablesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWearableRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UID == "" {
		WriteError(w, http.StatusBadRequest, "uid is required")
		return
	}

	wearable, err := h.db.CreateWearable(r.Context(), req.UID, req.PersonRef, req.Role)
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to create wearable", err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, wearable)
}
