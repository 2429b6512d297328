package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/application/services"
)

// HoldingsHandler handles HTTP requests for holder positions
type HoldingsHandler struct {
	service *services.HoldingsService
	logger  *zap.Logger
}

// NewHoldingsHandler creates a new holdings handler
func NewHoldingsHandler(service *services.HoldingsService, logger *zap.Logger) *HoldingsHandler {
	return &HoldingsHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the holdings routes
func (h *HoldingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/holders/{address}/positions", h.GetPositions)
}

// GetPositions handles GET /api/v1/holders/{address}/positions
func (h *HoldingsHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid holder address format")
		return
	}
	address = strings.ToLower(address)

	response, err := h.service.GetPositions(r.Context(), address)
	if err != nil {
		h.logger.Error("Failed to get positions",
			zap.Error(err),
			zap.String("address", address),
		)
		respondError(w, http.StatusInternalServerError, "Failed to get positions")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
