package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/application/services"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

// LedgerHandler serves the ownership views of one contract
type LedgerHandler struct {
	captable *services.CapTableService
	activity *services.ActivityService
	status   *services.StatusService
	logger   *zap.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(
	captable *services.CapTableService,
	activity *services.ActivityService,
	status *services.StatusService,
	logger *zap.Logger,
) *LedgerHandler {
	return &LedgerHandler{
		captable: captable,
		activity: activity,
		status:   status,
		logger:   logger,
	}
}

// RegisterRoutes registers the per-contract ledger routes
func (h *LedgerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/contracts/{address}/captable", h.GetCapTable)
	r.Get("/contracts/{address}/activity", h.GetActivity)
	r.Get("/contracts/{address}/status", h.GetStatus)
}

// contractAddress validates and normalizes the {address} path parameter
func contractAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := chi.URLParam(r, "address")
	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid contract address format")
		return "", false
	}
	return strings.ToLower(address), true
}

// GetCapTable handles GET /api/v1/contracts/{address}/captable[?block=N]
func (h *LedgerHandler) GetCapTable(w http.ResponseWriter, r *http.Request) {
	address, ok := contractAddress(w, r)
	if !ok {
		return
	}

	var (
		response *services.CapTableResponse
		err      error
	)
	if v := r.URL.Query().Get("block"); v != "" {
		block, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || block < 0 {
			respondError(w, http.StatusBadRequest, "Invalid block number")
			return
		}
		response, err = h.captable.GetCapTableAtBlock(r.Context(), address, block)
	} else {
		response, err = h.captable.GetCurrentCapTable(r.Context(), address)
	}

	if err != nil {
		h.logger.Error("Failed to get cap table", zap.Error(err), zap.String("address", address))
		respondError(w, http.StatusInternalServerError, "Failed to get cap table")
		return
	}
	if response == nil {
		respondError(w, http.StatusNotFound, "contract not found")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetActivity handles GET /api/v1/contracts/{address}/activity
func (h *LedgerHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	address, ok := contractAddress(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = l
	}

	var kind *entities.EventKind
	if v := r.URL.Query().Get("kind"); v != "" {
		k, err := entities.ParseEventKind(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = &k
	}

	response, err := h.activity.GetRecentActivity(r.Context(), address, kind, limit)
	if err != nil {
		h.logger.Error("Failed to get activity", zap.Error(err), zap.String("address", address))
		respondError(w, http.StatusInternalServerError, "Failed to get activity")
		return
	}
	if response == nil {
		respondError(w, http.StatusNotFound, "contract not found")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetStatus handles GET /api/v1/contracts/{address}/status. Unknown
// contracts are reported as untracked, not as 404.
func (h *LedgerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	address, ok := contractAddress(w, r)
	if !ok {
		return
	}

	response, err := h.status.GetIndexerStatus(r.Context(), address)
	if err != nil {
		h.logger.Error("Failed to get indexer status", zap.Error(err), zap.String("address", address))
		respondError(w, http.StatusInternalServerError, "Failed to get indexer status")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
