package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/application/services"
)

// ContractHandler handles HTTP requests for the contract registry
type ContractHandler struct {
	service *services.ContractService
	logger  *zap.Logger
}

// NewContractHandler creates a new contract handler
func NewContractHandler(service *services.ContractService, logger *zap.Logger) *ContractHandler {
	return &ContractHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the contract routes
func (h *ContractHandler) RegisterRoutes(r chi.Router) {
	r.Get("/contracts", h.ListContracts)
	r.Get("/contracts/{address}", h.GetContract)
}

// ListContracts handles GET /api/v1/contracts
func (h *ContractHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.ListContracts(r.Context())
	if err != nil {
		h.logger.Error("Failed to list contracts", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list contracts")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetContract handles GET /api/v1/contracts/{address}
func (h *ContractHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid contract address format")
		return
	}
	address = strings.ToLower(address)

	response, err := h.service.GetContract(r.Context(), address)
	if err != nil {
		h.logger.Error("Failed to get contract", zap.Error(err), zap.String("address", address))
		respondError(w, http.StatusInternalServerError, "Failed to get contract")
		return
	}
	if response == nil {
		respondError(w, http.StatusNotFound, "contract not found")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
