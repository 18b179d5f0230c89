package handler

import (
	"net/http"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/service"
	"github.com/medtrack/medtrack-backend/pkg/httputil"
	"github.com/medtrack/medtrack-backend/pkg/logger"
)

// StockHandler handles the aggregated stock view
type StockHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc *service.LedgerService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log,
	}
}

// Summary reports per-item on-hand totals at a pharmacy
func (h *StockHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.StockSummary(r.Context(), r.URL.Query().Get("pharmacy_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}
