package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/service"
	"github.com/medtrack/medtrack-backend/pkg/httputil"
	"github.com/medtrack/medtrack-backend/pkg/logger"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.LedgerService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Receive receives a new batch into stock
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var input service.ReceiveBatchInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}
	input.CreatedBy = httputil.GetUserID(r.Context())

	result, err := h.service.ReceiveBatch(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// List lists batches at a pharmacy
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	pharmacyID := r.URL.Query().Get("pharmacy_id")
	filter := repository.BatchFilter{
		ItemID:  r.URL.Query().Get("item_id"),
		InStock: r.URL.Query().Get("in_stock") == "true",
	}

	batches, err := h.service.ListBatches(r.Context(), pharmacyID, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Get gets a batch by ID
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}
