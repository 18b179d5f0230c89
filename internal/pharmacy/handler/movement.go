package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/service"
	"github.com/medtrack/medtrack-backend/pkg/errors"
	"github.com/medtrack/medtrack-backend/pkg/httputil"
	"github.com/medtrack/medtrack-backend/pkg/logger"
)

// MovementHandler handles movement ledger endpoints
type MovementHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(svc *service.LedgerService, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		service: svc,
		logger:  log,
	}
}

// Record records a manual ADJUST or WASTE correction against a batch
func (h *MovementHandler) Record(w http.ResponseWriter, r *http.Request) {
	var input service.RecordMovementInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	input.BatchID = chi.URLParam(r, "id")
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}
	input.CreatedBy = httputil.GetUserID(r.Context())

	movement, err := h.service.RecordMovement(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// List lists the movement ledger at a pharmacy
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.MovementFilter{
		ItemID:  q.Get("item_id"),
		BatchID: q.Get("batch_id"),
		Type:    repository.MovementType(q.Get("type")),
		Page:    parseIntParam(q.Get("page"), 1),
		PerPage: parseIntParam(q.Get("per_page"), 50),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		httputil.Error(w, errors.Validation(map[string]string{
			"type": "must be one of: RECEIVE, DISPENSE, SALE, ADJUST, WASTE",
		}))
		return
	}

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"from": "must be an RFC 3339 timestamp"}))
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"to": "must be an RFC 3339 timestamp"}))
		return
	}

	movements, total, err := h.service.ListMovements(r.Context(), q.Get("pharmacy_id"), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / filter.PerPage
	if int(total)%filter.PerPage > 0 {
		totalPages++
	}
	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

func parseIntParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
