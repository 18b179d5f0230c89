package handler

import (
	"net/http"
	"strconv"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/service"
	"github.com/medtrack/medtrack-backend/pkg/errors"
	"github.com/medtrack/medtrack-backend/pkg/httputil"
	"github.com/medtrack/medtrack-backend/pkg/logger"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	service *service.AlertService
	logger  *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc *service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service: svc,
		logger:  log,
	}
}

// Get builds the expiring-soon, low-stock and FIFO-violation report
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days := 0
	if s := q.Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"days": "must be an integer"}))
			return
		}
		days = n
	}

	report, err := h.service.GetAlerts(r.Context(), q.Get("pharmacy_id"), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// Forecast projects demand against shelf life and reports units at risk
func (h *AlertHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetForecastAlerts(r.Context(), r.URL.Query().Get("pharmacy_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
