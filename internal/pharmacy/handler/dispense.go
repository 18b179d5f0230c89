package handler

import (
	"net/http"

	"github.com/medtrack/medtrack-backend/internal/pharmacy/service"
	"github.com/medtrack/medtrack-backend/pkg/errors"
	"github.com/medtrack/medtrack-backend/pkg/httputil"
	"github.com/medtrack/medtrack-backend/pkg/logger"
)

// DispenseHandler handles dispense and sale endpoints
type DispenseHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewDispenseHandler creates a new dispense handler
func NewDispenseHandler(svc *service.LedgerService, log *logger.Logger) *DispenseHandler {
	return &DispenseHandler{
		service: svc,
		logger:  log,
	}
}

type dispenseRequest struct {
	PharmacyID string  `json:"pharmacy_id" validate:"required"`
	ItemID     string  `json:"item_id" validate:"required"`
	Quantity   int     `json:"quantity" validate:"required,gt=0"`
	Type       string  `json:"type" validate:"required,oneof=DISPENSE SALE"`
	PatientID  *string `json:"patient_id,omitempty"`
	Reference  *string `json:"reference,omitempty"`
}

// Dispense removes stock in soonest-expiry order, as a patient dispense or
// an anonymous sale
func (h *DispenseHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	var req dispenseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	var kind service.DispenseKind
	switch req.Type {
	case "DISPENSE":
		if req.PatientID == nil || *req.PatientID == "" {
			httputil.Error(w, errors.Validation(map[string]string{
				"patient_id": "this field is required for a patient dispense",
			}))
			return
		}
		kind = service.PatientDispense{PatientID: *req.PatientID}
	case "SALE":
		if req.PatientID != nil {
			httputil.Error(w, errors.Validation(map[string]string{
				"patient_id": "must not be set for an anonymous sale",
			}))
			return
		}
		kind = service.AnonymousSale{}
	}

	result, err := h.service.Dispense(r.Context(), service.DispenseInput{
		PharmacyID: req.PharmacyID,
		ItemID:     req.ItemID,
		Quantity:   req.Quantity,
		Kind:       kind,
		Reference:  req.Reference,
		CreatedBy:  httputil.GetUserID(r.Context()),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}
