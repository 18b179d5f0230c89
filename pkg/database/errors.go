package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	apperrors "github.com/medtrack/medtrack-backend/pkg/errors"
)

// asPQError unwraps err into a *pq.Error if possible.
func asPQError(err error, target **pq.Error) bool {
	return errors.As(err, target)
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *apperrors.AppError {
	var pqErr *pq.Error
	if !asPQError(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return apperrors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return apperrors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return apperrors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *apperrors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "qty_on_hand_non_negative"):
		return apperrors.Validation(map[string]string{
			"qty_on_hand_units": "must not be negative",
		})

	case strings.Contains(constraint, "qty_on_hand_within_received"):
		return apperrors.Validation(map[string]string{
			"qty_on_hand_units": "must not exceed received quantity",
		})

	case strings.Contains(constraint, "qty_received_positive"):
		return apperrors.Validation(map[string]string{
			"qty_received_units": "must be a positive integer",
		})

	case strings.Contains(constraint, "qty_units_nonzero"):
		return apperrors.Validation(map[string]string{
			"qty_units": "must not be zero",
		})

	case strings.Contains(constraint, "movement_type_valid"):
		return apperrors.Validation(map[string]string{
			"type": "must be one of: RECEIVE, DISPENSE, SALE, ADJUST, WASTE",
		})

	default:
		return apperrors.Validation(map[string]string{
			"constraint": constraint,
		})
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	if pqErr.Constraint != "" {
		return "duplicate value violates " + pqErr.Constraint
	}
	return "duplicate value"
}
