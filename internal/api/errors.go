package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/logging"
	"github.com/guardportal/booking/internal/user"
)

const (
	paymentFailedMessage = "Payment processing failed. Please try again."
	internalErrorMessage = "Internal server error"
	maxBodyBytes         = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// handleServiceError maps domain errors to status codes. Anything unknown is
// logged and reported as a generic 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, appointment.ErrPaymentFailed):
		writeError(w, http.StatusBadRequest, paymentFailedMessage)
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "Appointment not found")
	case errors.Is(err, appointment.ErrBookingInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, user.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, user.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrWeakPassword),
		errors.Is(err, user.ErrInvalidResetToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		log.Error(r.Context(), "http.internal_error",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
	}
}
