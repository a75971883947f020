package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/agreement"
	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/logging"
)

func bookAppointmentHandler(svc AppointmentService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid appointment data")
			return
		}

		appt, err := svc.Book(r.Context(), actorFrom(r.Context()), req.toDomain())
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Success:     true,
			Appointment: toAppointmentResponse(appt),
			Message:     appointment.BookedMessage,
		})
	}
}

func listMyAppointmentsHandler(svc AppointmentService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := svc.ListMyAppointments(r.Context(), actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

func getAppointmentHandler(svc AppointmentService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc AppointmentService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid appointment data")
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), actorFrom(r.Context()), id, req.toDomain())
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func adminListAppointmentsHandler(svc AppointmentService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := svc.AdminListAppointments(r.Context(), actorFrom(r.Context()), r.URL.Query().Get("status"))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

func adminStatsHandler(svc AppointmentService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.AdminStats(r.Context(), actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, StatsResponse{
			Total:     stats.Total,
			Pending:   stats.Pending,
			Confirmed: stats.Confirmed,
			Completed: stats.Completed,
			Cancelled: stats.Cancelled,
			Revenue:   stats.Revenue().StringFixed(2),
		})
	}
}

// docusignWebhookHandler applies envelope status callbacks. When hmacKey is
// set the body must carry a valid Connect signature. Unknown envelopes are
// acknowledged so DocuSign stops retrying.
func docusignWebhookHandler(svc AppointmentService, hmacKey string, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid webhook payload")
			return
		}

		if hmacKey != "" && !agreement.VerifyConnectSignature(body, r.Header.Get(agreement.SignatureHeader), hmacKey) {
			log.Warn(r.Context(), "webhook.bad_signature", "request_id", GetRequestID(r.Context()))
			writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}

		var req WebhookRequest
		if err := json.Unmarshal(body, &req); err != nil || req.EnvelopeID == "" {
			writeError(w, http.StatusBadRequest, "Invalid webhook payload")
			return
		}

		_, err = svc.ApplyAgreementStatus(r.Context(), req.EnvelopeID, req.Status)
		switch {
		case err == nil:
		case errors.Is(err, appointment.ErrAppointmentNotFound):
			log.Info(r.Context(), "webhook.unknown_envelope", "envelope_id", req.EnvelopeID)
		default:
			log.Error(r.Context(), "webhook.apply_failed", "envelope_id", req.EnvelopeID, "error", err)
			writeError(w, http.StatusInternalServerError, "Webhook processing failed")
			return
		}

		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Appointment not found")
		return uuid.Nil, false
	}
	return id, true
}
