// Package notification renders and sends the service's emails and records
// every attempt in the email log.
package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type appointmentView struct {
	ID      string
	Date    string
	Time    string
	Address string
	Amount  string
}

type linkView struct {
	Name string
	Link string
}

type Mailer struct {
	sender  Sender
	logs    LogRepository
	log     logging.Logger
	baseURL string
}

func NewMailer(sender Sender, logs LogRepository, logger logging.Logger, baseURL string) *Mailer {
	return &Mailer{
		sender:  sender,
		logs:    logs,
		log:     logger,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func viewOf(appt *appointment.Appointment, withAmount bool) appointmentView {
	v := appointmentView{
		ID:      appt.ID.String(),
		Date:    appt.PreferredDate.Format("Monday, January 2, 2006"),
		Time:    "To be confirmed",
		Address: appt.Address,
	}
	if appt.PreferredTime != nil && *appt.PreferredTime != "" {
		v.Time = *appt.PreferredTime
	}
	if withAmount {
		v.Amount = appt.PaymentAmount().StringFixed(2)
	}
	return v
}

func (m *Mailer) SendConfirmation(ctx context.Context, appt *appointment.Appointment) error {
	return m.deliver(ctx, &appt.ID, EmailConfirmation, appt.Email,
		"Appointment Confirmed - GuardPortal Security Audit", viewOf(appt, true))
}

func (m *Mailer) SendReminder(ctx context.Context, appt *appointment.Appointment) error {
	return m.deliver(ctx, &appt.ID, EmailReminder, appt.Email,
		"Reminder: Your Security Audit Tomorrow - GuardPortal", viewOf(appt, false))
}

func (m *Mailer) SendWelcome(ctx context.Context, to, firstName string) error {
	name := firstName
	if name == "" {
		name = "there"
	}
	return m.deliver(ctx, nil, EmailWelcome, to, "Welcome to GuardPortal",
		linkView{Name: name, Link: m.baseURL + "/dashboard"})
}

// SendPasswordReset mails a link carrying the raw reset token.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	link := m.baseURL + "/reset-password?token=" + url.QueryEscape(token)
	return m.deliver(ctx, nil, EmailPasswordReset, to, "Reset your GuardPortal password",
		linkView{Link: link})
}

func (m *Mailer) SendPasswordChanged(ctx context.Context, to string) error {
	return m.deliver(ctx, nil, EmailPasswordChanged, to, "Your GuardPortal password was changed", nil)
}

func (m *Mailer) deliver(ctx context.Context, appointmentID *uuid.UUID, kind EmailType, to, subject string, data any) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, string(kind)+".html", data); err != nil {
		return fmt.Errorf("render %s email: %w", kind, err)
	}

	sendErr := m.sender.Send(ctx, Message{To: to, Subject: subject, HTML: body.String()})

	entry := EmailLog{
		AppointmentID: appointmentID,
		EmailType:     kind,
		SentTo:        to,
		Status:        StatusSent,
		SentAt:        time.Now(),
	}
	if sendErr != nil {
		msg := sendErr.Error()
		entry.Status = StatusFailed
		entry.Error = &msg
	}

	if err := m.logs.InsertEmailLog(ctx, entry); err != nil {
		m.log.Error(ctx, "email.log_failed", "email_type", string(kind), "error", err)
	}

	if sendErr != nil {
		m.log.Warn(ctx, "email.send_failed", "email_type", string(kind), "to", to, "error", sendErr)
		return fmt.Errorf("send %s email: %w", kind, sendErr)
	}
	m.log.Debug(ctx, "email.sent", "email_type", string(kind), "to", to)
	return nil
}
