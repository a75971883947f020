package appointment

import (
	"fmt"
	"net/mail"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"
)

// ValidationError lists every offending field of a rejected payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid appointment data: " + strings.Join(names, ", ")
}

type validator struct {
	fields map[string]string
}

func (v *validator) fail(field, msg string) {
	if v.fields == nil {
		v.fields = map[string]string{}
	}
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = msg
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// BookingRequest is the booking form as submitted by the client.
type BookingRequest struct {
	FullName        string
	Email           string
	Phone           string
	Address         string
	PreferredDate   string // 2006-01-02 or RFC 3339
	PreferredTime   string
	IsReady         bool
	PaymentSourceID string
}

// Validate checks the form and returns the parsed visit date. The date may
// not lie before today in loc.
func (r BookingRequest) Validate(now time.Time, loc *time.Location) (time.Time, error) {
	var v validator

	if strings.TrimSpace(r.FullName) == "" {
		v.fail("fullName", "full name is required")
	}
	checkEmail(&v, r.Email)
	checkPhone(&v, r.Phone)
	if strings.TrimSpace(r.Address) == "" {
		v.fail("address", "address is required")
	}

	date, _ := checkDate(&v, r.PreferredDate, now, loc)
	if r.PreferredTime != "" && !slices.Contains(TimeWindows, r.PreferredTime) {
		v.fail("preferredTime", fmt.Sprintf("must be one of: %s", strings.Join(TimeWindows, "; ")))
	}
	if strings.TrimSpace(r.PaymentSourceID) == "" {
		v.fail("paymentSourceId", "payment source is required")
	}

	if err := v.err(); err != nil {
		return time.Time{}, err
	}
	return date, nil
}

// Patch is a caller supplied partial update of an appointment.
type Patch struct {
	FullName      *string
	Email         *string
	Phone         *string
	Address       *string
	PreferredDate *string
	PreferredTime *string
	IsReady       *bool
	Status        *Status
}

func (p Patch) toUpdate(now time.Time, loc *time.Location) (Update, error) {
	var v validator
	var upd Update

	if p.FullName != nil {
		if strings.TrimSpace(*p.FullName) == "" {
			v.fail("fullName", "full name is required")
		}
		upd.FullName = p.FullName
	}
	if p.Email != nil {
		checkEmail(&v, *p.Email)
		upd.Email = p.Email
	}
	if p.Phone != nil {
		checkPhone(&v, *p.Phone)
		upd.Phone = p.Phone
	}
	if p.Address != nil {
		if strings.TrimSpace(*p.Address) == "" {
			v.fail("address", "address is required")
		}
		upd.Address = p.Address
	}
	if p.PreferredDate != nil {
		if date, ok := checkDate(&v, *p.PreferredDate, now, loc); ok {
			upd.PreferredDate = &date
		}
	}
	if p.PreferredTime != nil {
		if !slices.Contains(TimeWindows, *p.PreferredTime) {
			v.fail("preferredTime", fmt.Sprintf("must be one of: %s", strings.Join(TimeWindows, "; ")))
		}
		upd.PreferredTime = p.PreferredTime
	}
	upd.IsReady = p.IsReady
	if p.Status != nil {
		if !p.Status.Valid() {
			v.fail("status", "unknown status")
		}
		upd.Status = p.Status
	}

	return upd, v.err()
}

func checkEmail(v *validator, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		v.fail("email", "email is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.fail("email", "invalid email address")
	}
}

func checkPhone(v *validator, phone string) {
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < 10 {
		v.fail("phone", "phone number must have at least 10 digits")
	}
}

func checkDate(v *validator, raw string, now time.Time, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		v.fail("preferredDate", "preferred date is required")
		return time.Time{}, false
	}

	date, err := parseDate(raw, loc)
	if err != nil {
		v.fail("preferredDate", "invalid date, expected YYYY-MM-DD")
		return time.Time{}, false
	}

	ty, tm, td := now.In(loc).Date()
	today := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		v.fail("preferredDate", "preferred date cannot be in the past")
		return time.Time{}, false
	}
	return date, true
}

// parseDate returns the calendar date as midnight UTC.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
