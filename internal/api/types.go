package api

import (
	"time"

	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/user"
)

type BookAppointmentRequest struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	PreferredDate   string `json:"preferredDate"`
	PreferredTime   string `json:"preferredTime"`
	IsReady         bool   `json:"isReady"`
	PaymentSourceID string `json:"paymentSourceId"`
}

func (r BookAppointmentRequest) toDomain() appointment.BookingRequest {
	return appointment.BookingRequest{
		FullName:        r.FullName,
		Email:           r.Email,
		Phone:           r.Phone,
		Address:         r.Address,
		PreferredDate:   r.PreferredDate,
		PreferredTime:   r.PreferredTime,
		IsReady:         r.IsReady,
		PaymentSourceID: r.PaymentSourceID,
	}
}

type UpdateAppointmentRequest struct {
	FullName      *string `json:"fullName"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	Address       *string `json:"address"`
	PreferredDate *string `json:"preferredDate"`
	PreferredTime *string `json:"preferredTime"`
	IsReady       *bool   `json:"isReady"`
	Status        *string `json:"status"`
}

func (r UpdateAppointmentRequest) toDomain() appointment.Patch {
	p := appointment.Patch{
		FullName:      r.FullName,
		Email:         r.Email,
		Phone:         r.Phone,
		Address:       r.Address,
		PreferredDate: r.PreferredDate,
		PreferredTime: r.PreferredTime,
		IsReady:       r.IsReady,
	}
	if r.Status != nil {
		st := appointment.Status(*r.Status)
		p.Status = &st
	}
	return p
}

type AppointmentResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	FullName           string    `json:"fullName"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Address            string    `json:"address"`
	PreferredDate      string    `json:"preferredDate"`
	PreferredTime      *string   `json:"preferredTime"`
	IsReady            bool      `json:"isReady"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"paymentStatus"`
	PaymentID          *string   `json:"paymentId"`
	PaymentAmount      string    `json:"paymentAmount"`
	DocusignStatus     string    `json:"docusignStatus"`
	DocusignEnvelopeID *string   `json:"docusignEnvelopeId"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID.String(),
		UserID:             a.UserID.String(),
		FullName:           a.FullName,
		Email:              a.Email,
		Phone:              a.Phone,
		Address:            a.Address,
		PreferredDate:      a.PreferredDate.Format(time.DateOnly),
		PreferredTime:      a.PreferredTime,
		IsReady:            a.IsReady,
		Status:             string(a.Status),
		PaymentStatus:      string(a.PaymentStatus),
		PaymentID:          a.PaymentID,
		PaymentAmount:      a.PaymentAmount().StringFixed(2),
		DocusignStatus:     string(a.DocusignStatus),
		DocusignEnvelopeID: a.DocusignEnvelopeID,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

type BookingResponse struct {
	Success     bool                `json:"success"`
	Appointment AppointmentResponse `json:"appointment"`
	Message     string              `json:"message"`
}

type StatsResponse struct {
	Total     int64  `json:"total"`
	Pending   int64  `json:"pending"`
	Confirmed int64  `json:"confirmed"`
	Completed int64  `json:"completed"`
	Cancelled int64  `json:"cancelled"`
	Revenue   string `json:"revenue"`
}

type WebhookRequest struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
