package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/auth"
	"github.com/guardportal/booking/internal/logging"
	"github.com/guardportal/booking/internal/user"
)

type AppointmentService interface {
	Book(ctx context.Context, actor appointment.Actor, req appointment.BookingRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	ListMyAppointments(ctx context.Context, actor appointment.Actor) ([]appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID, patch appointment.Patch) (*appointment.Appointment, error)
	AdminListAppointments(ctx context.Context, actor appointment.Actor, status string) ([]appointment.Appointment, error)
	AdminStats(ctx context.Context, actor appointment.Actor) (*appointment.Stats, error)
	ApplyAgreementStatus(ctx context.Context, envelopeID, providerStatus string) (*appointment.Appointment, error)
}

type UserService interface {
	Signup(ctx context.Context, in user.SignupInput) (*user.User, error)
	Login(ctx context.Context, email, password string) (*user.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*user.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName string) (*user.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

type RouterConfig struct {
	Appointments AppointmentService
	Users        UserService
	Issuer       *auth.Issuer
	Health       *HealthHandler
	Logger       logging.Logger

	CORSOrigins  []string
	CookieName   string
	CookieSecure bool
	WebhookKey   string // DocuSign Connect HMAC key, empty skips verification
	// TrustProxy takes the client IP from forwarding headers. Only set it
	// when a proxy in front of the server overwrites them.
	TrustProxy bool

	AuthRPS   float64 // per-IP rate on /api/auth, defaults to 1
	AuthBurst int     // defaults to 10
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	rps, burst := cfg.AuthRPS, cfg.AuthBurst
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 10
	}

	cookies := sessionCookies{name: cfg.CookieName, secure: cfg.CookieSecure, ttl: cfg.Issuer.TTL()}
	authn := Authenticate(cfg.Issuer, cfg.Users, cfg.CookieName, log)
	limiter := NewRateLimiter(rps, burst)

	r := chi.NewRouter()

	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limiter.Middleware)
				r.Post("/signup", signupHandler(cfg.Users, cfg.Issuer, cookies, log))
				r.Post("/login", loginHandler(cfg.Users, cfg.Issuer, cookies, log))
				r.Post("/forgot-password", forgotPasswordHandler(cfg.Users, log))
				r.Post("/reset-password", resetPasswordHandler(cfg.Users, log))
			})
			r.Post("/logout", logoutHandler(cookies))

			r.Group(func(r chi.Router) {
				r.Use(authn)
				r.Get("/user", currentUserHandler())
				r.Put("/user", updateProfileHandler(cfg.Users, log))
			})
		})

		r.Post("/docusign/webhook", docusignWebhookHandler(cfg.Appointments, cfg.WebhookKey, log))

		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.Post("/appointments", bookAppointmentHandler(cfg.Appointments, log))
			r.Get("/appointments/my", listMyAppointmentsHandler(cfg.Appointments, log))
			r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments, log))
			r.Patch("/appointments/{id}", updateAppointmentHandler(cfg.Appointments, log))

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/appointments", adminListAppointmentsHandler(cfg.Appointments, log))
				r.Get("/stats", adminStatsHandler(cfg.Appointments, log))
			})
		})
	})

	return r
}
