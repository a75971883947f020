package api

import (
	"net/http"
	"time"

	"github.com/guardportal/booking/internal/auth"
	"github.com/guardportal/booking/internal/logging"
	"github.com/guardportal/booking/internal/user"
)

type sessionCookies struct {
	name   string
	secure bool
	ttl    time.Duration
}

func (c sessionCookies) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c sessionCookies) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// issueSession signs a token for u, sets the cookie and writes the auth
// response.
func issueSession(w http.ResponseWriter, r *http.Request, issuer *auth.Issuer, cookies sessionCookies, log logging.Logger, status int, u *user.User) {
	token, err := issuer.MakeToken(u.ID.String(), u.IsAdmin)
	if err != nil {
		handleServiceError(w, r, log, err)
		return
	}
	cookies.set(w, token)
	writeJSON(w, status, AuthResponse{User: toUserResponse(u), Token: token})
}

func signupHandler(users UserService, issuer *auth.Issuer, cookies sessionCookies, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid signup data")
			return
		}

		u, err := users.Signup(r.Context(), user.SignupInput{
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		issueSession(w, r, issuer, cookies, log, http.StatusCreated, u)
	}
}

func loginHandler(users UserService, issuer *auth.Issuer, cookies sessionCookies, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid login data")
			return
		}

		u, err := users.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		issueSession(w, r, issuer, cookies, log, http.StatusOK, u)
	}
}

func logoutHandler(cookies sessionCookies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookies.clear(w)
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	}
}

func currentUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toUserResponse(currentUser(r.Context())))
	}
}

func updateProfileHandler(users UserService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateProfileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid profile data")
			return
		}

		u, err := users.UpdateProfile(r.Context(), currentUser(r.Context()).ID, req.FirstName, req.LastName)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))
	}
}

func forgotPasswordHandler(users UserService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ForgotPasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		if err := users.ForgotPassword(r.Context(), req.Email); err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{
			Message: "If an account exists for that email, a reset link has been sent.",
		})
	}
}

func resetPasswordHandler(users UserService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetPasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		if err := users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset."})
	}
}
