package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nhle/taskminder/internal/auth"
	"github.com/nhle/taskminder/internal/model"
)

type userBody struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func newUserBody(u *model.User) userBody {
	return userBody{ID: u.ID, Name: u.Name, Email: u.Email}
}

// POST /api/auth/signup
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, token, err := s.auth.Signup(r.Context(), in.Name, in.Email, in.Password)
	if err != nil {
		var ie *auth.InputError
		switch {
		case errors.As(err, &ie):
			writeMessage(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrEmailTaken):
			writeMessage(w, http.StatusBadRequest, "User already exists with this email.")
		default:
			s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).
				Error("signup failed")
			writeMessage(w, http.StatusInternalServerError, "Server error during signup")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": newUserBody(u), "token": token})
}

// POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, token, err := s.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).
			Error("login failed")
		writeMessage(w, http.StatusInternalServerError, "Server error during login")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": newUserBody(u), "token": token})
}

// POST /api/auth/google-login
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, token, err := s.auth.GoogleLogin(r.Context(), in.Token)
	if err != nil {
		var ie *auth.InputError
		switch {
		case errors.As(err, &ie):
			writeMessage(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrGoogleDisabled):
			writeMessage(w, http.StatusNotImplemented, "Google login is not configured")
		case errors.Is(err, auth.ErrInvalidToken):
			s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).
				Warn("google token rejected")
			writeMessage(w, http.StatusUnauthorized, "Google login failed. Invalid token or verification error.")
		default:
			s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).
				Error("google login failed")
			writeMessage(w, http.StatusInternalServerError, "Server error during Google login")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": newUserBody(u), "token": token})
}

// requireAuth resolves the bearer token to a user and stores it in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeMessage(w, http.StatusUnauthorized, "No token provided")
			return
		}

		u, err := s.auth.Authenticate(r.Context(), strings.TrimSpace(raw))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUnknownUser):
				writeMessage(w, http.StatusUnauthorized, "User not found")
			case errors.Is(err, auth.ErrInvalidToken):
				writeMessage(w, http.StatusUnauthorized, "Token not valid")
			default:
				s.log.WithError(err).Error("authenticating request")
				writeMessage(w, http.StatusInternalServerError, "Server error")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
	})
}
