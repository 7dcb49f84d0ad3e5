package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mymanybooks/go-auth/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
}

type tokenPayload struct {
	IDToken     string      `json:"idToken"`
	AccessToken string      `json:"accessToken"`
	ExpiresIn   int64       `json:"expiresIn"`
	User        *users.User `json:"user,omitempty"`
}

// LoginHandler exchanges credentials for a token pair, the user profile, and
// a rotated refresh cookie.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := s.users.GetByEmail(req.Email)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, "User not found")
				return
			}
			s.logger.Error().Err(err).Msg("user lookup failed")
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if !users.CheckPasswordHash(req.Password, user.PasswordHash) {
			s.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		if !user.Verified {
			s.writeError(w, http.StatusForbidden, "Email not verified")
			return
		}
		if !user.IsActive {
			s.writeError(w, http.StatusForbidden, "Account is disabled")
			return
		}

		user.LastLogin = time.Now()
		if err := s.users.Update(user); err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
		}

		s.issueSession(w, user, true)
	}
}

// RegisterHandler creates an unverified account. No session is established:
// the response tells the client verification is still required.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" {
			s.writeError(w, http.StatusBadRequest, "Email is required")
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		passwordHash, err := users.HashPassword(req.Password)
		if err != nil {
			s.logger.Error().Err(err).Msg("password hashing failed")
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		user := &users.User{
			ID:           uuid.New().String(),
			Email:        req.Email,
			Name:         req.Name,
			Surname:      req.Surname,
			PasswordHash: passwordHash,
			Role:         users.RoleUser,
			IsActive:     true,
			Verified:     false,
			DateJoined:   time.Now(),
		}

		if err := s.users.Create(user); err != nil {
			if errors.Is(err, users.ErrDuplicateEmail) {
				s.writeError(w, http.StatusConflict, "Email already registered")
				return
			}
			s.logger.Error().Err(err).Msg("user creation failed")
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		s.writeJSON(w, http.StatusCreated, map[string]any{
			"success":              true,
			"message":              "Registration successful. Please verify your email address before logging in.",
			"requiresVerification": true,
		})
	}
}

// RefreshHandler redeems the refresh cookie for a new token pair. The cookie
// is rotated on every successful refresh; any failure clears it so clients
// stop retrying a dead credential.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenValue, err := refreshTokenFromRequest(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}

		userID, rotated, err := s.refresh.Redeem(tokenValue)
		if err != nil {
			s.logger.Debug().Err(err).Msg("refresh token redemption failed")
			s.clearRefreshCookie(w)
			s.writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}

		user, err := s.users.GetByID(userID)
		if err != nil || !user.IsActive {
			_ = s.refresh.Revoke(rotated)
			s.clearRefreshCookie(w)
			s.writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}

		s.setRefreshCookie(w, rotated)
		s.respondTokens(w, user, false)
	}
}

// LogoutHandler revokes the refresh cookie. It always succeeds from the
// client's point of view - a missing cookie is not an error.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tokenValue, err := refreshTokenFromRequest(r); err == nil {
			if err := s.refresh.Revoke(tokenValue); err != nil {
				s.logger.Warn().Err(err).Msg("refresh token revocation failed")
			}
		}
		s.clearRefreshCookie(w)
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// issueSession mints tokens, creates a fresh refresh cookie, and writes the
// login payload.
func (s *Server) issueSession(w http.ResponseWriter, user *users.User, includeUser bool) {
	refreshToken, err := s.refresh.Create(user.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("refresh token creation failed")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.setRefreshCookie(w, refreshToken)
	s.respondTokens(w, user, includeUser)
}

func (s *Server) respondTokens(w http.ResponseWriter, user *users.User, includeUser bool) {
	ttl := s.config.GetAccessTokenExpiry()

	idToken, err := s.issuer.IdentityToken(user, ttl)
	if err != nil {
		s.logger.Error().Err(err).Msg("identity token minting failed")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	accessToken, err := s.issuer.AccessToken(user, ttl)
	if err != nil {
		s.logger.Error().Err(err).Msg("access token minting failed")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	payload := tokenPayload{
		IDToken:     idToken,
		AccessToken: accessToken,
		ExpiresIn:   int64(ttl.Seconds()),
	}
	if includeUser {
		payload.User = user
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
