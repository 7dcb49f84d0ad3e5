// Package session owns the local authentication session: acquiring it at
// login, rotating it through silent refresh, and discarding it at logout.
// A Service instance is the single writer to its storage.Adapter; UI layers
// observe state changes through the configured callbacks.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mymanybooks/go-auth/authapi"
	"github.com/mymanybooks/go-auth/storage"
	"github.com/mymanybooks/go-auth/token"
	"github.com/mymanybooks/go-auth/users"
)

// expirySkew keeps near-expiry tokens from being handed out only to die in
// flight: a token inside this window is treated as already expired.
const expirySkew = 30 * time.Second

// AuthState is the derived authentication state the UI renders from.
// User is nil exactly when IsAuthenticated is false.
type AuthState struct {
	User            *users.User
	IsAuthenticated bool
}

// RegistrationResult reports the outcome of a successful registration.
// RequiresVerification signals that the account cannot log in until its
// email address has been verified.
type RegistrationResult struct {
	Message              string
	RequiresVerification bool
}

// Config holds the dependencies for a Service.
type Config struct {
	Storage storage.Adapter // required; exclusively owned by this Service
	API     API             // required; the /auth/* boundary client

	// Logger receives best-effort failure diagnostics. Defaults to a no-op.
	Logger *zerolog.Logger

	// OnAuthStateChange fires with the new user on login and profile update,
	// and with nil on logout or any transition to unauthenticated.
	OnAuthStateChange func(*users.User)

	// OnTokenRefresh fires with the rotated token pair after every
	// successful silent refresh.
	OnTokenRefresh func(storage.Tokens)
}

// Service is the single authority for the local session. Construct one per
// app with New and thread it explicitly; independent instances stay isolated.
type Service struct {
	storage storage.Adapter
	api     API
	logger  zerolog.Logger

	onAuthStateChange func(*users.User)
	onTokenRefresh    func(storage.Tokens)

	nowTime func() time.Time

	mu           sync.Mutex // serializes session-mutating operations
	refreshGroup singleflight.Group
}

// Option defines a function type to modify the Service instance.
type Option func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// New initializes a Service with required dependencies. Optional
// configuration can be provided via options (e.g., WithNowTime for testing).
func New(cfg Config, options ...Option) (*Service, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("[session.New] Storage adapter is required")
	}
	if cfg.API == nil {
		return nil, fmt.Errorf("[session.New] API client is required")
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	s := &Service{
		storage:           cfg.Storage,
		api:               cfg.API,
		logger:            logger,
		onAuthStateChange: cfg.OnAuthStateChange,
		onTokenRefresh:    cfg.OnTokenRefresh,
		nowTime:           time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Login exchanges credentials for a session. On success the token pair and
// user profile are persisted as one unit and the auth-state observer fires
// with the new user. On rejection the stored session is left untouched and
// an *AuthenticationError carries the server's reason.
func (s *Service) Login(ctx context.Context, email, password string) (*users.User, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil, &AuthenticationError{Message: "email and password are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		if apiErr := authapi.AsError(err); apiErr != nil && apiErr.Kind == authapi.KindCredentials {
			return nil, &AuthenticationError{Message: apiErr.Message}
		}
		return nil, fmt.Errorf("[Service.Login] api.Login: %w", err)
	}

	tokens := storage.Tokens{
		IdentityToken: res.IDToken,
		AccessToken:   res.AccessToken,
		ExpiresAt:     s.expiresAt(res.ExpiresIn),
	}
	user := res.User

	if err := s.persist(ctx, &tokens, &user); err != nil {
		return nil, fmt.Errorf("[Service.Login] persist: %w", err)
	}

	s.notifyAuthState(&user)
	return &user, nil
}

// Register submits a new account. No session is established - the identity
// provider requires email verification first. Rejections surface as
// *RegistrationError with the server's distinguishing reason.
func (s *Service) Register(ctx context.Context, reg authapi.Registration) (*RegistrationResult, error) {
	if strings.TrimSpace(reg.Email) == "" || strings.TrimSpace(reg.Password) == "" {
		return nil, &RegistrationError{Message: "email and password are required"}
	}

	res, err := s.api.Register(ctx, reg)
	if err != nil {
		if apiErr := authapi.AsError(err); apiErr != nil && apiErr.Kind == authapi.KindRegistration {
			return nil, &RegistrationError{Message: apiErr.Message}
		}
		return nil, fmt.Errorf("[Service.Register] api.Register: %w", err)
	}

	return &RegistrationResult{
		Message:              res.Message,
		RequiresVerification: res.RequiresVerification,
	}, nil
}

// Logout ends the session. The remote revocation call is best effort - its
// failure is logged, never returned - and local storage is cleared
// unconditionally, so calling Logout twice is harmless.
func (s *Service) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("logout endpoint call failed, clearing local session anyway")
	}

	if err := s.storage.Clear(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear session storage on logout")
	}

	s.notifyAuthState(nil)
}

// AuthState derives the current authentication state. Missing or expired
// tokens trigger exactly one silent refresh; a failed refresh, or tokens
// stored without a user (corrupt pairing), resets the session to
// unauthenticated rather than ever reporting an authenticated state with no
// user.
func (s *Service) AuthState(ctx context.Context) AuthState {
	tokens, err := s.storage.Tokens(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read tokens from storage")
		tokens = nil
	}

	if tokens == nil || s.expired(tokens) {
		if !s.silentRefresh(ctx) {
			s.reset(ctx)
			return AuthState{}
		}
		tokens, err = s.storage.Tokens(ctx)
		if err != nil || tokens == nil {
			s.reset(ctx)
			return AuthState{}
		}
	}

	user, err := s.storage.User(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read user from storage")
	}
	if user == nil {
		// Tokens without a user is corrupt state.
		s.reset(ctx)
		return AuthState{}
	}

	return AuthState{User: user, IsAuthenticated: true}
}

// IDToken returns an unexpired identity token, transparently refreshing at
// most once. Returns "" when no valid token can be produced.
func (s *Service) IDToken(ctx context.Context) string {
	return s.validToken(ctx, func(t *storage.Tokens) string { return t.IdentityToken })
}

// AccessToken returns an unexpired access token, transparently refreshing at
// most once. Returns "" when no valid token can be produced.
func (s *Service) AccessToken(ctx context.Context) string {
	return s.validToken(ctx, func(t *storage.Tokens) string { return t.AccessToken })
}

// UserUpdate carries the profile fields a client may edit locally after a
// successful server-side profile change. Nil fields are left unchanged.
type UserUpdate struct {
	Email   *string
	Name    *string
	Surname *string
}

// UpdateUser merges the update into the cached user, persists it, and fires
// the auth-state observer.
func (s *Service) UpdateUser(ctx context.Context, update UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.storage.User(ctx)
	if err != nil {
		return fmt.Errorf("[Service.UpdateUser] storage.User: %w", err)
	}
	if user == nil {
		return fmt.Errorf("[Service.UpdateUser] no authenticated user")
	}

	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Surname != nil {
		user.Surname = *update.Surname
	}

	if err := s.storage.SetUser(ctx, user); err != nil {
		return fmt.Errorf("[Service.UpdateUser] storage.SetUser: %w", err)
	}

	s.notifyAuthState(user)
	return nil
}

// silentRefresh obtains a new token pair using the ambient refresh
// credential. It never returns an error: any failure - a rejected refresh, a
// transport fault, an undecodable identity token - resolves to false with
// storage untouched. Concurrent callers share a single in-flight refresh.
func (s *Service) silentRefresh(ctx context.Context) bool {
	ok, _, _ := s.refreshGroup.Do("refresh", func() (interface{}, error) {
		return s.doRefresh(ctx), nil
	})
	return ok.(bool)
}

func (s *Service) doRefresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A caller that queued behind an already-completed refresh finds fresh
	// tokens here and needs no network call of its own.
	if tokens, err := s.storage.Tokens(ctx); err == nil && tokens != nil && !s.expired(tokens) {
		return true
	}

	res, err := s.api.Refresh(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("silent refresh rejected")
		return false
	}

	// A token that cannot be decoded must never be stored as valid.
	claims, err := token.DecodeIdentity(res.IDToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("refresh returned an undecodable identity token")
		return false
	}

	user := s.userFromClaims(ctx, claims)
	tokens := storage.Tokens{
		IdentityToken: res.IDToken,
		AccessToken:   res.AccessToken,
		ExpiresAt:     s.expiresAt(res.ExpiresIn),
	}

	if err := s.persist(ctx, &tokens, user); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist refreshed session")
		return false
	}

	s.notifyTokenRefresh(tokens)
	return true
}

// userFromClaims re-derives the cached user from identity-token claims.
// Role and IsActive are not claims; they stay what the server reported at
// login, or fall back to safe display defaults. They are provisional UI
// hints only - authorization is the server's job.
func (s *Service) userFromClaims(ctx context.Context, claims *token.IdentityClaims) *users.User {
	user := &users.User{
		ID:       claims.Subject,
		Email:    claims.Email,
		Name:     claims.GivenName,
		Surname:  claims.FamilyName,
		Role:     users.RoleUser,
		IsActive: true,
	}

	if existing, err := s.storage.User(ctx); err == nil && existing != nil && existing.ID == claims.Subject {
		user.Role = existing.Role
		user.IsActive = existing.IsActive
	}
	return user
}

func (s *Service) validToken(ctx context.Context, pick func(*storage.Tokens) string) string {
	tokens, err := s.storage.Tokens(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read tokens from storage")
		return ""
	}

	if tokens != nil && !s.expired(tokens) {
		return pick(tokens)
	}

	if !s.silentRefresh(ctx) {
		return ""
	}

	tokens, err = s.storage.Tokens(ctx)
	if err != nil || tokens == nil || s.expired(tokens) {
		return ""
	}
	return pick(tokens)
}

// persist writes the token pair and user as one logical unit: if the second
// write fails the first is rolled back by clearing, so storage never holds
// exactly one of the pair.
func (s *Service) persist(ctx context.Context, tokens *storage.Tokens, user *users.User) error {
	if err := s.storage.SetTokens(ctx, tokens); err != nil {
		return fmt.Errorf("storage.SetTokens: %w", err)
	}
	if err := s.storage.SetUser(ctx, user); err != nil {
		if clearErr := s.storage.Clear(ctx); clearErr != nil {
			s.logger.Error().Err(clearErr).Msg("failed to roll back partial session write")
		}
		return fmt.Errorf("storage.SetUser: %w", err)
	}
	return nil
}

func (s *Service) reset(ctx context.Context) {
	if err := s.storage.Clear(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear session storage")
	}
	s.notifyAuthState(nil)
}

func (s *Service) expired(tokens *storage.Tokens) bool {
	return !s.nowTime().Before(tokens.ExpiresAt.Add(-expirySkew))
}

func (s *Service) expiresAt(expiresIn int64) time.Time {
	return s.nowTime().Add(time.Duration(expiresIn) * time.Second)
}

func (s *Service) notifyAuthState(user *users.User) {
	if s.onAuthStateChange != nil {
		s.onAuthStateChange(user)
	}
}

func (s *Service) notifyTokenRefresh(tokens storage.Tokens) {
	if s.onTokenRefresh != nil {
		s.onTokenRefresh(tokens)
	}
}
