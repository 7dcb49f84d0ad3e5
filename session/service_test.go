package session_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mymanybooks/go-auth/authapi"
	"github.com/mymanybooks/go-auth/internal/utils"
	"github.com/mymanybooks/go-auth/session"
	"github.com/mymanybooks/go-auth/storage"
	"github.com/mymanybooks/go-auth/users"
)

const (
	testUserID   = "demo-1"
	testEmail    = "demo@example.com"
	testPassword = "password123"
)

// identityToken builds an unsigned-but-well-formed three segment token, the
// shape the codec decodes.
func identityToken(t *testing.T, claims map[string]string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".c2lnbmF0dXJl"
}

func demoClaims() map[string]string {
	return map[string]string{
		"sub":         testUserID,
		"email":       testEmail,
		"given_name":  "Demo",
		"family_name": "User",
	}
}

// mockAuth is a scriptable stand-in for the /auth/* endpoints.
type mockAuth struct {
	mu sync.Mutex

	loginStatus    int
	loginBody      map[string]any
	registerStatus int
	registerBody   map[string]any
	refreshStatus  int
	refreshBody    map[string]any
	refreshDelay   time.Duration
	logoutStatus   int

	loginCalls    int
	registerCalls int
	refreshCalls  int
	logoutCalls   int
}

func newMockAuth(t *testing.T) *mockAuth {
	return &mockAuth{
		loginStatus: http.StatusOK,
		loginBody: map[string]any{
			"idToken":     identityToken(t, demoClaims()),
			"accessToken": "at1",
			"expiresIn":   3600,
			"user": map[string]any{
				"id": testUserID, "email": testEmail, "name": "Demo", "surname": "User",
				"role": "user", "isActive": true,
			},
		},
		registerStatus: http.StatusCreated,
		registerBody: map[string]any{
			"success":              true,
			"message":              "Registration successful.",
			"requiresVerification": true,
		},
		refreshStatus: http.StatusOK,
		refreshBody: map[string]any{
			"idToken": identityToken(t, map[string]string{
				"sub": testUserID, "email": testEmail, "given_name": "Demo", "family_name": "User", "jti": "r1",
			}),
			"accessToken": "at2",
			"expiresIn":   3600,
		},
		logoutStatus: http.StatusOK,
	}
}

func (m *mockAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	var status int
	var body map[string]any
	var delay time.Duration

	switch r.URL.Path {
	case "/auth/login":
		m.loginCalls++
		status, body = m.loginStatus, m.loginBody
	case "/auth/register":
		m.registerCalls++
		status, body = m.registerStatus, m.registerBody
	case "/auth/refresh":
		m.refreshCalls++
		status, body = m.refreshStatus, m.refreshBody
		delay = m.refreshDelay
	case "/auth/logout":
		m.logoutCalls++
		status, body = m.logoutStatus, map[string]any{"success": true}
	default:
		status = http.StatusNotFound
	}
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	} else if status >= 400 {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
	}
}

func (m *mockAuth) calls() (login, register, refresh, logout int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginCalls, m.registerCalls, m.refreshCalls, m.logoutCalls
}

func (m *mockAuth) setRefresh(status int, body map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshStatus, m.refreshBody = status, body
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	mock    *mockAuth
	store   *storage.Memory
	clock   *testClock
	service *session.Service

	mu          sync.Mutex
	authEvents  []*users.User
	tokenEvents []storage.Tokens
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		mock:  newMockAuth(t),
		store: storage.NewMemory(),
		clock: &testClock{now: time.Now()},
	}

	srv := httptest.NewServer(f.mock)
	t.Cleanup(srv.Close)

	client, err := authapi.NewClient(srv.URL)
	require.NoError(t, err)

	f.service, err = session.New(session.Config{
		Storage: f.store,
		API:     client,
		OnAuthStateChange: func(u *users.User) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.authEvents = append(f.authEvents, u)
		},
		OnTokenRefresh: func(tokens storage.Tokens) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.tokenEvents = append(f.tokenEvents, tokens)
		},
	}, session.WithNowTime(f.clock.Now))
	require.NoError(t, err)

	return f
}

func (f *fixture) lastAuthEvent(t *testing.T) *users.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.authEvents)
	return f.authEvents[len(f.authEvents)-1]
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := session.New(session.Config{})
	require.Error(t, err)

	_, err = session.New(session.Config{Storage: storage.NewMemory()})
	require.Error(t, err)
}

// Scenario: login then immediate AuthState with the clock unchanged returns
// the same user without touching the refresh endpoint.
func TestLoginRoundTrip(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	user, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, testUserID, user.ID)
	require.Equal(t, testEmail, user.Email)
	require.Equal(t, users.RoleUser, user.Role)
	require.True(t, user.IsActive)
	require.Equal(t, testUserID, f.lastAuthEvent(t).ID)

	state := f.service.AuthState(ctx)
	require.True(t, state.IsAuthenticated)
	require.Equal(t, testUserID, state.User.ID)

	_, _, refreshCalls, _ := f.mock.calls()
	require.Zero(t, refreshCalls, "an unexpired session must not hit the refresh endpoint")
}

func TestLoginRequiresCredentials(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	var authErr *session.AuthenticationError
	_, err := f.service.Login(ctx, "", testPassword)
	require.ErrorAs(t, err, &authErr)
	_, err = f.service.Login(ctx, testEmail, "")
	require.ErrorAs(t, err, &authErr)

	loginCalls, _, _, _ := f.mock.calls()
	require.Zero(t, loginCalls)
}

func TestLoginRejectionLeavesSessionUnchanged(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.mock.loginStatus = http.StatusUnauthorized
	f.mock.loginBody = map[string]any{"error": "Invalid email or password"}

	_, err := f.service.Login(ctx, testEmail, "wrong")
	var authErr *session.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "Invalid email or password", authErr.Error())

	tokens, storeErr := f.store.Tokens(ctx)
	require.NoError(t, storeErr)
	require.Nil(t, tokens, "a failed login must not write partial session state")
}

func TestLoginTransportErrorPropagates(t *testing.T) {
	f := setupFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	client, err := authapi.NewClient(srv.URL)
	require.NoError(t, err)
	service, err := session.New(session.Config{Storage: f.store, API: client})
	require.NoError(t, err)

	_, err = service.Login(context.Background(), testEmail, testPassword)
	require.Error(t, err)

	var authErr *session.AuthenticationError
	require.False(t, errors.As(err, &authErr), "transport failures are not credential rejections")
	apiErr := authapi.AsError(err)
	require.NotNil(t, apiErr)
	require.Equal(t, authapi.KindTransport, apiErr.Kind)
}

// Scenario: registration succeeds but establishes no session - the provider
// requires email verification first.
func TestRegisterDoesNotEstablishSession(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	res, err := f.service.Register(ctx, authapi.Registration{
		Email: "new@example.com", Password: "Password123", Name: "New", Surname: "User",
	})
	require.NoError(t, err)
	require.True(t, res.RequiresVerification)
	require.NotEmpty(t, res.Message)

	f.mock.setRefresh(http.StatusUnauthorized, map[string]any{"error": "invalid refresh token"})
	state := f.service.AuthState(ctx)
	require.False(t, state.IsAuthenticated)
	require.Nil(t, state.User)
}

// Scenario: duplicate registration surfaces the server's message verbatim.
func TestRegisterDuplicateEmail(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.mock.registerStatus = http.StatusConflict
	f.mock.registerBody = map[string]any{"error": "Email already registered"}

	_, err := f.service.Register(ctx, authapi.Registration{Email: "dup@example.com", Password: "Password123"})
	var regErr *session.RegistrationError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, "Email already registered", err.Error())

	tokens, storeErr := f.store.Tokens(ctx)
	require.NoError(t, storeErr)
	require.Nil(t, tokens)
}

// Scenario: token issued already expired; the first token read performs
// exactly one silent refresh and returns the rotated token.
func TestExpiredTokenTriggersSingleRefresh(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.mock.loginBody["expiresIn"] = 0

	_, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	idToken := f.service.IDToken(ctx)
	require.NotEmpty(t, idToken)
	require.Equal(t, f.mock.refreshBody["idToken"], idToken)

	_, _, refreshCalls, _ := f.mock.calls()
	require.Equal(t, 1, refreshCalls)

	// The rotated pair is now fresh; further reads refresh nothing.
	require.Equal(t, "at2", f.service.AccessToken(ctx))
	_, _, refreshCalls, _ = f.mock.calls()
	require.Equal(t, 1, refreshCalls)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.tokenEvents, 1)
	require.Equal(t, "at2", f.tokenEvents[0].AccessToken)
}

// Scenario: the refresh endpoint rejects the cookie; the session resets to
// unauthenticated and storage is cleared.
func TestRefreshRejectionClearsSession(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	f.mock.setRefresh(http.StatusUnauthorized, map[string]any{"error": "invalid refresh token"})

	state := f.service.AuthState(ctx)
	require.False(t, state.IsAuthenticated)
	require.Nil(t, state.User)

	tokens, storeErr := f.store.Tokens(ctx)
	require.NoError(t, storeErr)
	require.Nil(t, tokens)
	require.Nil(t, f.lastAuthEvent(t))
}

// Scenario: storage holds unexpired tokens but no user. That pairing is
// corrupt; AuthState must reset rather than report an authenticated state
// without a user.
func TestCorruptStateForcesReset(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetTokens(ctx, &storage.Tokens{
		IdentityToken: "id", AccessToken: "at", ExpiresAt: f.clock.Now().Add(time.Hour),
	}))

	state := f.service.AuthState(ctx)
	require.False(t, state.IsAuthenticated)
	require.Nil(t, state.User)

	tokens, err := f.store.Tokens(ctx)
	require.NoError(t, err)
	require.Nil(t, tokens)

	_, _, refreshCalls, _ := f.mock.calls()
	require.Zero(t, refreshCalls, "unexpired tokens must not trigger a refresh")
}

// An identity token that cannot be decoded must never be stored as valid -
// the refresh counts as failed and storage is left untouched.
func TestUndecodableRefreshTokenIsARefreshFailure(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	f.mock.setRefresh(http.StatusOK, map[string]any{
		"idToken": "garbage", "accessToken": "at2", "expiresIn": 3600,
	})

	require.Empty(t, f.service.IDToken(ctx))

	tokens, storeErr := f.store.Tokens(ctx)
	require.NoError(t, storeErr)
	require.Equal(t, "at1", tokens.AccessToken, "a failed refresh must not mutate storage")
}

// Invariant: token getters never hand out an expired token.
func TestExpiredTokenNeverReturned(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.mock.loginBody["expiresIn"] = 0
	f.mock.setRefresh(http.StatusUnauthorized, map[string]any{"error": "invalid refresh token"})

	_, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	require.Empty(t, f.service.IDToken(ctx))
	require.Empty(t, f.service.AccessToken(ctx))
}

// Invariant: logout is idempotent and never fails, even when the remote
// call does.
func TestLogoutIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.mock.logoutStatus = http.StatusInternalServerError

	_, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	f.service.Logout(ctx)
	f.service.Logout(ctx)

	require.Nil(t, f.lastAuthEvent(t))
	tokens, storeErr := f.store.Tokens(ctx)
	require.NoError(t, storeErr)
	require.Nil(t, tokens)
	user, storeErr := f.store.User(ctx)
	require.NoError(t, storeErr)
	require.Nil(t, user)

	_, _, _, logoutCalls := f.mock.calls()
	require.Equal(t, 2, logoutCalls)
}

// Concurrent token reads over an expired session coalesce into a single
// in-flight refresh rather than a stampede.
func TestConcurrentRefreshCoalesces(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.mock.loginBody["expiresIn"] = 0
	f.mock.refreshDelay = 50 * time.Millisecond

	_, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	const callers = 8
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.service.IDToken(ctx)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		require.Equal(t, f.mock.refreshBody["idToken"], got)
	}
	_, _, refreshCalls, _ := f.mock.calls()
	require.Equal(t, 1, refreshCalls)
}

func TestUpdateUserMergesAndNotifies(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	err = f.service.UpdateUser(ctx, session.UserUpdate{Name: utils.Ptr("Updated")})
	require.NoError(t, err)

	user, storeErr := f.store.User(ctx)
	require.NoError(t, storeErr)
	require.Equal(t, "Updated", user.Name)
	require.Equal(t, "User", user.Surname, "unset fields stay untouched")
	require.Equal(t, "Updated", f.lastAuthEvent(t).Name)
}

func TestUpdateUserWithoutSession(t *testing.T) {
	f := setupFixture(t)
	err := f.service.UpdateUser(context.Background(), session.UserUpdate{Name: utils.Ptr("X")})
	require.Error(t, err)
}

// After a refresh the cached user is re-derived from the new identity
// token's claims, while Role and IsActive keep the values the server
// reported at login.
func TestRefreshRederivesUserFromClaims(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.mock.loginBody["user"] = map[string]any{
		"id": testUserID, "email": testEmail, "name": "Demo", "surname": "User",
		"role": "admin", "isActive": true,
	}

	_, err := f.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	f.mock.setRefresh(http.StatusOK, map[string]any{
		"idToken": identityToken(t, map[string]string{
			"sub": testUserID, "email": testEmail, "given_name": "Renamed", "family_name": "User",
		}),
		"accessToken": "at2",
		"expiresIn":   3600,
	})

	state := f.service.AuthState(ctx)
	require.True(t, state.IsAuthenticated)
	require.Equal(t, "Renamed", state.User.Name)
	require.Equal(t, users.RoleAdmin, state.User.Role)
	require.True(t, state.User.IsActive)
}
