// Package authapi is the typed client for the /auth/* HTTP endpoints. It is
// the single place where transport failures and non-2xx responses are turned
// into the closed Error taxonomy; nothing above this layer looks at HTTP
// status codes.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/mymanybooks/go-auth/users"
)

const (
	routeLogin    = "/auth/login"
	routeRegister = "/auth/register"
	routeRefresh  = "/auth/refresh"
	routeLogout   = "/auth/logout"
)

// LoginResult is the success payload of POST /auth/login.
type LoginResult struct {
	IDToken     string     `json:"idToken"`
	AccessToken string     `json:"accessToken"`
	ExpiresIn   int64      `json:"expiresIn"` // relative seconds
	User        users.User `json:"user"`
}

// Registration is the request payload of POST /auth/register.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
}

// RegisterResult is the success payload of POST /auth/register. No session
// is established: the account must verify its email address first.
type RegisterResult struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	RequiresVerification bool   `json:"requiresVerification"`
}

// TokenResponse is the success payload of POST /auth/refresh.
type TokenResponse struct {
	IDToken     string `json:"idToken"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"` // relative seconds
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to the auth endpoints. Its cookie jar carries the httpOnly
// refresh cookie, the ambient credential behind the refresh flow - the
// refresh token value itself is never visible to this code.
type Client struct {
	apiURL     string
	httpClient *http.Client
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The supplied client
// should have a cookie jar, otherwise silent refresh cannot work.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client rooted at apiURL (e.g. "https://api.example.com").
func NewClient(apiURL string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("[authapi.NewClient] apiURL is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("[authapi.NewClient] cookiejar.New: %w", err)
	}

	c := &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Jar: jar},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Login exchanges credentials for a token pair and the user profile.
// Rejections come back as *Error with KindCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out LoginResult
	if err := c.post(ctx, routeLogin, body, &out, KindCredentials); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register submits a new account. Rejections come back as *Error with
// KindRegistration.
func (c *Client) Register(ctx context.Context, reg Registration) (*RegisterResult, error) {
	var out RegisterResult
	if err := c.post(ctx, routeRegister, reg, &out, KindRegistration); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh trades the refresh cookie for a new token pair. The request has no
// body; the cookie jar supplies the credential.
func (c *Client) Refresh(ctx context.Context) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.post(ctx, routeRefresh, nil, &out, KindRefresh); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout tells the server to revoke the refresh cookie. Callers treat
// failures as best-effort.
func (c *Client) Logout(ctx context.Context) error {
	var out struct {
		Success bool `json:"success"`
	}
	return c.post(ctx, routeLogout, nil, &out, KindServer)
}

// post sends a JSON request and decodes the response, mapping failures to
// *Error. rejectKind classifies non-2xx responses below 500; 5xx responses
// are always KindServer.
func (c *Client) post(ctx context.Context, route string, body any, out any, rejectKind ErrorKind) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindTransport, Message: "failed to encode request", cause: err}
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+route, reqBody)
	if err != nil {
		return &Error{Kind: KindTransport, Message: "failed to build request", cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Message: fmt.Sprintf("request to %s failed", route), cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := rejectKind
		if resp.StatusCode >= 500 {
			kind = KindServer
		}

		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		message := errResp.Error
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &Error{Kind: kind, Message: message, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServer, Message: "failed to decode response", StatusCode: resp.StatusCode, cause: err}
	}
	return nil
}
