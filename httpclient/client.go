package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/httpapi"
	"go.uber.org/zap"
)

var (
	// ErrTransport wraps failures to get any response from the server.
	ErrTransport = errors.New("auth server unreachable")
	// ErrServer is returned for 5xx responses and unreadable bodies.
	ErrServer = errors.New("auth server error")
)

const maxResponseBytes = 1 << 16

// StatusError is the rejection cause carried inside *authflow.AuthError.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// Client talks to the auth API and implements [authflow.Authenticator]. It
// keeps no session state; callers pass the session they hold.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

var _ authflow.Authenticator = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpclient: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpclient: base URL must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("httpclient")
	return c, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*authflow.LoginResult, error) {
	var resp httpapi.LoginResponse
	err := c.do(ctx, authflow.OpLogin, http.MethodPost, "/api/auth/login", "",
		httpapi.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.RequireTOTP {
		return &authflow.LoginResult{RequireTOTP: true, UserID: resp.UserID}, nil
	}
	if resp.AccessToken == "" || resp.User == nil {
		return &authflow.LoginResult{}, nil
	}
	session := &authflow.Session{
		AccessToken: resp.AccessToken,
		User:        httpapi.PrincipalFromUser(*resp.User),
	}
	if resp.ExpiresAt != nil {
		session.ExpiresAt = *resp.ExpiresAt
	}
	return &authflow.LoginResult{Session: session}, nil
}

func (c *Client) VerifyTOTP(ctx context.Context, code, userID string) (*authflow.Session, error) {
	var resp httpapi.SessionResponse
	err := c.do(ctx, authflow.OpVerifyTOTP, http.MethodPost, "/api/auth/totp/verify", "",
		httpapi.VerifyRequest{Code: code, UserID: userID}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", ErrServer)
	}
	return &authflow.Session{
		AccessToken: resp.AccessToken,
		ExpiresAt:   resp.ExpiresAt,
		User:        httpapi.PrincipalFromUser(resp.User),
	}, nil
}

// Logout revokes session. A 401 means the session is already gone and
// counts as success.
func (c *Client) Logout(ctx context.Context, session authflow.Session) error {
	if session.AccessToken == "" {
		return nil
	}
	err := c.do(ctx, authflow.OpLogout, http.MethodPost, "/api/auth/logout", session.AccessToken, nil, nil)
	var status *StatusError
	if errors.As(err, &status) && status.Code == http.StatusUnauthorized {
		return nil
	}
	return err
}

// Me returns the principal behind accessToken.
func (c *Client) Me(ctx context.Context, token string) (authflow.Principal, error) {
	if token == "" {
		return authflow.Principal{}, &authflow.AuthError{Op: "me", Detail: "Not authenticated"}
	}
	var user httpapi.User
	if err := c.do(ctx, "me", http.MethodGet, "/api/auth/me", token, nil, &user); err != nil {
		return authflow.Principal{}, err
	}
	return httpapi.PrincipalFromUser(user), nil
}

func (c *Client) do(ctx context.Context, op, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("request failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrServer, err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &authflow.AuthError{
			Op:     op,
			Detail: detailFrom(payload),
			Err:    &StatusError{Code: resp.StatusCode},
		}
	default:
		c.logger.Warn("server error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", resp.Header.Get("X-Request-ID")),
		)
		return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	}
}

func detailFrom(payload []byte) string {
	var body httpapi.ErrorResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Detail)
}
