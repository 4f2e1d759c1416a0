package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/authservice"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/token"
	"github.com/MrEthical07/authflow/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-battery"

type apiFixture struct {
	handler  http.Handler
	registry *prometheus.Registry
	mr       *miniredis.Miniredis
	bobID    string
	secret   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hashCfg := password.DefaultConfig()
	hashCfg.Memory = 8 * 1024
	hashCfg.Time = 1
	hashCfg.Parallelism = 1
	hasher, err := password.New(hashCfg)
	require.NoError(t, err)
	tokens, err := token.NewManager(token.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte(strings.Repeat("s", 32)),
	})
	require.NoError(t, err)

	users := userstore.NewMemory()
	svc, err := authservice.New(authservice.DefaultConfig(), authservice.Deps{
		Redis: rdb, Users: users, Hasher: hasher, Tokens: tokens,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.CreateUser(ctx, "alice", testPassword, userstore.RolePatient, true)
	require.NoError(t, err)
	bob, err := svc.CreateUser(ctx, "bob", testPassword, userstore.RoleDoctor, false)
	require.NoError(t, err)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "HealthScan", AccountName: "bob"})
	require.NoError(t, err)
	require.NoError(t, users.SetTOTPSecret(ctx, bob.ID, key.Secret()))
	require.NoError(t, users.EnableTOTP(ctx, bob.ID))

	registry := prometheus.NewRegistry()
	handler, err := NewHandler(svc, Options{
		Registry: registry,
		Ready:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	require.NoError(t, err)

	return &apiFixture{handler: handler, registry: registry, mr: mr, bobID: bob.ID, secret: key.Secret()}
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestLoginWithoutTOTP(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "alice", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[LoginResponse](t, rec)
	assert.False(t, resp.RequireTOTP)
	assert.Empty(t, resp.UserID)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice", resp.User.Username)
	assert.True(t, resp.User.ResumeVerificationStatus)
	assert.Equal(t, "Bearer", resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)

	me := f.do(t, http.MethodGet, "/api/auth/me", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, userstore.RolePatient, decodeBody[User](t, me).Role)

	out := f.do(t, http.MethodPost, "/api/auth/logout", resp.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, out.Code)

	me = f.do(t, http.MethodGet, "/api/auth/me", resp.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, me.Code)
	assert.Equal(t, "Not authenticated", decodeBody[ErrorResponse](t, me).Detail)
}

func TestLoginWithTOTP(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "bob", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[LoginResponse](t, rec)
	require.True(t, resp.RequireTOTP)
	assert.Equal(t, f.bobID, resp.UserID)
	assert.Empty(t, resp.AccessToken)
	assert.Nil(t, resp.User)

	bad := f.do(t, http.MethodPost, "/api/auth/totp/verify", "", VerifyRequest{Code: "abcdef", UserID: resp.UserID})
	require.Equal(t, http.StatusUnauthorized, bad.Code)
	assert.Equal(t, "Invalid verification code", decodeBody[ErrorResponse](t, bad).Detail)

	code, err := totp.GenerateCode(f.secret, time.Now())
	require.NoError(t, err)
	ok := f.do(t, http.MethodPost, "/api/auth/totp/verify", "", VerifyRequest{Code: code, UserID: resp.UserID})
	require.Equal(t, http.StatusOK, ok.Code)
	session := decodeBody[SessionResponse](t, ok)
	assert.Equal(t, "bob", session.User.Username)
	assert.NotEmpty(t, session.AccessToken)
}

func TestLoginRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "alice", Password: "nope-nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid username or password", decodeBody[ErrorResponse](t, rec).Detail)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBadRequestBodies(t *testing.T) {
	f := newAPIFixture(t)

	cases := map[string]string{
		"not json":      "username=alice",
		"unknown field": `{"username":"alice","password":"x","admin":true}`,
		"trailing data": `{"username":"alice","password":"x"}{}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid request body", decodeBody[ErrorResponse](t, rec).Detail)
		})
	}
}

func TestAttemptsExceededIs429(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "bob", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)

	var last *httptest.ResponseRecorder
	for i := 0; i < authservice.DefaultConfig().MaxChallengeAttempts; i++ {
		last = f.do(t, http.MethodPost, "/api/auth/totp/verify", "", VerifyRequest{Code: "abcdef", UserID: f.bobID})
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "Too many attempts. Please sign in again.", decodeBody[ErrorResponse](t, last).Detail)
}

func TestBackendDownIs503(t *testing.T) {
	f := newAPIFixture(t)
	f.mr.Close()

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "bob", Password: testPassword})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Service unavailable", decodeBody[ErrorResponse](t, rec).Detail)

	health := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, health.Code)
}

func TestEnrollAndConfirm(t *testing.T) {
	f := newAPIFixture(t)

	login := decodeBody[LoginResponse](t, f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "alice", Password: testPassword}))

	rec := f.do(t, http.MethodPost, "/api/auth/totp/enroll", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	enrollment := decodeBody[EnrollResponse](t, rec)
	assert.True(t, strings.HasPrefix(enrollment.URL, "otpauth://totp/"))

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	confirm := f.do(t, http.MethodPost, "/api/auth/totp/confirm", login.AccessToken, CodeRequest{Code: code})
	require.Equal(t, http.StatusNoContent, confirm.Code)

	again := f.do(t, http.MethodPost, "/api/auth/totp/enroll", login.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "alice", Password: "nope-nope"})
	f.do(t, http.MethodGet, "/healthz", "", nil)

	count, err := testutil.GatherAndCount(f.registry, "healthscan_auth_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `healthscan_auth_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
	assert.Contains(t, rec.Body.String(), `healthscan_auth_http_requests_total{code="401",method="POST",route="/api/auth/login"} 1`)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/auth/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeBody[ErrorResponse](t, rec).Detail)
}

func TestNewHandlerRequiresService(t *testing.T) {
	_, err := NewHandler(nil, Options{})
	assert.Error(t, err)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{authservice.ErrInvalidCredentials, http.StatusUnauthorized},
		{authservice.ErrChallengeExpired, http.StatusUnauthorized},
		{authservice.ErrChallengeAttemptsExceeded, http.StatusTooManyRequests},
		{authservice.ErrTOTPNotProvisioned, http.StatusConflict},
		{authservice.ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusServiceUnavailable},
		{errBadRequest, http.StatusBadRequest},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestValidationDetail(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Field 'password' is required", decodeBody[ErrorResponse](t, rec).Detail)

	rec = f.do(t, http.MethodPost, "/api/auth/totp/verify", "", VerifyRequest{Code: strings.Repeat("1", 17), UserID: f.bobID})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Field 'code' must be at most 16 characters long", decodeBody[ErrorResponse](t, rec).Detail)
}
