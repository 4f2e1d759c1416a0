package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/authservice"
	"github.com/MrEthical07/authflow/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 14

// Service is the subset of *authservice.Service the API serves.
type Service interface {
	Login(ctx context.Context, username, password string) (*authflow.LoginResult, error)
	VerifyTOTP(ctx context.Context, code, userID string) (*authflow.Session, error)
	Logout(ctx context.Context, accessToken string) error
	Authenticate(ctx context.Context, accessToken string) (authflow.Principal, error)
	EnrollTOTP(ctx context.Context, userID string) (authservice.Enrollment, error)
	ConfirmTOTP(ctx context.Context, userID, code string) error
}

// Options configure the handler. Zero values are valid.
type Options struct {
	Logger *zap.Logger
	// Registry receives the HTTP metrics and is served on /metrics. Without
	// it /metrics is not mounted.
	Registry *prometheus.Registry
	// Ready reports backend health for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

type server struct {
	svc    Service
	logger *zap.Logger
	ready  func(ctx context.Context) error
}

// NewHandler builds the router for the auth API.
func NewHandler(svc Service, opts Options) (http.Handler, error) {
	if svc == nil {
		return nil, errors.New("httpapi: service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &server{svc: svc, logger: logger.Named("httpapi"), ready: opts.Ready}

	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(logger), middleware.AccessLog(logger))

	if opts.Registry != nil {
		m, err := newHTTPMetrics(opts.Registry)
		if err != nil {
			return nil, err
		}
		r.Use(m.instrument)
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api/auth").Subrouter()
	api.HandleFunc("/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/totp/verify", s.verifyTOTP).Methods(http.MethodPost)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Guard(svc, rejectUnauthorized))
	protected.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	protected.HandleFunc("/me", s.me).Methods(http.MethodGet)
	protected.HandleFunc("/totp/enroll", s.enrollTOTP).Methods(http.MethodPost)
	protected.HandleFunc("/totp/confirm", s.confirmTOTP).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Detail: "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Detail: "Method not allowed"})
	})
	return r, nil
}

func rejectUnauthorized(w http.ResponseWriter, _ *http.Request, err error) {
	if err != nil && !authservice.IsRejection(err) {
		writeError(w, err)
		return
	}
	writeError(w, authservice.ErrUnauthorized)
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(result))
}

func (s *server) verifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.svc.VerifyTOTP(r.Context(), req.Code, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(session))
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.AccessTokenFromContext(r.Context())
	if err := s.svc.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, userFromPrincipal(principal))
}

func (s *server) enrollTOTP(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	enrollment, err := s.svc.EnrollTOTP(r.Context(), principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EnrollResponse{Secret: enrollment.Secret, URL: enrollment.URL})
}

func (s *server) confirmTOTP(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if err := s.svc.ConfirmTOTP(r.Context(), principal.ID, req.Code); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errBadRequest
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadRequest
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return validateRequest(v)
}
