package authservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/authservice/internal/stores"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/token"
	"github.com/MrEthical07/authflow/userstore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the collaborators a Service is built from. All are required
// except Logger.
type Deps struct {
	Redis  redis.UniversalClient
	Users  userstore.Provider
	Hasher *password.Hasher
	Tokens *token.Manager
	Logger *zap.Logger
}

// Service is the server side of the login protocol: password check, TOTP
// challenge, session issuance and revocation. It is safe for concurrent use.
type Service struct {
	cfg        Config
	users      userstore.Provider
	hasher     *password.Hasher
	tokens     *token.Manager
	challenges *stores.ChallengeStore
	sessions   *stores.SessionStore
	replay     *stores.ReplayGuard
	logger     *zap.Logger
	now        func() time.Time
}

// New validates cfg and wires the Redis-backed stores.
func New(cfg Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("authservice: %w", err)
	}
	if deps.Redis == nil || deps.Users == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("authservice: Redis, Users, Hasher and Tokens are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:      cfg,
		users:    deps.Users,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		sessions: stores.NewSessionStore(deps.Redis, cfg.RedisPrefix+"hss"),
		replay:   stores.NewReplayGuard(deps.Redis, cfg.RedisPrefix+"hsu"),
		logger:   logger.Named("authservice"),
		now:      time.Now,
	}
	// Challenge expiry follows the service clock.
	s.challenges = stores.NewChallengeStore(deps.Redis, cfg.RedisPrefix+"hsc").
		WithClock(func() time.Time { return s.now() })
	return s, nil
}

// Login checks the password. A user with TOTP enabled gets a pending
// challenge and RequireTOTP; everyone else gets a session.
func (s *Service) Login(ctx context.Context, username, pass string) (*authflow.LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || pass == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			s.hasher.VerifyDummy(pass)
			s.logger.Info("login rejected", zap.String("reason", "unknown_user"))
			return nil, ErrInvalidCredentials
		}
		return nil, s.unavailable("user lookup", err)
	}

	ok, err := s.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.logger.Info("login rejected", zap.String("user_id", user.ID), zap.String("reason", "bad_password"))
		return nil, ErrInvalidCredentials
	}

	if user.TOTPEnabled {
		if _, err := s.challenges.Issue(ctx, user.ID, s.cfg.ChallengeTTL); err != nil {
			return nil, s.unavailable("challenge issue", err)
		}
		s.logger.Info("totp challenge issued", zap.String("user_id", user.ID))
		return &authflow.LoginResult{RequireTOTP: true, UserID: user.ID}, nil
	}

	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &authflow.LoginResult{Session: session}, nil
}

// VerifyTOTP completes a pending challenge for userID. Wrong codes count
// against the challenge; at the cap the challenge is gone and the user must
// log in again.
func (s *Service) VerifyTOTP(ctx context.Context, code, userID string) (*authflow.Session, error) {
	code = strings.TrimSpace(code)
	if userID == "" {
		return nil, ErrChallengeInvalid
	}

	if _, err := s.challenges.Get(ctx, userID); err != nil {
		switch {
		case errors.Is(err, stores.ErrChallengeNotFound):
			return nil, ErrChallengeInvalid
		case errors.Is(err, stores.ErrChallengeExpired):
			return nil, ErrChallengeExpired
		default:
			return nil, s.unavailable("challenge lookup", err)
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			_, _ = s.challenges.Delete(ctx, userID)
			return nil, ErrChallengeInvalid
		}
		return nil, s.unavailable("user lookup", err)
	}
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		_, _ = s.challenges.Delete(ctx, userID)
		return nil, ErrChallengeInvalid
	}

	if !s.validateCode(code, user.TOTPSecret) {
		return nil, s.rejectCode(ctx, userID, ErrInvalidCode)
	}

	fresh, err := s.replay.Claim(ctx, userID, code, s.cfg.TOTP.codeWindow())
	if err != nil {
		return nil, s.unavailable("replay claim", err)
	}
	if !fresh {
		return nil, s.rejectCode(ctx, userID, ErrCodeReused)
	}

	if _, err := s.challenges.Delete(ctx, userID); err != nil {
		return nil, s.unavailable("challenge delete", err)
	}
	return s.createSession(ctx, user)
}

func (s *Service) rejectCode(ctx context.Context, userID string, reason error) error {
	exceeded, err := s.challenges.RecordFailure(ctx, userID, s.cfg.MaxChallengeAttempts)
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ErrChallengeInvalid
	case errors.Is(err, stores.ErrChallengeExpired):
		return ErrChallengeExpired
	case err != nil:
		return s.unavailable("challenge attempt", err)
	case exceeded:
		s.logger.Warn("totp challenge attempts exceeded", zap.String("user_id", userID))
		return ErrChallengeAttemptsExceeded
	}
	s.logger.Info("totp code rejected", zap.String("user_id", userID), zap.Error(reason))
	return reason
}

// Logout revokes the session behind accessToken. Revoking an already
// revoked session succeeds.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return ErrUnauthorized
	}
	if _, err := s.sessions.Delete(ctx, claims.SID); err != nil {
		return s.unavailable("session delete", err)
	}
	s.logger.Info("session revoked", zap.String("user_id", claims.UID), zap.String("session_id", claims.SID))
	return nil
}

// Authenticate validates accessToken and that its session is still live.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (authflow.Principal, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return authflow.Principal{}, ErrUnauthorized
	}
	record, err := s.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, stores.ErrSessionNotFound) {
			return authflow.Principal{}, ErrUnauthorized
		}
		return authflow.Principal{}, s.unavailable("session lookup", err)
	}
	if record.UserID != claims.UID {
		return authflow.Principal{}, ErrUnauthorized
	}
	return authflow.Principal{
		ID:                 claims.UID,
		Username:           claims.Username,
		Role:               claims.Role,
		VerificationStatus: claims.Verified,
	}, nil
}

// CreateUser hashes pass and stores a new user.
func (s *Service) CreateUser(ctx context.Context, username, pass, role string, verified bool) (userstore.Record, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return userstore.Record{}, errors.New("authservice: username is required")
	}
	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return userstore.Record{}, err
	}
	record := userstore.Record{
		ID:                 uuid.NewString(),
		Username:           username,
		PasswordHash:       hash,
		Role:               role,
		VerificationStatus: verified,
	}
	if err := s.users.Create(ctx, record); err != nil {
		return userstore.Record{}, err
	}
	return record, nil
}

func (s *Service) createSession(ctx context.Context, user userstore.Record) (*authflow.Session, error) {
	sessionID := uuid.NewString()
	accessToken, expiresAt, err := s.tokens.Issue(token.Subject{
		UserID:    user.ID,
		SessionID: sessionID,
		Username:  user.Username,
		Role:      user.Role,
		Verified:  user.VerificationStatus,
	})
	if err != nil {
		return nil, s.unavailable("token issue", err)
	}

	err = s.sessions.Save(ctx, &stores.Session{
		SessionID: sessionID,
		UserID:    user.ID,
		Role:      user.Role,
		CreatedAt: s.now().Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return nil, s.unavailable("session save", err)
	}

	s.logger.Info("session created", zap.String("user_id", user.ID), zap.String("session_id", sessionID))
	return &authflow.Session{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		User: authflow.Principal{
			ID:                 user.ID,
			Username:           user.Username,
			Role:               user.Role,
			VerificationStatus: user.VerificationStatus,
		},
	}, nil
}

func (s *Service) unavailable(step string, err error) error {
	s.logger.Error("backend failure", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, step, err)
}
