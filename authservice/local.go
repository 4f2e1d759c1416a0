package authservice

import (
	"context"

	"github.com/MrEthical07/authflow"
)

// Local is an in-process [authflow.Authenticator] over a Service.
type Local struct {
	svc *Service
}

var _ authflow.Authenticator = (*Local)(nil)

func NewLocal(svc *Service) *Local {
	return &Local{svc: svc}
}

func (l *Local) Login(ctx context.Context, username, pass string) (*authflow.LoginResult, error) {
	result, err := l.svc.Login(ctx, username, pass)
	if err != nil {
		return nil, AsAuthError(authflow.OpLogin, err)
	}
	return result, nil
}

func (l *Local) VerifyTOTP(ctx context.Context, code, userID string) (*authflow.Session, error) {
	session, err := l.svc.VerifyTOTP(ctx, code, userID)
	if err != nil {
		return nil, AsAuthError(authflow.OpVerifyTOTP, err)
	}
	return session, nil
}

// Logout revokes session. A session without a token is a no-op.
func (l *Local) Logout(ctx context.Context, session authflow.Session) error {
	if session.AccessToken == "" {
		return nil
	}
	return AsAuthError(authflow.OpLogout, l.svc.Logout(ctx, session.AccessToken))
}
