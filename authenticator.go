package authflow

import "context"

// Authenticator is the external authentication service the controller
// drives. Implementations are supplied through [Builder.WithAuthenticator];
// see the httpclient package for the HTTP one and authservice.Local for the
// in-process one.
//
// Rejections must be returned as *[AuthError]. Any other error is treated as
// a transport fault.
//
// Implementations hold no session state. Logout receives the session to
// revoke, which is the controller's own or one carried by a discarded
// response.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	VerifyTOTP(ctx context.Context, code, userID string) (*Session, error)
	Logout(ctx context.Context, session Session) error
}

// Navigator receives the landing destination once the flow authenticates.
type Navigator interface {
	Navigate(ctx context.Context, destination string)
}

// NavigatorFunc adapts a function to [Navigator].
type NavigatorFunc func(ctx context.Context, destination string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, destination string) {
	f(ctx, destination)
}
