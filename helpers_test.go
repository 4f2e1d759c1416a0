package authflow

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeAuthenticator struct {
	mu          sync.Mutex
	loginCalls  int
	verifyCalls int
	logoutCalls int
	lastCode    string
	lastUserID  string

	login  func(ctx context.Context, username, password string) (*LoginResult, error)
	verify func(ctx context.Context, code, userID string) (*Session, error)
	logout func(ctx context.Context, session Session) error

	revoked []string
}

func (f *fakeAuthenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.login
	f.mu.Unlock()

	if fn == nil {
		return &LoginResult{Session: testSession(username)}, nil
	}
	return fn(ctx, username, password)
}

func (f *fakeAuthenticator) VerifyTOTP(ctx context.Context, code, userID string) (*Session, error) {
	f.mu.Lock()
	f.verifyCalls++
	f.lastCode = code
	f.lastUserID = userID
	fn := f.verify
	f.mu.Unlock()

	if fn == nil {
		return testSession("carol"), nil
	}
	return fn(ctx, code, userID)
}

func (f *fakeAuthenticator) Logout(ctx context.Context, session Session) error {
	f.mu.Lock()
	f.logoutCalls++
	f.revoked = append(f.revoked, session.AccessToken)
	fn := f.logout
	f.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, session)
}

func (f *fakeAuthenticator) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *fakeAuthenticator) calls() (login, verify, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.verifyCalls, f.logoutCalls
}

func testSession(username string) *Session {
	return &Session{
		AccessToken: "token-" + username,
		ExpiresAt:   time.Now().Add(15 * time.Minute),
		User: Principal{
			ID:       "id-" + username,
			Username: username,
			Role:     "patient",
		},
	}
}

func requireTOTP(userID string) func(context.Context, string, string) (*LoginResult, error) {
	return func(context.Context, string, string) (*LoginResult, error) {
		return &LoginResult{RequireTOTP: true, UserID: userID}, nil
	}
}

func rejectWith(op, detail string) error {
	return &AuthError{Op: op, Detail: detail}
}

// blockingCall parks an authenticator call until release is closed and
// signals started once it is parked.
type blockingCall struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingCall() *blockingCall {
	return &blockingCall{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingCall) wait(t *testing.T) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(2 * time.Second):
		t.Fatal("authenticator call did not start")
	}
}

func newTestController(t *testing.T, auth Authenticator) *Controller {
	t.Helper()
	return newTestControllerWithConfig(t, auth, DefaultConfig())
}

func newTestControllerWithConfig(t *testing.T, auth Authenticator, cfg Config) *Controller {
	t.Helper()

	ctrl, err := New().
		WithConfig(cfg).
		WithAuthenticator(auth).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return ctrl
}

func assertChallengeInvariant(t *testing.T, snap Snapshot) {
	t.Helper()
	if snap.State.HoldsChallenge() != (snap.Challenge != nil) {
		t.Fatalf("challenge invariant broken: state=%s challenge=%v", snap.State, snap.Challenge)
	}
	if (snap.State == StateAuthenticated) != (snap.Session != nil) {
		t.Fatalf("session invariant broken: state=%s session=%v", snap.State, snap.Session)
	}
}
