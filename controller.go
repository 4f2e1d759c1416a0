package authflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	"go.uber.org/zap"
)

// Controller drives one interactive sign-in attempt: credentials, an
// optional TOTP step, and the resulting session.
//
// All methods are safe for concurrent use. Authenticator calls run outside
// the state lock; each call carries the generation it was issued under, and
// a response whose generation is no longer current is discarded.
type Controller struct {
	cfg           Config
	authenticator Authenticator
	navigator     Navigator
	logger        *zap.Logger
	audit         *internalaudit.Dispatcher
	metrics       *Metrics
	id            string

	mu          sync.Mutex
	state       FlowState
	generation  uint64
	version     uint64
	credentials Credentials
	challenge   *Challenge
	session     *Session
	failure     *Failure
	destination string

	subMu       sync.Mutex
	subscribers map[uint64]func(Snapshot)
	nextSubID   uint64
}

// ID returns the flow identifier carried by audit events.
func (c *Controller) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Close stops the audit dispatcher after flushing buffered events.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.audit.Close()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Session returns the established session, if the flow is authenticated.
func (c *Controller) Session() (Session, bool) {
	if c == nil {
		return Session{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated || c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Subscribe registers fn to receive a snapshot after every transition and
// returns a function that removes it. fn is called outside the state lock,
// so it may call back into the controller. Snapshots published from
// different goroutines can arrive out of order; compare Version.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	if c == nil || fn == nil {
		return func() {}
	}

	c.subMu.Lock()
	if c.subscribers == nil {
		c.subscribers = make(map[uint64]func(Snapshot))
	}
	c.nextSubID++
	id := c.nextSubID
	c.subscribers[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subscribers, id)
			c.subMu.Unlock()
		})
	}
}

/*
====================================
CREDENTIALS STEP
====================================
*/

// SubmitCredentials runs the first step. It is accepted only in
// StateAwaitingCredentials and issues at most one Login call.
//
// Authentication failures are not returned as errors: the returned snapshot
// carries a [Failure] and the state is back at StateAwaitingCredentials
// with the credentials preserved. The error is non-nil only for
// [ErrInvalidTransition], [ErrSuperseded] and [ErrNotReady].
func (c *Controller) SubmitCredentials(ctx context.Context, username, password string) (Snapshot, error) {
	if c == nil || c.authenticator == nil {
		return Snapshot{}, ErrNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.state != StateAwaitingCredentials {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.refuse(ctx, "submit_credentials", snap)
		return snap, ErrInvalidTransition
	}

	c.credentials = Credentials{Username: username, Password: password}

	if strings.TrimSpace(username) == "" || password == "" {
		c.failure = &Failure{
			Kind:    CredentialRejected,
			Reason:  ReasonIncomplete,
			Message: c.cfg.Messages.CredentialsIncomplete,
		}
		snap := c.commitLocked()
		c.mu.Unlock()

		c.metricInc(MetricCredentialRejected)
		c.emitAudit(ctx, auditEventCredentialsRejected, false, snap, ReasonIncomplete.String(), nil)
		c.publish(snap)
		return snap, nil
	}

	c.generation++
	gen := c.generation
	c.state = StateSubmitting
	c.failure = nil
	submitting := c.commitLocked()
	c.mu.Unlock()

	c.metricInc(MetricCredentialsSubmitted)
	c.emitAudit(ctx, auditEventCredentialsSubmitted, true, submitting, "", nil)
	c.publish(submitting)

	callCtx, cancel := withCallTimeout(ctx, c.cfg.Timeouts.Login)
	start := time.Now()
	result, err := c.authenticator.Login(callCtx, username, password)
	timedOut := callTimedOut(ctx, callCtx, err)
	cancel()
	c.observe(MetricLoginLatency, time.Since(start))

	if err == nil {
		err = validateLoginResult(result)
	}

	c.mu.Lock()
	if gen != c.generation {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.discard(ctx, OpLogin, snap)
		if err == nil {
			c.revokeOrphan(ctx, result.Session)
		}
		return snap, ErrSuperseded
	}

	switch {
	case err != nil:
		c.state = StateAwaitingCredentials
		c.failure = c.failureFor(CredentialRejected, err, timedOut)
		snap := c.commitLocked()
		c.mu.Unlock()

		c.recordFailure(ctx, OpLogin, snap, err)
		c.publish(snap)
		return snap, nil

	case result.RequireTOTP:
		c.state = StateAwaitingSecondFactor
		c.challenge = &Challenge{UserID: result.UserID, IssuedAt: time.Now()}
		snap := c.commitLocked()
		c.mu.Unlock()

		c.metricInc(MetricSecondFactorRequired)
		c.emitAudit(ctx, auditEventSecondFactorRequired, true, snap, "", nil)
		c.publish(snap)
		return snap, nil

	default:
		snap := c.authenticateLocked(result.Session)
		c.mu.Unlock()

		c.finishAuthenticated(ctx, snap)
		return snap, nil
	}
}

/*
====================================
SECOND-FACTOR STEP
====================================
*/

// SubmitSecondFactor verifies a TOTP code against the held challenge. It is
// accepted only in StateAwaitingSecondFactor; any other state fails fast
// with [ErrInvalidTransition] and no call is made.
//
// On failure the flow returns to StateAwaitingSecondFactor and keeps the
// challenge so the user can retry the code.
func (c *Controller) SubmitSecondFactor(ctx context.Context, code string) (Snapshot, error) {
	if c == nil || c.authenticator == nil {
		return Snapshot{}, ErrNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	code = strings.TrimSpace(code)

	c.mu.Lock()
	if c.state != StateAwaitingSecondFactor || c.challenge == nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.refuse(ctx, "submit_second_factor", snap)
		return snap, ErrInvalidTransition
	}

	if code == "" {
		c.failure = &Failure{
			Kind:    SecondFactorRejected,
			Reason:  ReasonIncomplete,
			Message: c.cfg.Messages.CodeIncomplete,
		}
		snap := c.commitLocked()
		c.mu.Unlock()

		c.metricInc(MetricSecondFactorRejected)
		c.emitAudit(ctx, auditEventSecondFactorRejected, false, snap, ReasonIncomplete.String(), nil)
		c.publish(snap)
		return snap, nil
	}

	c.generation++
	gen := c.generation
	userID := c.challenge.UserID
	c.state = StateVerifyingSecondFactor
	c.failure = nil
	verifying := c.commitLocked()
	c.mu.Unlock()

	c.metricInc(MetricSecondFactorSubmitted)
	c.emitAudit(ctx, auditEventSecondFactorSubmit, true, verifying, "", nil)
	c.publish(verifying)

	callCtx, cancel := withCallTimeout(ctx, c.cfg.Timeouts.VerifyTOTP)
	start := time.Now()
	session, err := c.authenticator.VerifyTOTP(callCtx, code, userID)
	timedOut := callTimedOut(ctx, callCtx, err)
	cancel()
	c.observe(MetricVerifyLatency, time.Since(start))

	if err == nil && session == nil {
		err = errMissingSession
	}

	c.mu.Lock()
	if gen != c.generation {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.discard(ctx, OpVerifyTOTP, snap)
		if err == nil {
			c.revokeOrphan(ctx, session)
		}
		return snap, ErrSuperseded
	}

	if err != nil {
		c.state = StateAwaitingSecondFactor
		c.failure = c.failureFor(SecondFactorRejected, err, timedOut)
		snap := c.commitLocked()
		c.mu.Unlock()

		c.recordFailure(ctx, OpVerifyTOTP, snap, err)
		c.publish(snap)
		return snap, nil
	}

	snap := c.authenticateLocked(session)
	c.mu.Unlock()

	c.finishAuthenticated(ctx, snap)
	return snap, nil
}

// CancelSecondFactor abandons the attempt and returns to
// StateAwaitingCredentials. It clears the credentials, the challenge and
// the failure, and invalidates any call still in flight so its response is
// discarded. It is refused only once the flow is authenticated.
func (c *Controller) CancelSecondFactor() (Snapshot, error) {
	if c == nil {
		return Snapshot{}, ErrNotReady
	}
	ctx := context.Background()

	c.mu.Lock()
	if c.state == StateAuthenticated {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.refuse(ctx, "cancel_second_factor", snap)
		return snap, ErrInvalidTransition
	}

	before := c.snapshotLocked()
	c.generation++
	c.state = StateAwaitingCredentials
	c.credentials = Credentials{}
	c.challenge = nil
	c.failure = nil
	snap := c.commitLocked()
	c.mu.Unlock()

	c.metricInc(MetricCancelled)
	c.emitAudit(ctx, auditEventCancelled, true, before, "", func() map[string]string {
		return map[string]string{"from": before.State.String()}
	})
	c.logger.Debug("flow cancelled", zap.String("flow_id", c.id), zap.Stringer("from", before.State))
	c.publish(snap)
	return snap, nil
}

/*
====================================
LOGOUT
====================================
*/

// Logout ends an authenticated flow. The session is dropped and the flow is
// back at StateAwaitingCredentials before the service is told to revoke that
// same session; a failing service Logout is logged and otherwise ignored.
func (c *Controller) Logout(ctx context.Context) (Snapshot, error) {
	if c == nil || c.authenticator == nil {
		return Snapshot{}, ErrNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.state != StateAuthenticated {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.refuse(ctx, "logout", snap)
		return snap, ErrInvalidTransition
	}

	before := c.snapshotLocked()
	session := *c.session
	c.generation++
	c.state = StateAwaitingCredentials
	c.credentials = Credentials{}
	c.session = nil
	c.failure = nil
	c.destination = ""
	snap := c.commitLocked()
	c.mu.Unlock()

	c.metricInc(MetricLogout)
	c.emitAudit(ctx, auditEventLogout, true, before, "", nil)
	c.publish(snap)

	callCtx, cancel := withCallTimeout(ctx, c.cfg.Timeouts.Logout)
	defer cancel()
	if err := c.authenticator.Logout(callCtx, session); err != nil {
		c.logger.Warn("service logout failed",
			zap.String("flow_id", c.id),
			zap.Error(err),
		)
	}

	return snap, nil
}

/*
====================================
TRANSITION HELPERS
====================================
*/

var errMissingSession = errors.New("authenticator returned no session")

func validateLoginResult(result *LoginResult) error {
	switch {
	case result == nil:
		return errors.New("authenticator returned no login result")
	case result.RequireTOTP && strings.TrimSpace(result.UserID) == "":
		return errors.New("authenticator required TOTP without a user id")
	case !result.RequireTOTP && result.Session == nil:
		return errMissingSession
	}
	return nil
}

// authenticateLocked moves to StateAuthenticated. c.mu must be held.
func (c *Controller) authenticateLocked(session *Session) Snapshot {
	s := *session
	c.state = StateAuthenticated
	c.challenge = nil
	c.failure = nil
	c.session = &s
	c.destination = c.cfg.Landing.Path
	return c.commitLocked()
}

func (c *Controller) finishAuthenticated(ctx context.Context, snap Snapshot) {
	c.metricInc(MetricAuthenticated)
	c.emitAudit(ctx, auditEventAuthenticated, true, snap, "", nil)
	c.logger.Info("flow authenticated",
		zap.String("flow_id", c.id),
		zap.String("user_id", snap.Session.User.ID),
		zap.String("destination", snap.Destination),
	)
	c.publish(snap)

	if c.navigator != nil {
		c.navigator.Navigate(ctx, snap.Destination)
	}
}

func (c *Controller) failureFor(kind FailureKind, err error, timedOut bool) *Failure {
	f := &Failure{Kind: kind}

	switch {
	case IsRejection(err):
		f.Reason = ReasonRejected
		f.Message = DetailOf(err)
	case timedOut:
		f.Reason = ReasonTimedOut
	default:
		f.Reason = ReasonUnavailable
	}

	if f.Message != "" {
		return f
	}

	switch {
	case kind == CredentialRejected && f.Reason == ReasonTimedOut:
		f.Message = c.cfg.Messages.CredentialTimedOut
	case kind == CredentialRejected:
		f.Message = c.cfg.Messages.CredentialRejected
	case f.Reason == ReasonTimedOut:
		f.Message = c.cfg.Messages.SecondFactorTimedOut
	default:
		f.Message = c.cfg.Messages.SecondFactorRejected
	}
	return f
}

func (c *Controller) recordFailure(ctx context.Context, op string, snap Snapshot, err error) {
	f := snap.Failure
	eventType := auditEventCredentialsRejected
	if f.Kind == SecondFactorRejected {
		eventType = auditEventSecondFactorRejected
		c.metricInc(MetricSecondFactorRejected)
	} else {
		c.metricInc(MetricCredentialRejected)
	}

	switch f.Reason {
	case ReasonTimedOut:
		c.metricInc(MetricCallTimedOut)
		c.logger.Warn("authenticator call timed out", zap.String("flow_id", c.id), zap.String("op", op))
	case ReasonUnavailable:
		c.metricInc(MetricTransportFailure)
		c.logger.Warn("authenticator call failed",
			zap.String("flow_id", c.id),
			zap.String("op", op),
			zap.Error(err),
		)
	default:
		c.logger.Debug("authenticator rejected request", zap.String("flow_id", c.id), zap.String("op", op))
	}

	c.emitAudit(ctx, eventType, false, snap, f.Reason.String(), nil)
}

func (c *Controller) discard(ctx context.Context, op string, snap Snapshot) {
	c.metricInc(MetricResponseDiscarded)
	c.emitAudit(ctx, auditEventResponseDiscarded, false, snap, "superseded", func() map[string]string {
		return map[string]string{"op": op}
	})
	c.logger.Info("discarded superseded response",
		zap.String("flow_id", c.id),
		zap.String("op", op),
		zap.Stringer("state", snap.State),
	)
}

// revokeOrphan asks the service to end a session that arrived on a discarded
// response. The flow never held it, so nothing else would revoke it.
func (c *Controller) revokeOrphan(ctx context.Context, session *Session) {
	if session == nil || session.AccessToken == "" {
		return
	}
	callCtx, cancel := withCallTimeout(ctx, c.cfg.Timeouts.Logout)
	defer cancel()
	if err := c.authenticator.Logout(callCtx, *session); err != nil {
		c.logger.Warn("revoking discarded session failed",
			zap.String("flow_id", c.id),
			zap.Error(err),
		)
	}
}

func (c *Controller) refuse(_ context.Context, op string, snap Snapshot) {
	c.metricInc(MetricInvalidTransition)
	c.logger.Debug("operation refused",
		zap.String("flow_id", c.id),
		zap.String("op", op),
		zap.Stringer("state", snap.State),
	)
}

func (c *Controller) observe(id MetricID, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.Observe(id, d)
}

// commitLocked bumps the version and returns the new snapshot. c.mu must
// be held.
func (c *Controller) commitLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:     c.version,
		State:       c.state,
		Credentials: c.credentials,
		Destination: c.destination,
	}
	if c.challenge != nil {
		ch := *c.challenge
		snap.Challenge = &ch
	}
	if c.session != nil {
		s := *c.session
		snap.Session = &s
	}
	if c.failure != nil {
		f := *c.failure
		snap.Failure = &f
	}
	return snap
}

func (c *Controller) publish(snap Snapshot) {
	c.subMu.Lock()
	if len(c.subscribers) == 0 {
		c.subMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// callTimedOut reports whether a failed call ran into its own deadline as
// opposed to the caller giving up.
func callTimedOut(parent, call context.Context, err error) bool {
	if err == nil || parent.Err() != nil {
		return false
	}
	return errors.Is(call.Err(), context.DeadlineExceeded)
}
