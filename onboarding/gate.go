// Package onboarding decides whether a device starts on the landing screen
// or goes straight to sign-in, based on a persisted first-launch flag.
package onboarding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Route is a screen the client can open at start-up.
type Route string

const (
	RouteLanding Route = "landing"
	RouteLogin   Route = "login"
	RouteSignup  Route = "signup"
)

// Gate routes a device through the landing screen on its first launch.
type Gate struct {
	store  LaunchStore
	logger *zap.Logger
}

// NewGate returns a Gate over store. A nil logger is replaced by zap.NewNop.
func NewGate(store LaunchStore, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, logger: logger.Named("onboarding")}
}

// InitialRoute returns RouteLanding until the device has completed the
// landing screen, RouteLogin afterwards. A failing store shows the landing
// screen again rather than blocking start-up.
func (g *Gate) InitialRoute(ctx context.Context, deviceID string) Route {
	done, err := g.store.IsLaunchComplete(ctx, deviceID)
	if err != nil {
		g.logger.Warn("launch flag lookup failed", zap.String("device_id", deviceID), zap.Error(err))
		return RouteLanding
	}
	if done {
		return RouteLogin
	}
	return RouteLanding
}

// Continue leaves the landing screen towards next, which must be
// RouteLogin or RouteSignup. The launch is marked complete first; if that
// fails the route is still returned along with the error.
func (g *Gate) Continue(ctx context.Context, deviceID string, next Route) (Route, error) {
	if next != RouteLogin && next != RouteSignup {
		return "", fmt.Errorf("cannot continue from landing to %q", next)
	}
	if err := g.store.MarkLaunchComplete(ctx, deviceID); err != nil {
		g.logger.Warn("launch flag write failed", zap.String("device_id", deviceID), zap.Error(err))
		return next, err
	}
	return next, nil
}
