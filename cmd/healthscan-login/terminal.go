package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/navigation"
	"github.com/MrEthical07/authflow/onboarding"
)

// errAborted is returned when input ends before the flow completes.
var errAborted = errors.New("input closed")

const backCommand = "back"

type terminal struct {
	in  *bufio.Scanner
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewScanner(in), out: out}
}

func (t *terminal) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) ask(prompt string) (string, error) {
	t.printf("%s", prompt)
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", err
		}
		return "", errAborted
	}
	return strings.TrimSpace(t.in.Text()), nil
}

// landing shows the first-launch screen when the gate asks for it and
// returns the route the user continues to.
func landing(ctx context.Context, gate *onboarding.Gate, deviceID string, t *terminal) (onboarding.Route, error) {
	route := gate.InitialRoute(ctx, deviceID)
	if route != onboarding.RouteLanding {
		return route, nil
	}

	t.printf("Welcome to HealthScan.\n")
	for {
		answer, err := t.ask("[l]og in or [s]ign up? ")
		if err != nil {
			return "", err
		}
		var next onboarding.Route
		switch strings.ToLower(answer) {
		case "l", "login", "log in":
			next = onboarding.RouteLogin
		case "s", "signup", "sign up":
			next = onboarding.RouteSignup
		default:
			continue
		}
		// A failed write only means the landing screen shows again next time.
		route, _ = gate.Continue(ctx, deviceID, next)
		return route, nil
	}
}

// signIn drives ctrl until it authenticates or input ends. Typing "back" at
// the code prompt abandons the pending verification.
func signIn(ctx context.Context, ctrl *authflow.Controller, t *terminal) (authflow.Session, error) {
	for {
		snap := ctrl.Snapshot()
		if snap.Failed() {
			t.printf("! %s\n", snap.ErrorMessage())
		}

		var err error
		switch snap.State {
		case authflow.StateAuthenticated:
			session, _ := ctrl.Session()
			return session, nil

		case authflow.StateAwaitingCredentials:
			var username, password string
			if username, err = t.ask("Username: "); err != nil {
				return authflow.Session{}, err
			}
			if password, err = t.ask("Password: "); err != nil {
				return authflow.Session{}, err
			}
			_, err = ctrl.SubmitCredentials(ctx, username, password)

		case authflow.StateAwaitingSecondFactor:
			var code string
			if code, err = t.ask("Verification code (or \"back\"): "); err != nil {
				return authflow.Session{}, err
			}
			if strings.EqualFold(code, backCommand) {
				_, err = ctrl.CancelSecondFactor()
			} else {
				_, err = ctrl.SubmitSecondFactor(ctx, code)
			}

		default:
			// Submitting states are only visible to concurrent observers.
			return authflow.Session{}, fmt.Errorf("unexpected flow state %s", snap.State)
		}
		if err != nil {
			return authflow.Session{}, err
		}
	}
}

func printLinks(t *terminal, viewer navigation.Viewer) {
	t.printf("\n")
	for _, link := range navigation.Links(viewer) {
		t.printf("  %-16s %s\n", link.Label, link.Path)
	}
	t.printf("  --\n")
	for _, link := range navigation.AccountLinks(viewer, navigation.PathHome) {
		switch link.Action {
		case navigation.ActionLogout:
			t.printf("  %-16s (type \"logout\")\n", link.Label)
		default:
			t.printf("  %-16s %s\n", link.Label, link.Path)
		}
	}
	t.printf("\n")
}
