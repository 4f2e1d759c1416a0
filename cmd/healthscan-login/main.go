// Command healthscan-login signs in to a HealthScan auth server from the
// terminal and prints the navigation the signed-in user would see.
//
// The first launch on a device shows the landing prompt. The flag is kept in
// Redis when REDIS_ADDR is set, and only for the process lifetime otherwise.
//
// Run against a local authserver:
//
//	go run ./cmd/healthscan-login -server http://localhost:8000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/httpclient"
	"github.com/MrEthical07/authflow/internal/config"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/navigation"
	"github.com/MrEthical07/authflow/onboarding"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	server := flag.String("server", cfg.AuthServerURL, "auth server base URL")
	device := flag.String("device", cfg.DeviceID, "device identifier for the first-launch flag")
	logLevel := flag.String("log-level", "warn", "log level written to stderr")
	flag.Parse()

	logger, err := logging.New(*logLevel, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *server, *device, logger); err != nil && !errors.Is(err, errAborted) {
		logger.Error("login failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, server, deviceID string, logger *zap.Logger) error {
	t := newTerminal(os.Stdin, os.Stdout)

	store, closeStore := launchStore(cfg)
	defer closeStore()

	if deviceID == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("device id: %w", err)
		}
		deviceID = host
	}
	ctx = authflow.WithDeviceID(ctx, deviceID)

	route, err := landing(ctx, onboarding.NewGate(store, logger), deviceID, t)
	if err != nil {
		return err
	}
	if route == onboarding.RouteSignup {
		t.printf("Sign-up is not available here. Open %s%s in a browser.\n",
			strings.TrimRight(server, "/"), navigation.PathRegister)
		return nil
	}

	client, err := httpclient.New(server, httpclient.WithLogger(logger))
	if err != nil {
		return err
	}

	ctrl, err := authflow.New().
		WithConfig(cfg.Flow()).
		WithAuthenticator(client).
		WithLogger(logger).
		WithNavigator(authflow.NavigatorFunc(func(_ context.Context, destination string) {
			t.printf("Signed in. Opening %s\n", destination)
		})).
		Build()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	// Busy feedback while a call is in flight.
	unsubscribe := ctrl.Subscribe(func(s authflow.Snapshot) {
		if s.Busy() {
			t.printf("...\n")
		}
	})
	defer unsubscribe()

	if _, err := signIn(ctx, ctrl, t); err != nil {
		return err
	}
	printLinks(t, navigation.ViewerFromSession(ctrl.Session()))

	for {
		cmd, err := t.ask("> ")
		if err != nil {
			return err
		}
		switch strings.ToLower(cmd) {
		case "logout":
			if _, err := ctrl.Logout(ctx); err != nil {
				return err
			}
			t.printf("Signed out.\n")
			return nil
		case "quit", "exit":
			return nil
		}
	}
}

func launchStore(cfg *config.Config) (onboarding.LaunchStore, func()) {
	if cfg.RedisAddr == "" {
		return onboarding.NewMemoryLaunchStore(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return onboarding.NewRedisLaunchStore(rdb, ""), func() { _ = rdb.Close() }
}
