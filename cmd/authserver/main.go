// Command authserver runs the HealthScan authentication API.
//
// Without REDIS_ADDR it starts an embedded miniredis, and without
// DATABASE_URL users live in memory; both are development conveniences and
// refused when APP_ENV=production.
//
// Run:
//
//	go run ./cmd/authserver
//
// Then:
//
//	curl -i -X POST localhost:8000/api/auth/login \
//	  -H 'Content-Type: application/json' \
//	  -d '{"username":"alice","password":"correct-horse"}'
//
//	curl -i localhost:8000/api/auth/me -H "Authorization: Bearer <ACCESS_TOKEN>"
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authflow/authservice"
	"github.com/MrEthical07/authflow/httpapi"
	"github.com/MrEthical07/authflow/internal/config"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/token"
	"github.com/MrEthical07/authflow/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const demoPassword = "correct-horse"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("authserver stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------- infrastructure ----------
	rdb, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	users, db, err := openUsers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	hasher, err := password.New(password.DefaultConfig())
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}

	key, err := signingKey(cfg, logger)
	if err != nil {
		return err
	}
	tokens, err := token.NewManager(cfg.Token(key))
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	// ---------- service ----------
	svc, err := authservice.New(cfg.AuthService(), authservice.Deps{
		Redis:  rdb,
		Users:  users,
		Hasher: hasher,
		Tokens: tokens,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	if cfg.SeedDemoUsers {
		if err := seedDemoUsers(ctx, svc, logger); err != nil {
			return err
		}
	}

	// ---------- http ----------
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := httpapi.NewHandler(svc, httpapi.Options{
		Logger:   logger,
		Registry: registry,
		Ready: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			if db != nil {
				if err := db.PingContext(ctx); err != nil {
					return fmt.Errorf("postgres: %w", err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, func(), error) {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("embedded redis: %w", err)
	}
	logger.Warn("REDIS_ADDR not set, using embedded miniredis", zap.String("addr", mr.Addr()))
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

func openUsers(ctx context.Context, cfg *config.Config, logger *zap.Logger) (userstore.Provider, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, users are kept in memory")
		return userstore.NewMemory(), nil, nil
	}

	if err := userstore.Migrate(cfg.DatabaseURL, "up"); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := userstore.Open(openCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	return userstore.NewPostgres(db), db, nil
}

// signingKey returns nil when JWT_SIGNING_KEY is set. Otherwise it generates
// a throwaway key, so tokens do not survive a restart.
func signingKey(cfg *config.Config, logger *zap.Logger) ([]byte, error) {
	if cfg.JWTSigningKey != "" {
		return nil, nil
	}
	logger.Warn("JWT_SIGNING_KEY not set, generating an ephemeral key")

	if cfg.Token(nil).SigningMethod == token.MethodEd25519 {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		return priv, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}

type demoUser struct {
	username string
	role     string
	verified bool
	totp     bool
}

var demoUsers = []demoUser{
	{username: "alice", role: userstore.RolePatient},
	{username: "dr.bob", role: userstore.RoleDoctor, verified: true, totp: true},
	{username: "admin", role: userstore.RoleAdmin, verified: true},
}

func seedDemoUsers(ctx context.Context, svc *authservice.Service, logger *zap.Logger) error {
	for _, u := range demoUsers {
		rec, err := svc.CreateUser(ctx, u.username, demoPassword, u.role, u.verified)
		if errors.Is(err, userstore.ErrDuplicate) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", u.username, err)
		}
		logger.Info("demo user created",
			zap.String("username", u.username),
			zap.String("role", u.role),
			zap.String("password", demoPassword),
		)
		if !u.totp {
			continue
		}

		enrollment, err := svc.EnrollTOTP(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("seed %s totp: %w", u.username, err)
		}
		code, err := totp.GenerateCode(enrollment.Secret, time.Now())
		if err != nil {
			return fmt.Errorf("seed %s totp: %w", u.username, err)
		}
		if err := svc.ConfirmTOTP(ctx, rec.ID, code); err != nil {
			return fmt.Errorf("seed %s totp: %w", u.username, err)
		}
		logger.Info("demo user has two-factor authentication",
			zap.String("username", u.username),
			zap.String("otpauth_url", enrollment.URL),
		)
	}
	return nil
}
