package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	mathrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/authservice"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/token"
	"github.com/MrEthical07/authflow/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "load-test-password"

type totpUser struct {
	username string
	secret   string
}

func main() {
	var (
		users       = flag.Int("users", 200, "password-only users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "operations per phase (login, totp, authenticate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt:", "store key prefix")
		memoryKB    = flag.Uint("argon-memory", 8*1024, "argon2id memory in KiB")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	svc, store, err := buildService(client, *prefix, uint32(*memoryKB))
	if err != nil {
		fmt.Fprintf(os.Stderr, "service init failed: %v\n", err)
		os.Exit(1)
	}

	// A TOTP code is accepted once per user, so the second-factor phase
	// needs one user per operation.
	fmt.Printf("seeding %d password users and %d totp users...\n", *users, *ops)
	startSeed := time.Now()
	plain, secured, err := seed(ctx, svc, store, *users, *ops)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var (
		tokensMu sync.Mutex
		tokens   = make([]string, 0, *ops)
	)

	loginStats := runPhase(*ops, *concurrency, func(_ int, r *mathrand.Rand) error {
		local := authservice.NewLocal(svc)
		ctrl, err := authflow.New().WithAuthenticator(local).WithMetricsEnabled(false).Build()
		if err != nil {
			return err
		}
		defer ctrl.Close()

		snap, err := ctrl.SubmitCredentials(ctx, plain[r.Intn(len(plain))], loadPassword)
		if err != nil {
			return err
		}
		if snap.State != authflow.StateAuthenticated {
			return fmt.Errorf("login ended in %s", snap.State)
		}
		session, _ := ctrl.Session()
		tokensMu.Lock()
		tokens = append(tokens, session.AccessToken)
		tokensMu.Unlock()
		return nil
	})

	totpStats := runPhase(*ops, *concurrency, func(i int, _ *mathrand.Rand) error {
		user := secured[i]
		ctrl, err := authflow.New().WithAuthenticator(authservice.NewLocal(svc)).WithMetricsEnabled(false).Build()
		if err != nil {
			return err
		}
		defer ctrl.Close()

		snap, err := ctrl.SubmitCredentials(ctx, user.username, loadPassword)
		if err != nil {
			return err
		}
		if snap.State != authflow.StateAwaitingSecondFactor {
			return fmt.Errorf("login ended in %s", snap.State)
		}
		code, err := totp.GenerateCode(user.secret, time.Now())
		if err != nil {
			return err
		}
		snap, err = ctrl.SubmitSecondFactor(ctx, code)
		if err != nil {
			return err
		}
		if snap.State != authflow.StateAuthenticated {
			return fmt.Errorf("verify ended in %s: %s", snap.State, snap.ErrorMessage())
		}
		return nil
	})

	var authStats phaseStats
	if len(tokens) > 0 {
		authStats = runPhase(*ops, *concurrency, func(_ int, r *mathrand.Rand) error {
			_, err := svc.Authenticate(ctx, tokens[r.Intn(len(tokens))])
			return err
		})
	}

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("login+totp", totpStats)
	printStats("authenticate", authStats)
}

func buildService(client redis.UniversalClient, prefix string, memoryKB uint32) (*authservice.Service, *userstore.Memory, error) {
	hashCfg := password.DefaultConfig()
	hashCfg.Memory = memoryKB
	hashCfg.Time = 1
	hasher, err := password.New(hashCfg)
	if err != nil {
		return nil, nil, err
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, err
	}
	tokens, err := token.NewManager(token.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: token.MethodHS256,
		PrivateKey:    key,
	})
	if err != nil {
		return nil, nil, err
	}

	cfg := authservice.DefaultConfig()
	cfg.RedisPrefix = prefix
	store := userstore.NewMemory()
	svc, err := authservice.New(cfg, authservice.Deps{
		Redis:  client,
		Users:  store,
		Hasher: hasher,
		Tokens: tokens,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, store, nil
}

func seed(ctx context.Context, svc *authservice.Service, store *userstore.Memory, users, secured int) ([]string, []totpUser, error) {
	plain := make([]string, 0, users)
	for i := 0; i < users; i++ {
		name := fmt.Sprintf("patient-%d", i)
		if _, err := svc.CreateUser(ctx, name, loadPassword, userstore.RolePatient, false); err != nil {
			return nil, nil, err
		}
		plain = append(plain, name)
	}

	out := make([]totpUser, 0, secured)
	for i := 0; i < secured; i++ {
		name := fmt.Sprintf("doctor-%d", i)
		rec, err := svc.CreateUser(ctx, name, loadPassword, userstore.RoleDoctor, true)
		if err != nil {
			return nil, nil, err
		}
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "HealthScan", AccountName: name})
		if err != nil {
			return nil, nil, err
		}
		if err := store.SetTOTPSecret(ctx, rec.ID, key.Secret()); err != nil {
			return nil, nil, err
		}
		if err := store.EnableTOTP(ctx, rec.ID); err != nil {
			return nil, nil, err
		}
		out = append(out, totpUser{username: name, secret: key.Secret()})
	}
	return plain, out, nil
}

// runPhase calls op ops times across concurrency workers. op receives the
// operation index and a per-worker random source.
func runPhase(ops, concurrency int, op func(i int, r *mathrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mathrand.New(mathrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
