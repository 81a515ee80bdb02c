package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	goSignIn "github.com/MrEthical07/goSignIn"
)

// profile is the TOML load profile. Flags override it.
type profile struct {
	Accounts    int    `toml:"accounts"`
	Concurrency int    `toml:"concurrency"`
	Ops         int    `toml:"ops"`
	RedisAddr   string `toml:"redis_addr"`
	Secret      string `toml:"secret"`
	// ArgonMemoryKB keeps hashing cheap enough to measure the engine rather
	// than Argon2.
	ArgonMemoryKB uint32 `toml:"argon_memory_kb"`
}

func defaultProfile() profile {
	return profile{
		Accounts:      200,
		Concurrency:   64,
		Ops:           20000,
		ArgonMemoryKB: 8 * 1024,
	}
}

func main() {
	var (
		envFile     = flag.String("env", ".env", "dotenv file to load if present")
		profilePath = flag.String("profile", "", "TOML load profile")
		accounts    = flag.Int("accounts", 0, "number of accounts to register")
		concurrency = flag.Int("concurrency", 0, "number of concurrent workers")
		ops         = flag.Int("ops", 0, "operations per phase (guard + sign-in)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(2)
	}

	p := defaultProfile()
	if *profilePath != "" {
		if _, err := toml.DecodeFile(*profilePath, &p); err != nil {
			fmt.Fprintf(os.Stderr, "load profile: %v\n", err)
			os.Exit(2)
		}
	}
	override(&p.Accounts, *accounts)
	override(&p.Concurrency, *concurrency)
	override(&p.Ops, *ops)
	if *redisAddr != "" {
		p.RedisAddr = *redisAddr
	}
	if p.RedisAddr == "" {
		p.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if p.Secret == "" {
		p.Secret = os.Getenv("SIGNIN_SECRET")
	}
	if p.Secret == "" {
		p.Secret = "signin-loadtest-secret-do-not-use-in-production"
	}

	if p.Accounts <= 0 || p.Concurrency <= 0 || p.Ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	client, cleanup, err := connectRedis(p.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := goSignIn.DefaultConfig()
	cfg.Token.Secret = []byte(p.Secret)
	cfg.Password.Memory = p.ArgonMemoryKB
	cfg.Password.Time = 1
	cfg.Throttle.MaxAttempts = 1 << 20
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := goSignIn.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	fmt.Printf("registering %d accounts...\n", p.Accounts)
	startSeed := time.Now()
	tokens := make([]string, p.Accounts)
	for i := 0; i < p.Accounts; i++ {
		email := accountEmail(i)
		if _, err := engine.Register(ctx, goSignIn.Registration{
			Email:           email,
			Password:        accountPassword,
			ConfirmPassword: accountPassword,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "register %s: %v\n", email, err)
			os.Exit(1)
		}
		res, err := engine.SignIn(ctx, goSignIn.ProviderEmail, goSignIn.Credentials{Email: email, Password: accountPassword})
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign in %s: %v\n", email, err)
			os.Exit(1)
		}
		tokens[i] = res.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	guardStats := runPhase(p.Ops, p.Concurrency, p.Accounts, func(idx int) error {
		res := engine.Guard().Authenticate(ctx, goSignIn.MapRequest{
			Headers: map[string]string{"Authorization": "Bearer " + tokens[idx]},
		})
		return res.Err
	})
	signInStats := runPhase(p.Ops/10+1, p.Concurrency, p.Accounts, func(idx int) error {
		_, err := engine.SignIn(ctx, goSignIn.ProviderEmail, goSignIn.Credentials{Email: accountEmail(idx), Password: accountPassword})
		return err
	})

	fmt.Println("---- results ----")
	printStats("guard", guardStats)
	printStats("sign-in", signInStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("sessions created=%d guard allowed=%d guard denied=%d\n",
		snap.Counters[goSignIn.MetricSessionCreated],
		snap.Counters[goSignIn.MetricGuardAllowed],
		snap.Counters[goSignIn.MetricGuardDenied],
	)
}

const accountPassword = "Loadtest1!pw"

func accountEmail(i int) string {
	return fmt.Sprintf("load-%d@example.com", i)
}

func override(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func connectRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

func runPhase(ops, concurrency, accounts int, op func(idx int) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r.Intn(accounts))
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
	return computeStats(time.Since(start), latencies, failures)
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
