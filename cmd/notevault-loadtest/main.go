// Command notevault-loadtest measures engine throughput for token
// validation, refresh and password login against an in-memory store.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/internal/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "L0ad-Test-Passw0rd!"

type account struct {
	email  string
	tokens notevault.Tokens
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per token phase (validate, refresh)")
		loginOps    = flag.Int("login-ops", 500, "operations in the login phase")
		argonMemory = flag.Uint("argon-memory", 64*1024, "Argon2id memory in KiB")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *loginOps < 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	cfg := notevault.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("loadtest-access-secret-0123456789")
	cfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret-012345678")
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.RateLimit.EnableIPThrottle = false
	cfg.Audit.Enabled = false

	engine, err := notevault.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(memory.New()).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	accounts := make([]account, *users)
	for i := range accounts {
		email := fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.Signup(ctx, notevault.SignupRequest{Name: "Load", Email: email, Password: loadPassword}); err != nil {
			fmt.Fprintf(os.Stderr, "signup failed: %v\n", err)
			os.Exit(1)
		}
		res, err := engine.Login(ctx, email, loadPassword, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		accounts[i] = account{email: email, tokens: res.Tokens}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		a := &accounts[r.Intn(len(accounts))]
		_, err := engine.ValidateAccess(ctx, a.tokens.AccessToken)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		a := &accounts[r.Intn(len(accounts))]
		_, err := engine.Refresh(ctx, a.tokens.RefreshToken)
		return err
	})
	loginStats := runPhase(*loginOps, *concurrency, 104729, func(r *rand.Rand) error {
		a := &accounts[r.Intn(len(accounts))]
		_, err := engine.Login(ctx, a.email, loadPassword, "")
		return err
	})

	validateStats.name, refreshStats.name, loginStats.name = "validate", "refresh", "login"
	printResults(validateStats, refreshStats, loginStats)
}

// runPhase runs op ops times across concurrency workers. Each worker gets
// its own rand source seeded with seed.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg       sync.WaitGroup
		issued   atomic.Int64
		failures atomic.Int64
	)
	// Each worker records into its own slice; they are merged at the end.
	perWorker := make([][]time.Duration, concurrency)

	start := time.Now()
	for w := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*seed))
			for issued.Add(1) <= int64(ops) {
				t0 := time.Now()
				if err := op(r); err != nil {
					failures.Add(1)
				}
				perWorker[w] = append(perWorker[w], time.Since(t0))
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), slices.Concat(perWorker...), failures.Load())
}

type phaseStats struct {
	name     string
	elapsed  time.Duration
	samples  []time.Duration
	failures int64
}

func computeStats(elapsed time.Duration, samples []time.Duration, failures int64) phaseStats {
	slices.Sort(samples)
	return phaseStats{elapsed: elapsed, samples: samples, failures: failures}
}

// quantile returns the q-th quantile of the sorted samples.
func (s phaseStats) quantile(q float64) time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	return s.samples[int(float64(len(s.samples)-1)*q)]
}

func (s phaseStats) throughput() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(len(s.samples)) / s.elapsed.Seconds()
}

func printResults(phases ...phaseStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "phase\tops\tfailures\telapsed\tops/sec\tp50\tp95\tp99\t")
	for _, s := range phases {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%.0f\t%s\t%s\t%s\t\n",
			s.name,
			len(s.samples),
			s.failures,
			s.elapsed.Round(time.Millisecond),
			s.throughput(),
			s.quantile(0.50).Round(time.Microsecond),
			s.quantile(0.95).Round(time.Microsecond),
			s.quantile(0.99).Round(time.Microsecond),
		)
	}
	_ = w.Flush()
}
