// Command loginbridge runs logins through a Coordinator and its Facade and
// prints every broadcast outcome.
//
//	loginbridge -config loginbridge.yaml -user 0 -method web -logins 3
//
// With identity.kind=redis and no address (flag, config or REDIS_ADDR) an
// embedded miniredis is started and seeded with the configured credentials.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/MrEthical07/loginbridge"
	"github.com/MrEthical07/loginbridge/configfile"
	"github.com/MrEthical07/loginbridge/internal/bootstrap"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file; env LOGINBRIDGE_* overrides it")
		userIndex  = flag.Int("user", 0, "local user index")
		method     = flag.String("method", string(loginbridge.MethodDefault), "login method")
		logins     = flag.Int("logins", 1, "number of sequential logins")
		backend    = flag.String("backend", "", "identity backend: memory, redis or portal (overrides config)")
		redisAddr  = flag.String("redis-addr", "", "redis address; if empty, config, REDIS_ADDR or miniredis is used")
		wait       = flag.Duration("wait", 10*time.Second, "max wait per login outcome")
	)
	flag.Parse()

	if *logins <= 0 || *userIndex < 0 {
		fmt.Fprintln(os.Stderr, "logins must be > 0 and user must be >= 0")
		os.Exit(2)
	}

	settings, err := configfile.Load(*configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	if *backend != "" {
		settings.Identity.Kind = *backend
	}
	if *redisAddr != "" {
		settings.Identity.RedisAddr = *redisAddr
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid settings: %v\n", err)
		os.Exit(2)
	}

	logger, err := settings.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := bootstrap.Start(settings, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	defer rt.Close()

	rt.Facade.Subscribe(loginbridge.ObserverFunc(func(success bool, message string) {
		fmt.Printf("outcome: success=%t message=%q\n", success, message)
	}))

	latencies := make([]time.Duration, 0, *logins)
	failures := 0
	start := time.Now()
	for i := 0; i < *logins; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), *wait)
		out, err := rt.LoginAndWait(ctx, *userIndex, loginbridge.LoginMethod(*method))
		cancel()

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("no outcome before deadline", zap.Duration("wait", *wait))
			failures++
			rt.Coordinator.Cancel()
			continue
		case err != nil:
			logger.Error("login rejected", zap.Error(err))
			failures++
			continue
		}

		if !out.Success {
			failures++
		}
		latencies = append(latencies, out.Duration())
	}

	printStats(computeStats(time.Since(start), latencies, failures))
	if failures > 0 {
		os.Exit(1)
	}
}

type runStats struct {
	total    time.Duration
	logins   int
	failures int
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

func computeStats(total time.Duration, samples []time.Duration, failures int) runStats {
	if len(samples) == 0 {
		return runStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return runStats{
		total:    total,
		logins:   len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
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

func printStats(s runStats) {
	fmt.Printf("logins=%d failures=%d total=%s p50=%s p95=%s p99=%s\n",
		s.logins,
		s.failures,
		s.total.Round(time.Millisecond),
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
