// Package bootstrap wires a Coordinator, its Facade, the configured identity
// backend and the audit sink from configfile settings. It is shared by the
// loginbridge CLI and the HTTP example.
package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/loginbridge"
	"github.com/MrEthical07/loginbridge/auditsink/kafkasink"
	"github.com/MrEthical07/loginbridge/configfile"
	"github.com/MrEthical07/loginbridge/identity/memory"
	"github.com/MrEthical07/loginbridge/identity/portal"
	"github.com/MrEthical07/loginbridge/identity/redisidp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Runtime owns everything Start created. Close releases it in reverse order.
type Runtime struct {
	Coordinator *loginbridge.Coordinator
	Facade      *loginbridge.Facade
	Service     loginbridge.IdentityService

	logger  *zap.Logger
	closers []func()
}

// Start builds and initializes the coordinator described by s.
//
// The redis backend uses s.Identity.RedisAddr, then REDIS_ADDR, and falls back
// to an embedded miniredis seeded with the configured credential pairs.
func Start(s *configfile.Settings, logger *zap.Logger) (*Runtime, error) {
	if s == nil {
		return nil, errors.New("bootstrap: nil settings")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{logger: logger}
	cfg := s.Config

	svc, err := rt.identityService(s, &cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	b := loginbridge.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithIdentityService(s.Backend.Name, svc)

	switch {
	case len(s.Kafka.Brokers) > 0:
		sink, err := kafkasink.NewSink(s.Kafka.Brokers, s.Kafka.Topic, kafkasink.WithLogger(logger))
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = sink.Close() })
		b = b.WithAuditSink(sink)
		if !s.Audit.Enabled {
			logger.Warn("kafka brokers configured but audit is disabled")
		}
	case s.Audit.Enabled:
		b = b.WithAuditSink(loginbridge.NewZapSink(logger))
	}

	c, err := b.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build coordinator: %w", err)
	}
	c.Initialize()
	rt.Coordinator = c
	rt.closers = append(rt.closers, c.Close)

	f := loginbridge.NewFacade(c)
	c.AttachFacade(f)
	rt.Facade = f
	rt.closers = append(rt.closers, f.Close)

	return rt, nil
}

func (rt *Runtime) identityService(s *configfile.Settings, cfg *loginbridge.Config) (loginbridge.IdentityService, error) {
	switch s.Identity.Kind {
	case configfile.KindMemory:
		return memory.New(memory.WithDefaultResult(memory.Result{
			Success: true,
			UserID:  s.Identity.UserID,
		})), nil
	case configfile.KindRedis:
		return rt.redisService(s)
	case configfile.KindPortal:
		return rt.portalService(s, cfg)
	default:
		return nil, fmt.Errorf("bootstrap: unknown identity kind %q", s.Identity.Kind)
	}
}

func (rt *Runtime) redisService(s *configfile.Settings) (loginbridge.IdentityService, error) {
	addr := s.Identity.RedisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	seed := false
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		rt.closers = append(rt.closers, mr.Close)
		addr = mr.Addr()
		seed = true
		rt.logger.Info("using embedded miniredis", zap.String("addr", addr))
	} else {
		rt.logger.Info("using redis", zap.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	rt.closers = append(rt.closers, func() { _ = client.Close() })

	cfg := redisidp.DefaultConfig()
	cfg.Prefix = s.Identity.Prefix
	if s.Identity.SessionTTL > 0 {
		cfg.SessionTTL = s.Identity.SessionTTL
	}
	cfg.MaxFailedLogins = s.Identity.MaxFailedLogins
	cfg.FailureWindow = s.Identity.FailureWindow
	svc, err := redisidp.New(client, cfg, redisidp.WithLogger(rt.logger))
	if err != nil {
		return nil, err
	}

	if seed {
		ctx := context.Background()
		for _, pair := range []loginbridge.CredentialPair{s.Credentials.Developer, s.Credentials.Portal} {
			if err := svc.PutAccount(ctx, pair.ID, pair.Token, s.Identity.UserID); err != nil {
				return nil, fmt.Errorf("seed account %s: %w", pair.ID, err)
			}
		}
	}
	return svc, nil
}

// portalService verifies HS256 portal tokens. Without a configured secret
// it signs with an ephemeral key and replaces the portal credential token
// with one minted for the portal credential id.
func (rt *Runtime) portalService(s *configfile.Settings, cfg *loginbridge.Config) (loginbridge.IdentityService, error) {
	p := s.Identity.Portal
	secret := []byte(p.Secret)
	ephemeral := len(secret) == 0
	if ephemeral {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate portal key: %w", err)
		}
	}

	v, err := portal.NewVerifier(portal.Config{
		SigningMethod: portal.MethodHS256,
		PrivateKey:    secret,
		Issuer:        p.Issuer,
		Audience:      p.Audience,
		TokenTTL:      p.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("portal verifier: %w", err)
	}

	if ephemeral {
		token, err := v.Mint(cfg.Credentials.Portal.ID, s.Identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("mint portal token: %w", err)
		}
		cfg.Credentials.Portal.Token = token
		rt.logger.Info("portal secret not configured, using ephemeral key",
			zap.String("account_id", cfg.Credentials.Portal.ID),
		)
	}

	return portal.NewService(v, portal.WithLogger(rt.logger)), nil
}

// LoginAndWait issues a login through the facade and blocks until its
// outcome is broadcast or ctx ends.
func (rt *Runtime) LoginAndWait(ctx context.Context, userIndex int, method loginbridge.LoginMethod) (loginbridge.LoginOutcome, error) {
	got := make(chan loginbridge.LoginOutcome, 1)
	issuedAt := time.Now()

	id := rt.Facade.SubscribeOutcome(func(out loginbridge.LoginOutcome) {
		// An earlier attempt may broadcast after this call started.
		if out.StartedAt.Before(issuedAt) || out.UserIndex != userIndex {
			return
		}
		select {
		case got <- out:
		default:
		}
	})
	defer rt.Facade.Unsubscribe(id)

	if err := rt.Facade.Login(ctx, userIndex, method); err != nil {
		return loginbridge.LoginOutcome{}, err
	}

	select {
	case out := <-got:
		return out, nil
	case <-ctx.Done():
		return loginbridge.LoginOutcome{}, ctx.Err()
	}
}

// Close releases resources in reverse creation order. It is idempotent.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
