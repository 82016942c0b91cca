// Package redisidp is an identity service backed by Redis.
//
// Accounts are hashes at <prefix>:acct:<credential id> holding the Argon2id
// PHC hash of the credential token and the user id. A successful login binds
// the local user slot by writing <prefix>:session:<user index> = user id with
// a TTL; while that key exists further logins for the slot complete with
// "Already logged in". Failed logins are counted per credential id and,
// past the configured budget, complete with "TooManyAttempts".
package redisidp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/loginbridge"
	"github.com/MrEthical07/loginbridge/internal/rate"
	"github.com/MrEthical07/loginbridge/internal/tokenhash"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Completion error texts published by the service.
const (
	ErrTextAlreadyLoggedIn    = loginbridge.AlreadyLoggedInError
	ErrTextInvalidCredentials = "InvalidCredentials"
	ErrTextTooManyAttempts    = "TooManyAttempts"
	ErrTextUnavailable        = "BackendUnavailable"
)

// ErrRedisUnavailable is returned synchronously when no client is configured.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	lookupStatusAccount int64 = 0
	lookupStatusBound   int64 = 1
	lookupStatusNoAcct  int64 = 2
)

// KEYS[1] session key, KEYS[2] account hash.
// Returns {1, uid} when the slot is bound, {2} for an unknown account and
// {0, token hash, uid} otherwise.
const lookupScript = `
local bound = redis.call("GET", KEYS[1])
if bound then
  return {1, bound}
end
local acct = redis.call("HMGET", KEYS[2], "token_hash", "user_id")
if not acct[1] then
  return {2}
end
return {0, acct[1], acct[2] or ""}
`

var lookupLua = redis.NewScript(lookupScript)

// Config tunes key layout, session lifetimes and the failure budget.
type Config struct {
	Prefix               string
	SessionTTL           time.Duration
	PersistentSessionTTL time.Duration
	OperationTimeout     time.Duration
	// PersistentTypes lists credential types that get PersistentSessionTTL.
	PersistentTypes []string

	// MaxFailedLogins failures per credential id within FailureWindow
	// block further attempts until the window ends. Zero disables it.
	MaxFailedLogins int
	FailureWindow   time.Duration

	Hash tokenhash.Config
}

func DefaultConfig() Config {
	return Config{
		Prefix:               "lb",
		SessionTTL:           12 * time.Hour,
		PersistentSessionTTL: 30 * 24 * time.Hour,
		OperationTimeout:     2 * time.Second,
		PersistentTypes: []string{
			string(loginbridge.MethodPersistentWeb),
			string(loginbridge.MethodPersistentAuth),
			"persistweblogin",
		},
		MaxFailedLogins: 5,
		FailureWindow:   15 * time.Minute,
		Hash:            tokenhash.DefaultConfig(),
	}
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service implements loginbridge.IdentityService.
type Service struct {
	redis      redis.UniversalClient
	cfg        Config
	hasher     *tokenhash.Hasher
	limiter    *rate.Limiter
	persistent map[string]struct{}
	logger     *zap.Logger
	stream     loginbridge.CompletionStream
	wg         sync.WaitGroup
}

// New returns a Service. A zero Config.Hash selects tokenhash.DefaultConfig.
func New(client redis.UniversalClient, cfg Config, opts ...Option) (*Service, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "lb"
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 2 * time.Second
	}
	if cfg.Hash == (tokenhash.Config{}) {
		cfg.Hash = tokenhash.DefaultConfig()
	}

	hasher, err := tokenhash.New(cfg.Hash)
	if err != nil {
		return nil, fmt.Errorf("redisidp: %w", err)
	}

	persistent := make(map[string]struct{}, len(cfg.PersistentTypes))
	for _, t := range cfg.PersistentTypes {
		persistent[t] = struct{}{}
	}

	s := &Service{
		redis:  client,
		cfg:    cfg,
		hasher: hasher,
		limiter: rate.New(client, cfg.Prefix, rate.Config{
			MaxFailures: cfg.MaxFailedLogins,
			Window:      cfg.FailureWindow,
		}),
		persistent: persistent,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.Named("redisidp")
	return s, nil
}

// PutAccount stores (or replaces) the account for credential id.
func (s *Service) PutAccount(ctx context.Context, id, token, userID string) error {
	if s.redis == nil {
		return ErrRedisUnavailable
	}
	hash, err := s.hasher.Hash(token)
	if err != nil {
		return err
	}
	return s.redis.HSet(ctx, s.accountKey(id),
		"token_hash", hash,
		"user_id", userID,
	).Err()
}

// Logout unbinds the local user slot.
func (s *Service) Logout(ctx context.Context, userIndex int) error {
	if s.redis == nil {
		return ErrRedisUnavailable
	}
	return s.redis.Del(ctx, s.sessionKey(userIndex)).Err()
}

// Login verifies creds on a background goroutine and publishes the result.
// The attempt outlives ctx cancellation; only ctx values are kept.
func (s *Service) Login(ctx context.Context, userIndex int, creds loginbridge.Credentials) error {
	if s.redis == nil {
		return ErrRedisUnavailable
	}

	base := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.stream.Publish(s.verify(base, userIndex, creds))
	}()
	return nil
}

func (s *Service) verify(ctx context.Context, userIndex int, creds loginbridge.Credentials) loginbridge.Completion {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	log := s.logger.With(zap.Int("user_index", userIndex), zap.String("credential_type", creds.Type))
	done := loginbridge.Completion{UserIndex: userIndex}

	if err := s.limiter.Check(ctx, creds.ID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			log.Warn("login blocked by failure budget")
			done.Error = ErrTextTooManyAttempts
		} else {
			log.Warn("failure budget lookup failed", zap.Error(err))
			done.Error = ErrTextUnavailable
		}
		return done
	}

	res, err := lookupLua.Run(ctx, s.redis, []string{s.sessionKey(userIndex), s.accountKey(creds.ID)}).Slice()
	if err != nil {
		log.Warn("account lookup failed", zap.Error(err))
		done.Error = ErrTextUnavailable
		return done
	}
	status, fields, err := parseLookup(res)
	if err != nil {
		log.Warn("unexpected lookup reply", zap.Error(err))
		done.Error = ErrTextUnavailable
		return done
	}

	switch status {
	case lookupStatusBound:
		done.UserID = fields[0]
		done.Error = ErrTextAlreadyLoggedIn
		return done
	case lookupStatusNoAcct:
		return s.reject(ctx, log, creds, done)
	}

	hash, uid := fields[0], fields[1]
	ok, err := s.hasher.Verify(creds.Token, hash)
	if err != nil && !errors.Is(err, tokenhash.ErrEmptyToken) && !errors.Is(err, tokenhash.ErrTokenTooLong) {
		log.Error("stored token hash unreadable", zap.Error(err))
	}
	if !ok {
		return s.reject(ctx, log, creds, done)
	}

	bound, err := s.redis.SetNX(ctx, s.sessionKey(userIndex), uid, s.sessionTTL(creds.Type)).Result()
	if err != nil {
		log.Warn("session bind failed", zap.Error(err))
		done.Error = ErrTextUnavailable
		return done
	}
	if !bound {
		// Another login bound the slot between lookup and bind.
		done.UserID = s.UserID(userIndex)
		done.Error = ErrTextAlreadyLoggedIn
		return done
	}

	if err := s.limiter.Reset(ctx, creds.ID); err != nil {
		log.Warn("failure budget reset failed", zap.Error(err))
	}
	s.upgradeHash(ctx, log, creds, hash)

	done.Success = true
	done.UserID = uid
	return done
}

func (s *Service) reject(ctx context.Context, log *zap.Logger, creds loginbridge.Credentials, done loginbridge.Completion) loginbridge.Completion {
	done.Error = ErrTextInvalidCredentials
	if err := s.limiter.RecordFailure(ctx, creds.ID); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		log.Warn("failure budget update failed", zap.Error(err))
	}
	return done
}

// upgradeHash rewrites a hash produced with weaker parameters.
func (s *Service) upgradeHash(ctx context.Context, log *zap.Logger, creds loginbridge.Credentials, hash string) {
	need, err := s.hasher.NeedsRehash(hash)
	if err != nil || !need {
		return
	}
	fresh, err := s.hasher.Hash(creds.Token)
	if err != nil {
		return
	}
	if err := s.redis.HSet(ctx, s.accountKey(creds.ID), "token_hash", fresh).Err(); err != nil {
		log.Warn("token rehash failed", zap.Error(err))
	}
}

func (s *Service) sessionTTL(credType string) time.Duration {
	if _, ok := s.persistent[credType]; ok {
		return s.cfg.PersistentSessionTTL
	}
	return s.cfg.SessionTTL
}

func (s *Service) OnLoginComplete(handler loginbridge.CompletionHandler) loginbridge.Subscription {
	return s.stream.Subscribe(handler)
}

// UserID returns the user bound to the slot, or "" if none or on error.
func (s *Service) UserID(userIndex int) string {
	if s.redis == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	uid, err := s.redis.Get(ctx, s.sessionKey(userIndex)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("user id lookup failed", zap.Int("user_index", userIndex), zap.Error(err))
		}
		return ""
	}
	return uid
}

// Wait blocks until every in-flight verification has published.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) accountKey(id string) string {
	return s.cfg.Prefix + ":acct:" + id
}

func (s *Service) sessionKey(userIndex int) string {
	return s.cfg.Prefix + ":session:" + strconv.Itoa(userIndex)
}

func parseLookup(res []interface{}) (int64, []string, error) {
	if len(res) == 0 {
		return 0, nil, errors.New("empty reply")
	}
	status, ok := res[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("status type %T", res[0])
	}

	fields := make([]string, 0, len(res)-1)
	for _, v := range res[1:] {
		str, _ := v.(string)
		fields = append(fields, str)
	}

	switch status {
	case lookupStatusBound:
		if len(fields) != 1 {
			return 0, nil, fmt.Errorf("bound reply length %d", len(res))
		}
	case lookupStatusAccount:
		if len(fields) != 2 {
			return 0, nil, fmt.Errorf("account reply length %d", len(res))
		}
	case lookupStatusNoAcct:
	default:
		return 0, nil, fmt.Errorf("unknown status %d", status)
	}
	return status, fields, nil
}
