package redisidp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/loginbridge"
	"github.com/MrEthical07/loginbridge/internal/tokenhash"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func fastHash() tokenhash.Config {
	return tokenhash.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newRedisServiceTest(t *testing.T, mutate ...func(*Config)) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := DefaultConfig()
	cfg.Prefix = "t"
	cfg.SessionTTL = time.Hour
	cfg.PersistentSessionTTL = 48 * time.Hour
	cfg.Hash = fastHash()
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := New(rdb, cfg)
	require.NoError(t, err)
	return svc, mr
}

func loginAndWait(t *testing.T, svc *Service, userIndex int, creds loginbridge.Credentials) loginbridge.Completion {
	t.Helper()
	got := make(chan loginbridge.Completion, 1)
	sub := svc.OnLoginComplete(func(c loginbridge.Completion) {
		got <- c
	})
	defer sub.Cancel()

	require.NoError(t, svc.Login(context.Background(), userIndex, creds))
	select {
	case c := <-got:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no completion published")
		return loginbridge.Completion{}
	}
}

func TestLoginBindsSessionWithTTL(t *testing.T) {
	svc, mr := newRedisServiceTest(t)
	ctx := context.Background()
	require.NoError(t, svc.PutAccount(ctx, "ACCOUNT_ID", "ACCOUNT_TOKEN", "user-42"))

	done := loginAndWait(t, svc, 0, loginbridge.Credentials{Type: "web", ID: "ACCOUNT_ID", Token: "ACCOUNT_TOKEN"})
	require.True(t, done.Success)
	require.Equal(t, "user-42", done.UserID)
	require.Empty(t, done.Error)

	require.Equal(t, "user-42", svc.UserID(0))
	require.Equal(t, time.Hour, mr.TTL("t:session:0"))
}

func TestPersistentTypeUsesLongerTTL(t *testing.T) {
	svc, mr := newRedisServiceTest(t)
	require.NoError(t, svc.PutAccount(context.Background(), "acct", "secret", "u-1"))

	done := loginAndWait(t, svc, 1, loginbridge.Credentials{Type: "persistent-web", ID: "acct", Token: "secret"})
	require.True(t, done.Success)
	require.Equal(t, 48*time.Hour, mr.TTL("t:session:1"))
}

func TestSecondLoginReportsAlreadyLoggedIn(t *testing.T) {
	svc, _ := newRedisServiceTest(t)
	require.NoError(t, svc.PutAccount(context.Background(), "acct", "secret", "u-1"))
	creds := loginbridge.Credentials{Type: "web", ID: "acct", Token: "secret"}

	first := loginAndWait(t, svc, 0, creds)
	require.True(t, first.Success)

	second := loginAndWait(t, svc, 0, creds)
	require.False(t, second.Success)
	require.Equal(t, ErrTextAlreadyLoggedIn, second.Error)
	require.Equal(t, "u-1", second.UserID)
}

func TestInvalidCredentials(t *testing.T) {
	svc, mr := newRedisServiceTest(t)
	require.NoError(t, svc.PutAccount(context.Background(), "acct", "secret", "u-1"))

	for _, creds := range []loginbridge.Credentials{
		{Type: "web", ID: "acct", Token: "wrong"},
		{Type: "web", ID: "missing", Token: "secret"},
	} {
		done := loginAndWait(t, svc, 3, creds)
		require.False(t, done.Success)
		require.Equal(t, ErrTextInvalidCredentials, done.Error)
	}
	require.False(t, mr.Exists("t:session:3"))
	require.Empty(t, svc.UserID(3))
}

func TestLogoutAllowsFreshLogin(t *testing.T) {
	svc, _ := newRedisServiceTest(t)
	ctx := context.Background()
	require.NoError(t, svc.PutAccount(ctx, "acct", "secret", "u-1"))
	creds := loginbridge.Credentials{Type: "web", ID: "acct", Token: "secret"}

	require.True(t, loginAndWait(t, svc, 0, creds).Success)
	require.NoError(t, svc.Logout(ctx, 0))
	require.Empty(t, svc.UserID(0))

	again := loginAndWait(t, svc, 0, creds)
	require.True(t, again.Success)
	require.Empty(t, again.Error)
}

func TestTokenIsStoredHashed(t *testing.T) {
	svc, mr := newRedisServiceTest(t)
	require.NoError(t, svc.PutAccount(context.Background(), "acct", "secret", "u-1"))

	stored := mr.HGet("t:acct:acct", "token_hash")
	require.NotContains(t, stored, "secret")
	require.True(t, strings.HasPrefix(stored, "$argon2id$"))
	require.Equal(t, "u-1", mr.HGet("t:acct:acct", "user_id"))
}

func TestWeakHashIsUpgradedOnLogin(t *testing.T) {
	svc, mr := newRedisServiceTest(t)
	require.NoError(t, svc.PutAccount(context.Background(), "acct", "secret", "u-1"))
	before := mr.HGet("t:acct:acct", "token_hash")

	cfg := svc.cfg
	cfg.Hash.Time = 2
	stronger, err := New(svc.redis, cfg)
	require.NoError(t, err)

	require.True(t, loginAndWait(t, stronger, 0, loginbridge.Credentials{Type: "web", ID: "acct", Token: "secret"}).Success)
	after := mr.HGet("t:acct:acct", "token_hash")
	require.NotEqual(t, before, after)
	require.Contains(t, after, ",t=2,")
}

func TestFailureBudgetBlocksFurtherAttempts(t *testing.T) {
	svc, mr := newRedisServiceTest(t, func(c *Config) {
		c.MaxFailedLogins = 2
		c.FailureWindow = time.Minute
	})
	require.NoError(t, svc.PutAccount(context.Background(), "acct", "secret", "u-1"))
	bad := loginbridge.Credentials{Type: "web", ID: "acct", Token: "wrong"}
	good := loginbridge.Credentials{Type: "web", ID: "acct", Token: "secret"}

	require.Equal(t, ErrTextInvalidCredentials, loginAndWait(t, svc, 0, bad).Error)
	require.Equal(t, ErrTextInvalidCredentials, loginAndWait(t, svc, 0, bad).Error)

	blocked := loginAndWait(t, svc, 0, good)
	require.False(t, blocked.Success)
	require.Equal(t, ErrTextTooManyAttempts, blocked.Error)

	mr.FastForward(2 * time.Minute)
	require.True(t, loginAndWait(t, svc, 0, good).Success)
	require.False(t, mr.Exists("t:fail:acct"))
}

func TestInvalidHashConfig(t *testing.T) {
	_, err := New(nil, Config{Hash: tokenhash.Config{Memory: 1}})
	require.Error(t, err)
}

func TestUnreachableRedisPublishesUnavailable(t *testing.T) {
	svc, mr := newRedisServiceTest(t)
	mr.Close()

	done := loginAndWait(t, svc, 0, loginbridge.Credentials{Type: "web", ID: "acct", Token: "secret"})
	require.False(t, done.Success)
	require.Equal(t, ErrTextUnavailable, done.Error)
}

func TestNilClient(t *testing.T) {
	svc, err := New(nil, Config{})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Login(context.Background(), 0, loginbridge.Credentials{}), ErrRedisUnavailable)
	require.ErrorIs(t, svc.PutAccount(context.Background(), "a", "b", "c"), ErrRedisUnavailable)
	require.Empty(t, svc.UserID(0))
}
