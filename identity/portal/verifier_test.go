package portal

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	v, err := NewVerifier(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	claims := Claims{AccountID: "acct", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := v.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestMintParseRoundTripEd25519(t *testing.T) {
	pub, priv := newEdKeys(t)
	v, err := NewVerifier(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "portal",
		Audience:      "game",
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := v.Mint("acct-1", "user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := v.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AccountID != "acct-1" || claims.Subject != "user-1" {
		t.Fatalf("unexpected claims: aid=%q sub=%q", claims.AccountID, claims.Subject)
	}
}

func TestParseEnforcesIssuerAndAudience(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	minter, err := NewVerifier(Config{SigningMethod: MethodHS256, PrivateKey: key, Issuer: "other", Audience: "game"})
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}
	v, err := NewVerifier(Config{SigningMethod: MethodHS256, PrivateKey: key, Issuer: "portal", Audience: "game"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := minter.Mint("acct", "u")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := v.Parse(token); !errors.Is(err, gjwt.ErrTokenInvalidIssuer) {
		t.Fatalf("expected invalid issuer, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	v, err := NewVerifier(Config{SigningMethod: MethodHS256, PrivateKey: key, TokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := v.Mint("acct", "u")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	v.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := v.Parse(token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestKeyIDRotation(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, _ := newEdKeys(t)

	minter, err := NewVerifier(Config{SigningMethod: MethodEd25519, PrivateKey: oldPriv, PublicKey: oldPub, KeyID: "k1"})
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}
	v, err := NewVerifier(Config{
		SigningMethod: MethodEd25519,
		VerifyKeys:    map[string][]byte{"k1": oldPub, "k2": newPub},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := minter.Mint("acct", "u")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := v.Parse(token); err != nil {
		t.Fatalf("expected token signed by rotated-out key to verify: %v", err)
	}
}

func TestNewVerifierValidation(t *testing.T) {
	cases := []Config{
		{SigningMethod: "rs256", PrivateKey: []byte("k")},
		{SigningMethod: MethodHS256},
		{SigningMethod: MethodEd25519},
		{SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
		{SigningMethod: MethodHS256, PrivateKey: []byte("k"), TokenTTL: -time.Second},
	}
	for i, cfg := range cases {
		if _, err := NewVerifier(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
}
