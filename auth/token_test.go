package auth

import (
	"chat-gateway/errors"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var (
	testSecret   = []byte("a_test_secret_that_is_long_enough_2026")
	testIssuer   = "https://issuer.example.com/"
	testAudience = "chat-gateway"
)

func TestJWTValidator_Verify(t *testing.T) {
	validator := NewJWTValidator(testIssuer, testAudience, WithSecret(testSecret))

	tests := []struct {
		name    string
		token   func() string
		wantErr error
	}{
		{"Valid token", func() string {
			return mustToken(t, testSecret, testIssuer, []string{testAudience}, "alice", time.Hour)
		}, nil},
		{"Valid token with several audiences", func() string {
			return mustToken(t, testSecret, testIssuer, []string{"other", testAudience}, "alice", time.Hour)
		}, nil},
		{"Expired token", func() string {
			return mustToken(t, testSecret, testIssuer, []string{testAudience}, "alice", -time.Minute)
		}, errors.ErrExpired},
		{"Audience mismatch", func() string {
			return mustToken(t, testSecret, testIssuer, []string{"chat-gateway-staging"}, "alice", time.Hour)
		}, errors.ErrAudienceMismatch},
		{"Audience prefix is not a match", func() string {
			return mustToken(t, testSecret, testIssuer, []string{testAudience + "x"}, "alice", time.Hour)
		}, errors.ErrAudienceMismatch},
		{"Wrong signature", func() string {
			return mustToken(t, []byte("another_secret_another_secret_2026"), testIssuer, []string{testAudience}, "alice", time.Hour)
		}, errors.ErrInvalidToken},
		{"Wrong issuer", func() string {
			return mustToken(t, testSecret, "https://evil.example.com/", []string{testAudience}, "alice", time.Hour)
		}, errors.ErrInvalidToken},
		{"Missing subject", func() string {
			return mustToken(t, testSecret, testIssuer, []string{testAudience}, "", time.Hour)
		}, errors.ErrInvalidToken},
		{"Garbage", func() string { return "not-a-jwt" }, errors.ErrInvalidToken},
		{"Empty", func() string { return "  " }, errors.ErrMissingCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			identity, err := validator.Verify(context.Background(), tt.token())
			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				return
			}
			req.NoError(err)
			req.Equal("alice", string(identity.Subject))
			req.True(identity.HasAuthority("user"))
			req.False(identity.ExpiresAt.IsZero())
		})
	}
}

func TestJWTValidator_RS256(t *testing.T) {
	req := require.New(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	req.NoError(err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	req.NoError(err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	opt, err := WithPublicKeyPEM("key-1", pemBytes)
	req.NoError(err)
	validator := NewJWTValidator(testIssuer, testAudience, opt)

	claims := CustomClaims{
		Scope: "read:messages write:messages",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|bob",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(key)
	req.NoError(err)

	identity, err := validator.Verify(context.Background(), signed)
	req.NoError(err)
	req.Equal("auth0|bob", string(identity.Subject))
	req.True(identity.HasAuthority("write:messages"))

	// Given an HS256 token while only RSA keys are configured
	hs := mustToken(t, testSecret, testIssuer, []string{testAudience}, "bob", time.Hour)
	_, err = validator.Verify(context.Background(), hs)
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func mustToken(t *testing.T, secret []byte, issuer string, audience []string, subject string, d time.Duration) string {
	t.Helper()
	token, err := GenerateToken(secret, issuer, audience, subject, []string{"user"}, d)
	require.NoError(t, err)
	return token
}
