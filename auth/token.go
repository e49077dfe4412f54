package auth

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"crypto/rsa"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
)

var _ contract.AuthValidator = (*JWTValidator)(nil)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	Roles []string `json:"roles,omitempty"`
	Scope string   `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator checks signature, expiry, issuer and audience of bearer tokens.
// HS256 tokens are verified with the shared secret, RS256 tokens with the
// issuer's published public keys, selected by the "kid" header when present.
type JWTValidator struct {
	secret     []byte
	publicKeys map[string]*rsa.PublicKey
	issuer     string
	audience   string
	leeway     time.Duration
	now        func() time.Time
}

type ValidatorOption func(*JWTValidator)

func WithSecret(secret []byte) ValidatorOption {
	return func(v *JWTValidator) { v.secret = secret }
}

// WithPublicKeyPEM registers an RSA public key under kid ("" is the default key).
func WithPublicKeyPEM(kid string, pem []byte) (ValidatorOption, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse public key %q: %w", kid, err)
	}
	return func(v *JWTValidator) { v.publicKeys[kid] = key }, nil
}

func WithLeeway(leeway time.Duration) ValidatorOption {
	return func(v *JWTValidator) { v.leeway = leeway }
}

func WithClock(now func() time.Time) ValidatorOption {
	return func(v *JWTValidator) { v.now = now }
}

func NewJWTValidator(issuer, audience string, opts ...ValidatorOption) *JWTValidator {
	v := &JWTValidator{
		publicKeys: make(map[string]*rsa.PublicKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses and validates a JWT string and maps it to an Identity.
func (v *JWTValidator) Verify(_ context.Context, tokenString string) (domain.Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return domain.Identity{}, errors.ErrMissingCredential
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(v.validMethods()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, parserOpts...)
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrExpired, err)
	case err != nil:
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	case !token.Valid:
		return domain.Identity{}, errors.ErrInvalidToken
	}

	// At least one audience value must exactly equal the expected one.
	if v.audience != "" && !lo.Contains(claims.Audience, v.audience) {
		return domain.Identity{}, fmt.Errorf("%w: expected %q, got %v",
			errors.ErrAudienceMismatch, v.audience, []string(claims.Audience))
	}

	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", errors.ErrInvalidToken)
	}

	return toIdentity(claims), nil
}

func (v *JWTValidator) validMethods() []string {
	var methods []string
	if len(v.secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if len(v.publicKeys) > 0 {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	return methods
}

func (v *JWTValidator) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		kid, _ := token.Header["kid"].(string)
		if key, ok := v.publicKeys[kid]; ok {
			return key, nil
		}
		if key, ok := v.publicKeys[""]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("unknown key id %q", kid)
	default:
		return nil, jwt.ErrTokenSignatureInvalid
	}
}

func toIdentity(claims *CustomClaims) domain.Identity {
	authorities := append([]string{}, claims.Roles...)
	if claims.Scope != "" {
		authorities = append(authorities, strings.Fields(claims.Scope)...)
	}
	raw := map[string]any{
		"sub": claims.Subject,
		"iss": claims.Issuer,
		"aud": []string(claims.Audience),
	}
	if len(claims.Roles) > 0 {
		raw["roles"] = claims.Roles
	}
	if claims.Scope != "" {
		raw["scope"] = claims.Scope
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return domain.Identity{
		Subject:     domain.UserID(claims.Subject),
		Authorities: lo.Uniq(authorities),
		Claims:      raw,
		ExpiresAt:   expiresAt,
	}
}

// GenerateToken creates a signed HS256 JWT. Used by the operator CLI and tests,
// production tokens come from the external identity provider.
func GenerateToken(secret []byte, issuer string, audience []string, subject string,
	roles []string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			Audience:  audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
