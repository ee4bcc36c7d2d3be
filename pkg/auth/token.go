package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

var (
	// ErrTokenExpired means the token verified but is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other rejection: bad signature, wrong
	// issuer or algorithm, malformed input, missing user id.
	ErrTokenInvalid = errors.New("token invalid")
)

func checkConfig(cfg config.JWTConfig) error {
	switch {
	case cfg.Secret.Empty():
		return fmt.Errorf("jwt secret is required")
	case cfg.Issuer == "":
		return fmt.Errorf("jwt issuer is required")
	}
	return nil
}

// Verifier checks shopper access tokens. Build one per process; it is safe
// for concurrent use.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	return &Verifier{
		key: []byte(cfg.Secret.Reveal()),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
		),
	}, nil
}

// Verify returns the claims of a valid token. Failures wrap ErrTokenExpired
// or ErrTokenInvalid.
func (v *Verifier) Verify(token string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case claims.UserID == uuid.Nil:
		return nil, fmt.Errorf("%w: no user id", ErrTokenInvalid)
	case claims.Subject != "" && claims.Subject != claims.UserID.String():
		return nil, fmt.Errorf("%w: subject does not match user id", ErrTokenInvalid)
	}
	return claims, nil
}

// ParseAccessToken is a one-shot Verify for callers without a Verifier.
func ParseAccessToken(cfg config.JWTConfig, token string) (*AccessTokenClaims, error) {
	v, err := NewVerifier(cfg)
	if err != nil {
		return nil, err
	}
	return v.Verify(token)
}

// MintAccessToken issues a signed JWT for payload. Production tokens come from
// the identity service; this serves the CLI and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	}
	if payload.UserID == uuid.Nil {
		return "", fmt.Errorf("user id is required")
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Email:  payload.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret.Reveal()))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
