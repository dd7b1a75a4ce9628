// Package auth verifies and issues the bearer tokens that guard the API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"interpserve/logger"
)

var (
	ErrMissingToken     = errors.New("authorization header required")
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidIssuer    = errors.New("invalid issuer")
)

const Issuer = "interpserve"

// Claims carried by an API token.
type Claims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey      []byte
	ExpectedIssuer string
	ClockSkew      time.Duration
}

// Verify checks an HS256 token's signature and timestamps.
func Verify(tokenString string, config VerifyConfig) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	if len(config.SecretKey) == 0 {
		return nil, errors.New("no verification key provided")
	}

	tok, err := jwt.ParseSigned(tokenString, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}
	if err := tok.Claims(config.SecretKey, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	now := time.Now().Unix()
	skew := int64(config.ClockSkew.Seconds())

	if claims.ExpiresAt > 0 && claims.ExpiresAt < now-skew {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt > 0 && claims.IssuedAt > now+skew {
		return nil, ErrTokenNotYetValid
	}
	if config.ExpectedIssuer != "" && claims.Issuer != config.ExpectedIssuer {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'",
			ErrInvalidIssuer, config.ExpectedIssuer, claims.Issuer)
	}
	return claims, nil
}

// Sign issues an HS256 token for subject valid for ttl (no expiry when ttl is 0).
func Sign(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("signing secret is empty")
	}
	now := time.Now()
	claims := Claims{Issuer: Issuer, Subject: subject, IssuedAt: now.Unix()}
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}

// FromRequest extracts and verifies the bearer token of r.
func FromRequest(r *http.Request, config VerifyConfig) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return nil, fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken)
	}
	return Verify(token, config)
}

// ServerConfig is how the server checks its own tokens.
func ServerConfig(secret string) VerifyConfig {
	return VerifyConfig{
		SecretKey:      []byte(secret),
		ExpectedIssuer: Issuer,
		ClockSkew:      time.Minute,
	}
}

// Require wraps next with token verification. An empty secret disables it.
func Require(secret string, next http.Handler) http.Handler {
	if secret == "" {
		return next
	}
	config := ServerConfig(secret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := FromRequest(r, config)
		if err != nil {
			logger.Warnf("Rejected request to %s from %s: %v", r.URL.Path, r.RemoteAddr, err)
			http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}
		logger.Debugf("Authorized %s for %s", claims.Subject, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
