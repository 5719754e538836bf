package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

var (
	ErrMissingSubject = errors.New("token has no user id")
	ErrNoSecret       = errors.New("jwt secret is required")
)

var signingMethod = jwt.SigningMethodHS256

// Identity is the caller an access token speaks for.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
}

// Claims is the JWT body shared with the identity service.
type Claims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email,omitempty"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() (Identity, error) {
	if c.UserID == uuid.Nil {
		return Identity{}, ErrMissingSubject
	}
	if !c.Role.IsValid() {
		return Identity{}, fmt.Errorf("invalid user role %q", c.Role)
	}
	return Identity{UserID: c.UserID, Email: c.Email, Role: c.Role}, nil
}

// Verifier checks HS256 access tokens from one issuer.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
		),
	}, nil
}

// Verify returns the identity of a valid, unexpired token.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.key); err != nil {
		return Identity{}, err
	}
	return claims.identity()
}

func (v *Verifier) key(*jwt.Token) (any, error) { return v.secret, nil }

// Mint issues a token the way the identity service does. Local tooling and
// tests use it; the API itself never mints.
func Mint(cfg config.JWTConfig, now time.Time, who Identity) (string, error) {
	if cfg.Secret == "" {
		return "", ErrNoSecret
	}
	if cfg.Issuer == "" {
		return "", errors.New("jwt issuer is required")
	}
	claims := &Claims{UserID: who.UserID, Email: strings.TrimSpace(who.Email), Role: who.Role}
	if _, err := claims.identity(); err != nil {
		return "", err
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   who.UserID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiration())),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
