package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

var jwtConfig = config.JWTConfig{Secret: "secret", Issuer: "servicelink-identity", ExpirationMinutes: 30}

func verifier(t *testing.T, cfg config.JWTConfig) *Verifier {
	t.Helper()
	v, err := NewVerifier(cfg)
	require.NoError(t, err)
	return v
}

func TestMintThenVerify(t *testing.T) {
	who := Identity{UserID: uuid.New(), Email: " thandi@example.com ", Role: enums.UserRoleProvider}
	token, err := Mint(jwtConfig, time.Now(), who)
	require.NoError(t, err)

	got, err := verifier(t, jwtConfig).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, who.UserID, got.UserID)
	assert.Equal(t, "thandi@example.com", got.Email)
	assert.Equal(t, enums.UserRoleProvider, got.Role)

	var claims Claims
	_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	require.NoError(t, err)
	assert.Equal(t, who.UserID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt.Time, 2*time.Second)
}

func TestVerifyRejects(t *testing.T) {
	customer := Identity{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	valid, err := Mint(jwtConfig, time.Now(), customer)
	require.NoError(t, err)
	expired, err := Mint(jwtConfig, time.Now().Add(-time.Hour), customer)
	require.NoError(t, err)
	otherIssuer := jwtConfig
	otherIssuer.Issuer = "someone-else"
	foreign, err := Mint(otherIssuer, time.Now(), customer)
	require.NoError(t, err)
	otherSecret := jwtConfig
	otherSecret.Secret = "other"
	forged, err := Mint(otherSecret, time.Now(), customer)
	require.NoError(t, err)

	v := verifier(t, jwtConfig)
	for name, token := range map[string]string{
		"tampered":     valid + "x",
		"expired":      expired,
		"other issuer": foreign,
		"other secret": forged,
		"garbage":      "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.Error(t, err)
		})
	}
}

func TestVerifyToleratesSkewWithinLeeway(t *testing.T) {
	cfg := jwtConfig
	cfg.ExpirationMinutes = 1
	token, err := Mint(cfg, time.Now().Add(-70*time.Second), Identity{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	_, err = verifier(t, cfg).Verify(token)
	assert.Error(t, err)

	cfg.Leeway = time.Minute
	_, err = verifier(t, cfg).Verify(token)
	assert.NoError(t, err)
}

func TestVerifyRequiresUser(t *testing.T) {
	claims := Claims{
		Role: enums.UserRoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jwtConfig.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtConfig.Secret))
	require.NoError(t, err)

	_, err = verifier(t, jwtConfig).Verify(token)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestMintValidatesInput(t *testing.T) {
	_, err := Mint(jwtConfig, time.Now(), Identity{UserID: uuid.New()})
	assert.Error(t, err, "role")
	_, err = Mint(jwtConfig, time.Now(), Identity{Role: enums.UserRoleCustomer})
	assert.ErrorIs(t, err, ErrMissingSubject)
	_, err = Mint(config.JWTConfig{Issuer: "x"}, time.Now(), Identity{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = NewVerifier(config.JWTConfig{})
	assert.ErrorIs(t, err, ErrNoSecret)
}
