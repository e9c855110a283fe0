package mw

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lockstats/internal/config"
	"lockstats/internal/security"
	rds "lockstats/internal/stores/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

const (
	testAud = "lockstats-api"
	testIss = "auth.lockstats"
)

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *rds.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &rds.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

// newTestVerifier writes the public half of a fresh key pair and loads a verifier from it
func newTestVerifier(t *testing.T, scope string) (*security.RS256Verifier, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := security.NewRS256Verifier(&config.JWTConfig{
		Enabled:       true,
		PublicKeyPath: path,
		Audience:      testAud,
		Issuer:        testIss,
		Scope:         scope,
		Leeway:        10 * time.Second,
	})
	require.NoError(t, err)

	return v, key
}

func createTestToken(t *testing.T, key *rsa.PrivateKey, sub, scope string, expiry time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := &security.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{testAud},
			Issuer:    testIss,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scope: scope,
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}
