package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHS256Verify(t *testing.T) {
	v, err := NewVerifier("hs256", "", secret)
	require.NoError(t, err)

	id, err := v.VerifyToken(sign(t, jwt.MapClaims{"id": "u1", "exp": time.Now().Add(time.Hour).Unix()}))
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	id, err = v.VerifyToken(sign(t, jwt.MapClaims{"user_id": "u2", "sub": "other"}))
	require.NoError(t, err)
	assert.Equal(t, "u2", id)
}

func TestHS256Rejects(t *testing.T) {
	v, err := NewHS256Verifier(secret)
	require.NoError(t, err)

	_, err = v.VerifyToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = v.VerifyToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := sign(t, jwt.MapClaims{"id": "u1", "exp": time.Now().Add(-time.Minute).Unix()})
	_, err = v.VerifyToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1"}).SignedString([]byte("wrong"))
	require.NoError(t, err)
	_, err = v.VerifyToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.VerifyToken(sign(t, jwt.MapClaims{"name": "nobody"}))
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestTokenWithoutExpiryRejected(t *testing.T) {
	v, err := NewHS256Verifier(secret)
	require.NoError(t, err)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1"}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = v.VerifyToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRS256Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := NewVerifier("RS256", path, "")
	require.NoError(t, err)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "u9", "exp": time.Now().Add(time.Hour).Unix()}).SignedString(key)
	require.NoError(t, err)
	id, err := v.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u9", id)

	// an HMAC token must not pass an RSA verifier
	_, err = v.VerifyToken(sign(t, jwt.MapClaims{"id": "u1"}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifierUnsupported(t *testing.T) {
	_, err := NewVerifier("none", "", "")
	assert.Error(t, err)
	_, err = NewHS256Verifier("")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = BearerToken("bearer  xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer "} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestTokenContext(t *testing.T) {
	ctx := WithToken(context.Background(), "abc")
	assert.Equal(t, "abc", TokenFrom(ctx))
	assert.Empty(t, TokenFrom(context.Background()))
}
