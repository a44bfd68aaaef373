package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("user id not found in token")
)

// Verifier checks bearer tokens issued by the auth service and extracts the
// caller's user id.
type Verifier struct {
	alg    string
	pub    *rsa.PublicKey
	secret []byte
}

func NewRS256Verifier(pubPath string) (*Verifier, error) {
	b, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}
	return &Verifier{alg: jwt.SigningMethodRS256.Alg(), pub: pub}, nil
}

func NewHS256Verifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("empty hs256 secret")
	}
	return &Verifier{alg: jwt.SigningMethodHS256.Alg(), secret: []byte(secret)}, nil
}

// NewVerifier picks the key material for alg ("RS256" or "HS256").
func NewVerifier(alg, pubPath, secret string) (*Verifier, error) {
	switch strings.ToUpper(alg) {
	case "RS256":
		return NewRS256Verifier(pubPath)
	case "HS256":
		return NewHS256Verifier(secret)
	default:
		return nil, fmt.Errorf("unsupported jwt alg %q", alg)
	}
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.pub != nil {
			return v.pub, nil
		}
	case *jwt.SigningMethodHMAC:
		if v.secret != nil {
			return v.secret, nil
		}
	}
	return nil, errors.New("unexpected signing method")
}

// VerifyToken returns the user id carried by token.
func (v *Verifier) VerifyToken(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	t, err := jwt.Parse(token, v.keyFunc, jwt.WithValidMethods([]string{v.alg}), jwt.WithExpirationRequired())
	if err != nil || !t.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	for _, key := range []string{"user_id", "id", "sub"} {
		if s, ok := claims[key].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", ErrNoSubject
}

// BearerToken strips the "Bearer " scheme from an Authorization header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

type tokenKey struct{}

// WithToken stores the caller's raw token so outbound calls can forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}
