package customer

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters"

func sign(t *testing.T, key string, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := New(Config{Secret: secret}, nil)
	require.NoError(t, err)
	require.NotNil(t, v)
	return v
}

func TestNewWithoutConfig(t *testing.T) {
	v, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = v.Subject("anything")
	assert.ErrorIs(t, err, ErrNoVerifier)

	r := httptest.NewRequest("POST", "/api/bookings", nil)
	r.Header.Set("Authorization", "Bearer whatever")
	sub, err := v.FromRequest(r)
	assert.NoError(t, err)
	assert.Empty(t, sub)
	v.Close()
}

func TestSubject(t *testing.T) {
	v := newVerifier(t)
	tok := sign(t, secret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "5f0c1c9e-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	sub, err := v.Subject(tok)
	require.NoError(t, err)
	assert.Equal(t, "5f0c1c9e-user", sub)
}

func TestSubjectRejects(t *testing.T) {
	v := newVerifier(t)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name string
		tok  string
	}{
		{"garbage", "not.a.jwt"},
		{"wrong key", sign(t, "another-secret-another-secret-xx", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u", ExpiresAt: future})},
		{"expired", sign(t, secret, jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})},
		{"missing subject", sign(t, secret, jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: future})},
		{"other algorithm", sign(t, secret, jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "u", ExpiresAt: future})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Subject(tt.tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestFromRequest(t *testing.T) {
	v := newVerifier(t)
	tok := sign(t, secret, jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-9"})

	r := httptest.NewRequest("POST", "/api/bookings", nil)
	sub, err := v.FromRequest(r)
	assert.NoError(t, err)
	assert.Empty(t, sub)

	r.Header.Set("Authorization", "bearer "+tok)
	sub, err = v.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "user-9", sub)

	r.Header.Set("Authorization", "Bearer broken")
	_, err = v.FromRequest(r)
	assert.ErrorIs(t, err, ErrInvalidToken)

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	sub, err = v.FromRequest(r)
	assert.NoError(t, err)
	assert.Empty(t, sub)
}
