package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewIssuer_RejectsShortSecret(t *testing.T) {
	_, err := NewIssuer(Config{Secret: "short"}, nil)
	assert.Error(t, err)
}

func TestIssueVerify(t *testing.T) {
	iss, err := NewIssuer(Config{Secret: testSecret}, nil)
	require.NoError(t, err)

	uid := NewUserID()
	tok, err := iss.Issue(uid, "game-1")
	require.NoError(t, err)

	id, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, uid, id.UserID)
	assert.Equal(t, "game-1", id.GameID)
}

func TestVerify_Failures(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	iss, err := NewIssuer(Config{Secret: testSecret, TTL: time.Hour}, clock)
	require.NoError(t, err)
	tok, err := iss.Issue("u1", "g1")
	require.NoError(t, err)

	other, err := NewIssuer(Config{Secret: testSecret + "x"}, clock)
	require.NoError(t, err)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "different secret")

	later, err := NewIssuer(Config{Secret: testSecret}, func() time.Time { return now.Add(2 * time.Hour) })
	require.NoError(t, err)
	_, err = later.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	foreign, err := NewIssuer(Config{Secret: testSecret, Issuer: "someone-else"}, clock)
	require.NoError(t, err)
	_, err = foreign.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "issuer mismatch")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = iss.Verify("  ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	iss, err := NewIssuer(Config{Secret: testSecret}, nil)
	require.NoError(t, err)
	tok, err := iss.Issue("u1", "g1")
	require.NoError(t, err)

	h := iss.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserID(r.Context())))
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		code   int
		body   string
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, "/", http.StatusOK, "u1"},
		{"query", func(r *http.Request) {}, "/?token=" + tok, http.StatusOK, "u1"},
		{"missing", func(r *http.Request) {}, "/", http.StatusUnauthorized, ""},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+tok) }, "/", http.StatusUnauthorized, ""},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "/", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), "error")
			}
		})
	}
}
