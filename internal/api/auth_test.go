package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campushub/chatcore/internal/config"
	"github.com/campushub/chatcore/internal/database"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func TestCreateSessionToken(t *testing.T) {
	tokenString, err := CreateSessionToken(testSigningKey, 7, time.Hour)
	assert.NoError(t, err, "expected token to be created")
	assert.NotEmpty(t, tokenString, "expected non-empty token")

	app := newTestApp(t, &database.MockChatRepository{}, &config.Config{SigningKey: testSigningKey})
	userId, err := app.extractUserIdFromToken(tokenString)
	assert.NoError(t, err, "expected token to parse")
	assert.Equal(t, 7, userId, "expected user id claim to round-trip")
}

func Test_extractUserIdFromToken(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{}, &config.Config{SigningKey: testSigningKey})

	t.Run("rejects expired token", func(t *testing.T) {
		tokenString, err := CreateSessionToken(testSigningKey, 7, -time.Hour)
		assert.NoError(t, err, "expected token to be created")

		_, err = app.extractUserIdFromToken(tokenString)
		assert.Error(t, err, "expected expired token to be rejected")
	})

	t.Run("rejects token signed with a different key", func(t *testing.T) {
		tokenString, err := CreateSessionToken([]byte("another-key-another-key-another!"), 7, time.Hour)
		assert.NoError(t, err, "expected token to be created")

		_, err = app.extractUserIdFromToken(tokenString)
		assert.Error(t, err, "expected forged token to be rejected")
	})

	t.Run("rejects unexpected signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			userIdClaim: 7,
			expClaim:    time.Now().Add(time.Hour).Unix(),
		})
		tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		assert.NoError(t, err, "expected token to be created")

		_, err = app.extractUserIdFromToken(tokenString)
		assert.Error(t, err, "expected unsigned token to be rejected")
	})

	t.Run("rejects token missing user id claim", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			expClaim: time.Now().Add(time.Hour).Unix(),
		})
		tokenString, err := token.SignedString(testSigningKey)
		assert.NoError(t, err, "expected token to be created")

		_, err = app.extractUserIdFromToken(tokenString)
		assert.Error(t, err, "expected token without user id to be rejected")
	})
}

func Test_authMiddleware(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{}, &config.Config{SigningKey: testSigningKey})

	protected := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		assert.True(t, ok, "expected user id in request context")
		assert.Equal(t, 7, userId, "expected authenticated user id")
		w.WriteHeader(http.StatusOK)
	})

	t.Run("passes valid credential", func(t *testing.T) {
		tokenString, err := CreateSessionToken(testSigningKey, 7, time.Hour)
		assert.NoError(t, err, "expected token to be created")

		req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tokenString})

		rr := httptest.NewRecorder()
		protected(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected request to pass through")
		assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store", "expected cache headers on authenticated response")
	})

	t.Run("rejects missing cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)

		rr := httptest.NewRecorder()
		protected(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 status code")
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "not-a-token"})

		rr := httptest.NewRecorder()
		protected(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 status code")
	})
}
