package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gopay-be/internal/auth"
	"gopay-be/internal/utils"
)

var testSecret = []byte("test-secret")

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuth(t *testing.T) {
	t.Run("Missing Token", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := utils.GetUserIDFromContext(r.Context())
			assert.False(t, ok, "Context should not contain user ID")
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()

		AuthMiddleware(testSecret, zap.NewNop())(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		AuthMiddleware(testSecret, zap.NewNop())(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Valid Token", func(t *testing.T) {
		tokenString, err := auth.IssueToken(testSecret, "u-1", "admin@example.com", utils.RoleAdmin, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := utils.GetUserIDFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "u-1", userID)
			assert.Equal(t, utils.RoleAdmin, utils.GetUserRoleFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		})

		AuthMiddleware(testSecret, zap.NewNop())(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Expired Token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "u-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		tokenString, err := token.SignedString(testSecret)
		assert.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		AuthMiddleware(testSecret, zap.NewNop())(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Basic user:pass")
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := utils.GetUserIDFromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})

		AuthMiddleware(testSecret, zap.NewNop())(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(utils.RoleAdmin)(http.HandlerFunc(okHandler))

	t.Run("Anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/admin", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("WrongRole", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin", nil)
		req = req.WithContext(utils.SetUserContext(req.Context(), "u-2", "", "customer"))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Admin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin", nil)
		req = req.WithContext(utils.SetUserContext(req.Context(), "u-1", "", utils.RoleAdmin))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("StrictTier", func(t *testing.T) {
		l := NewRateLimiter("", "/webhook/")
		h := l.Middleware(http.HandlerFunc(okHandler))

		codes := map[int]int{}
		for i := 0; i < burstStrict+1; i++ {
			req := httptest.NewRequest("POST", "/webhook/gopay", nil)
			req.RemoteAddr = "192.0.2.1:1000"
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			codes[w.Code]++
		}
		assert.Equal(t, burstStrict, codes[http.StatusOK])
		assert.Equal(t, 1, codes[http.StatusTooManyRequests])

		// other callers have their own bucket
		req := httptest.NewRequest("POST", "/webhook/gopay", nil)
		req.RemoteAddr = "192.0.2.2:1000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("InternalTier", func(t *testing.T) {
		l := NewRateLimiter("svc-key", "/webhook/")
		limit, burst, tier := l.resolveRateTier(func() *http.Request {
			r := httptest.NewRequest("POST", "/webhook/gopay", nil)
			r.Header.Set("X-Service-Auth", "svc-key")
			return r
		}())
		assert.Equal(t, "internal", tier)
		assert.Equal(t, limitInternal, limit)
		assert.Equal(t, burstInternal, burst)

		_, _, tier = l.resolveRateTier(func() *http.Request {
			r := httptest.NewRequest("POST", "/webhook/gopay", nil)
			r.Header.Set("X-Service-Auth", "wrong")
			return r
		}())
		assert.Equal(t, "strict", tier)

		_, _, tier = l.resolveRateTier(httptest.NewRequest("GET", "/gateways", nil))
		assert.Equal(t, "general", tier)
	})

	t.Run("InternalRequestMarked", func(t *testing.T) {
		l := NewRateLimiter("svc-key")
		h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, utils.IsInternalRequest(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("X-Service-Auth", "svc-key")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Evict", func(t *testing.T) {
		l := NewRateLimiter("")
		now := time.Now()
		l.now = func() time.Time { return now }

		l.getVisitor("ip:1:general", limitGeneral, burstGeneral)
		now = now.Add(visitorTTL + time.Second)
		l.getVisitor("ip:2:general", limitGeneral, burstGeneral)

		l.evict()
		assert.Len(t, l.visitors, 1)
		assert.Contains(t, l.visitors, "ip:2:general")
	})
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Recovery(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "panic recovered", logs.All()[0].Message)
}
