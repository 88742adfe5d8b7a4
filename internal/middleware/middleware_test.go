package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/auth"
	"carpool/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	userID string
	role   string
	err    error
}

func (s stubVerifier) Verify(string) (*auth.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &auth.Claims{UserID: s.userID, Role: s.role}, nil
}

func echoUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   stubVerifier
		wantStatus int
		wantUser   string
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer  ", wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer t", verifier: stubVerifier{err: auth.ErrTokenExpired}, wantStatus: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer t", verifier: stubVerifier{err: auth.ErrInvalidToken}, wantStatus: http.StatusUnauthorized},
		{name: "valid", header: "Bearer t", verifier: stubVerifier{userID: "user-1"}, wantStatus: http.StatusOK, wantUser: "user-1"},
		{name: "lowercase scheme", header: "bearer t", verifier: stubVerifier{userID: "user-2"}, wantStatus: http.StatusOK, wantUser: "user-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/me", AuthMiddleware(tt.verifier), echoUser)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantUser, body["user_id"])
			} else {
				assert.Equal(t, false, body["success"])
				assert.NotEmpty(t, body["message"])
			}
		})
	}
}

func TestAuthMiddleware_RealToken(t *testing.T) {
	verifier, err := auth.NewVerifier("secret")
	require.NoError(t, err)
	token, err := auth.GenerateToken("user-9", auth.RoleUser, "secret", auth.AccessTokenTTL)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", AuthMiddleware(verifier), echoUser)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-9")
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		verifier   stubVerifier
		wantStatus int
	}{
		{name: "admin allowed", verifier: stubVerifier{userID: "ops-1", role: auth.RoleAdmin}, wantStatus: http.StatusOK},
		{name: "user forbidden", verifier: stubVerifier{userID: "user-1", role: auth.RoleUser}, wantStatus: http.StatusForbidden},
		{name: "no role forbidden", verifier: stubVerifier{userID: "user-1"}, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/admin", AuthMiddleware(tt.verifier), RequireRole(auth.RoleAdmin), echoUser)

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer t")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireRole_WithoutAuthentication(t *testing.T) {
	router := gin.New()
	router.GET("/admin", RequireRole(auth.RoleAdmin), echoUser)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestLoggingMiddleware_RequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestLoggingMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/rides/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/rides/:id", "200")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rides/abc", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func newIdempotentRouter(t *testing.T, calls *int, status int) (*gin.Engine, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(UserIDKey, "user-1")
		c.Next()
	})
	router.Use(IdempotencyMiddleware(client))
	router.POST("/rides", func(c *gin.Context) {
		*calls++
		c.Data(status, "application/json", []byte(`{"ok":true}`))
	})
	return router, mock
}

func postRide(router *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rides", nil)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const rideCacheKey = "idempotency:user-1:POST:/rides:key-1"

func createdRideResponse(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(cachedResponse{
		StatusCode: http.StatusCreated,
		Body:       json.RawMessage(`{"ok":true}`),
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
	})
	require.NoError(t, err)
	return data
}

func TestIdempotencyMiddleware_StoresFirstResponse(t *testing.T) {
	var calls int
	router, mock := newIdempotentRouter(t, &calls, http.StatusCreated)

	mock.ExpectSetNX(rideCacheKey, idempotencyPending, idempotencyPendingTTL).SetVal(true)
	mock.ExpectSet(rideCacheKey, createdRideResponse(t), idempotencyTTL).SetVal("OK")

	w := postRide(router, "key-1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyMiddleware_ReplaysCachedResponse(t *testing.T) {
	var calls int
	router, mock := newIdempotentRouter(t, &calls, http.StatusCreated)

	mock.ExpectSetNX(rideCacheKey, idempotencyPending, idempotencyPendingTTL).SetVal(false)
	mock.ExpectGet(rideCacheKey).SetVal(string(createdRideResponse(t)))

	w := postRide(router, "key-1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
	assert.Zero(t, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyMiddleware_RepeatWhileInFlight(t *testing.T) {
	var calls int
	router, mock := newIdempotentRouter(t, &calls, http.StatusCreated)

	mock.ExpectSetNX(rideCacheKey, idempotencyPending, idempotencyPendingTTL).SetVal(false)
	mock.ExpectGet(rideCacheKey).SetVal(idempotencyPending)

	w := postRide(router, "key-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Zero(t, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyMiddleware_ServerErrorReleasesKey(t *testing.T) {
	var calls int
	router, mock := newIdempotentRouter(t, &calls, http.StatusInternalServerError)

	mock.ExpectSetNX(rideCacheKey, idempotencyPending, idempotencyPendingTTL).SetVal(true)
	mock.ExpectDel(rideCacheKey).SetVal(1)

	w := postRide(router, "key-1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyMiddleware_RedisDownPassesThrough(t *testing.T) {
	var calls int
	router, mock := newIdempotentRouter(t, &calls, http.StatusCreated)

	mock.ExpectSetNX(rideCacheKey, idempotencyPending, idempotencyPendingTTL).SetErr(errors.New("connection refused"))

	w := postRide(router, "key-1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyMiddleware_NoKey(t *testing.T) {
	var calls int
	router, mock := newIdempotentRouter(t, &calls, http.StatusCreated)

	w := postRide(router, "")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyCacheKey(t *testing.T) {
	assert.Equal(t, "idempotency:anonymous:POST:/v1/users/register:k", idempotencyCacheKey("", "POST", "/v1/users/register", "k"))
	assert.NotEqual(t,
		idempotencyCacheKey("user-1", "POST", "/v1/rides", "k"),
		idempotencyCacheKey("user-2", "POST", "/v1/rides", "k"))
}
