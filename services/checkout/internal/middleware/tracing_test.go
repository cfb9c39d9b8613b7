package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/pkg/logger"
)

func TestRequestContext(t *testing.T) {
	tests := []struct {
		name      string
		headers   map[string]string
		wantTrace string
		wantCorr  string
	}{
		{name: "Генерирует ID"},
		{name: "Берёт X-Trace-ID", headers: map[string]string{HeaderTraceID: "trace-1"}, wantTrace: "trace-1"},
		{name: "X-Request-ID как trace_id", headers: map[string]string{HeaderRequestID: "req-1"}, wantTrace: "req-1"},
		{name: "Берёт correlation_id", headers: map[string]string{HeaderCorrelationID: "corr-1"}, wantCorr: "corr-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.Use(RequestContext())

			var ctxTrace, ctxCorr string
			r.GET("/test", func(c *gin.Context) {
				ctxTrace = logger.TraceIDFromContext(c.Request.Context())
				ctxCorr = logger.CorrelationIDFromContext(c.Request.Context())
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, ctxTrace, w.Header().Get(HeaderTraceID))
			assert.Equal(t, ctxCorr, w.Header().Get(HeaderCorrelationID))

			if tt.wantTrace != "" {
				assert.Equal(t, tt.wantTrace, ctxTrace)
			} else {
				_, err := uuid.Parse(ctxTrace)
				assert.NoError(t, err, "trace_id должен быть валидным UUID")
			}
			if tt.wantCorr != "" {
				assert.Equal(t, tt.wantCorr, ctxCorr)
			} else {
				assert.NotEmpty(t, ctxCorr)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, hsts := range []bool{false, true} {
		r := gin.New()
		r.Use(SecurityHeaders(hsts))
		r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.Equal(t, hsts, w.Header().Get("Strict-Transport-Security") != "")
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		method      string
		wantStatus  int
		wantAllowed string
	}{
		{name: "Разрешённый источник", origins: []string{"https://shop.example"}, origin: "https://shop.example", method: http.MethodGet, wantStatus: http.StatusOK, wantAllowed: "https://shop.example"},
		{name: "Чужой источник", origins: []string{"https://shop.example"}, origin: "https://evil.example", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "Wildcard", origins: []string{"*"}, origin: "https://any.example", method: http.MethodGet, wantStatus: http.StatusOK, wantAllowed: "*"},
		{name: "Preflight", origins: []string{"*"}, origin: "https://any.example", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantAllowed: "*"},
		{name: "Без Origin", origins: []string{"*"}, method: http.MethodGet, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.Use(CORS(DefaultCORSConfig(tt.origins)))
			r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowed, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), RequestContext())
	r.GET("/panic", func(c *gin.Context) {
		panic("nil map")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	require.NotPanics(t, func() { r.ServeHTTP(w, req) })

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
	assert.NotContains(t, w.Body.String(), "nil map")
}
