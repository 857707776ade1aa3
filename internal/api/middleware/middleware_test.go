package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetClient(r.Context())))
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{"alpha", "beta"})(http.HandlerFunc(ok))

	tests := []struct {
		name   string
		header string
		value  string
		status int
		client string
	}{
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"wrong key", "X-API-Key", "gamma", http.StatusUnauthorized, ""},
		{"header key", "X-API-Key", "beta", http.StatusOK, "key-2"},
		{"bearer key", "Authorization", "Bearer alpha", http.StatusOK, "key-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.client, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"kind":"unauthorized"`)
			}
		})
	}
}

func TestAPIKeyAuthDisabledWithoutKeys(t *testing.T) {
	h := APIKeyAuth(nil)(http.HandlerFunc(ok))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetRequestID(r.Context())))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-1", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

type observed struct {
	route  string
	method string
	status int
}

type recorder struct{ calls []observed }

func (r *recorder) ObserveRequest(route, method string, status int, _ time.Duration) {
	r.calls = append(r.calls, observed{route, method, status})
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	obs := &recorder{}
	r := chi.NewRouter()
	r.Use(Metrics(obs))
	r.Get("/payments/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/123", nil))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, observed{"/payments/{id}", http.MethodGet, http.StatusTeapot}, obs.calls[0])
}

func TestRecoverReturnsJSON(t *testing.T) {
	h := Recover(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error","kind":"internal"}`, rec.Body.String())
}
