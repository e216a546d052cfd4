package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_CORSMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		corsOrigin     string
		method         string
		expectedStatus int
		shouldCallNext bool
	}{
		{"GET request with CORS headers", "*", http.MethodGet, http.StatusOK, true},
		{"POST request with specific origin", "https://example.com", http.MethodPost, http.StatusOK, true},
		{"OPTIONS request (preflight)", "*", http.MethodOptions, http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{corsOrigin: tt.corsOrigin}
			called := false
			handler := server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(tt.method, "/detect", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.shouldCallNext, called)
			assert.Equal(t, tt.corsOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
			assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
		})
	}
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestSetupRoutes(t *testing.T) {
	server := newTestServer(t)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "pocrop_http_requests_total")
}
