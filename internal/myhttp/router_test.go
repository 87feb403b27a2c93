package myhttp_test

import (
	"bytes"
	"image-diff/internal/myhttp"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func newTestMux(t *testing.T, buffer *bytes.Buffer) interface {
	http.Handler
	HandleFuncWithMiddleware(pattern string, handler http.HandlerFunc)
} {
	t.Helper()

	histogram, err := noop.NewMeterProvider().Meter("test").Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		t.Fatalf("failed to create histogram: %v", err)
	}
	return myhttp.NewServerMux(slog.New(slog.NewJSONHandler(buffer, nil)), histogram)
}

func TestMiddleware(t *testing.T) {
	t.Run("ContextLogger", func(t *testing.T) {
		var buffer bytes.Buffer
		mux := newTestMux(t, &buffer)
		mux.HandleFuncWithMiddleware("GET /hello", func(w http.ResponseWriter, r *http.Request) {
			myhttp.Logger(r.Context()).Info("hello")
			_, _ = w.Write([]byte("ok"))
		})

		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/hello", nil))

		if recorder.Code != http.StatusOK || recorder.Body.String() != "ok" {
			t.Errorf("unexpected response: %d %s", recorder.Code, recorder.Body.String())
		}
		if !strings.Contains(buffer.String(), `"traceid"`) {
			t.Errorf("Expected trace id in log line, got %s", buffer.String())
		}
	})

	t.Run("RecoversPanic", func(t *testing.T) {
		var buffer bytes.Buffer
		mux := newTestMux(t, &buffer)
		mux.HandleFuncWithMiddleware("GET /panic", func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrNoLocation)
		})

		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/panic", nil))

		if recorder.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", recorder.Code)
		}
		if !strings.Contains(buffer.String(), http.ErrNoLocation.Error()) {
			t.Errorf("Expected panic value in log, got %s", buffer.String())
		}
	})

	t.Run("DefaultLoggerOutsideMiddleware", func(t *testing.T) {
		if myhttp.Logger(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != slog.Default() {
			t.Errorf("Expected default logger")
		}
	})
}
