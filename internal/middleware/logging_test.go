package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestRequestLogger(t *testing.T) {
	logger, buf := newBufferLogger()

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	}))

	req := httptest.NewRequest("GET", "/api/items/9", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"level=WARN", "method=GET", "path=/api/items/9", "status=404", "bytes=7", "remote=192.0.2.1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "user_id=") {
		t.Errorf("anonymous request logged a user: %q", out)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusConflict, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}
	for _, tt := range tests {
		logger, buf := newBufferLogger()
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		if !strings.Contains(buf.String(), tt.level) {
			t.Errorf("status %d: log %q missing %q", tt.status, buf.String(), tt.level)
		}
	}
}

func TestRequestIDGenerated(t *testing.T) {
	logger, buf := newBufferLogger()

	var seen string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	id := rec.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("response request ID %q is not a UUID: %v", id, err)
	}
	if seen != id {
		t.Errorf("context request ID = %q, want %q", seen, id)
	}
	if !strings.Contains(buf.String(), "request_id="+id) {
		t.Errorf("log %q missing request ID", buf.String())
	}
}

func TestRequestIDFromClient(t *testing.T) {
	logger, _ := newBufferLogger()
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "trace-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "trace-abc" {
		t.Errorf("request ID = %q, want trace-abc", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); len(got) > maxRequestIDLength {
		t.Errorf("oversized client ID was kept: %q", got)
	}
}

func TestRequestLoggerRecordsUser(t *testing.T) {
	a, tokens, users := setupAuthMiddlewareDB(t)
	id := createMiddlewareUser(t, users, "logged@example.com", false)
	token, err := tokens.Issue(id)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	logger, buf := newBufferLogger()
	handler := RequestLogger(logger)(RequireAuth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest("GET", "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "user_id=") {
		t.Errorf("log %q missing user_id", buf.String())
	}
}
