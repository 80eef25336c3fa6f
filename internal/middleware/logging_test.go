package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// logOnce はhandlerをロギングミドルウェア越しに1回呼び、出力された1行を返す。
func logOnce(t *testing.T, req *http.Request, handler http.HandlerFunc) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	NewLoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		handler    http.HandlerFunc
		wantStatus float64
		wantLevel  string
		wantBytes  float64
	}{
		{
			name:       "明示的な201",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) },
			wantStatus: 201, wantLevel: "INFO",
		},
		{
			name:       "Writeのみは200",
			handler:    func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("hello")) },
			wantStatus: 200, wantLevel: "INFO", wantBytes: 5,
		},
		{
			name:       "4xxはWARN",
			userID:     "user-123",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantStatus: 404, wantLevel: "WARN",
		},
		{
			name:       "5xxはERROR",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantStatus: 502, wantLevel: "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tt.userID != "" {
				req = req.WithContext(context.WithValue(req.Context(), userIDContextKey, tt.userID))
			}
			entry := logOnce(t, req, tt.handler)

			if entry["msg"] != "http_request" || entry["method"] != "POST" || entry["path"] != "/api/chat" {
				t.Errorf("unexpected entry: %v", entry)
			}
			if entry["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %v", entry["status"], tt.wantStatus)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %v", entry["level"], tt.wantLevel)
			}
			if entry["bytes"] != tt.wantBytes {
				t.Errorf("bytes = %v, want %v", entry["bytes"], tt.wantBytes)
			}
			if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
				t.Errorf("duration_ms = %v, want >= 0", entry["duration_ms"])
			}
			if got, ok := entry["user_id"]; tt.userID == "" && ok {
				t.Errorf("user_id should be omitted, got %v", got)
			} else if tt.userID != "" && got != tt.userID {
				t.Errorf("user_id = %v, want %v", got, tt.userID)
			}
			if _, ok := entry["request_id"]; ok {
				t.Error("request_id should be omitted without chi RequestID")
			}
		})
	}
}

func TestLoggingMiddleware_InnerAnnotationWins(t *testing.T) {
	entry := logOnce(t, httptest.NewRequest(http.MethodGet, "/api/me", nil), func(w http.ResponseWriter, r *http.Request) {
		annotateUserID(r.Context(), "user-inner")
		w.WriteHeader(http.StatusOK)
	})
	if entry["user_id"] != "user-inner" {
		t.Errorf("user_id = %v, want user-inner", entry["user_id"])
	}
}

func TestLoggingMiddleware_RequestIDAndRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(NewLoggingMiddleware(logger))
	r.Get("/api/projects/{projectID}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/p-1", nil)
	req.Header.Set("X-Request-Id", "req-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	if entry["request_id"] != "req-abc" {
		t.Errorf("request_id = %v, want req-abc", entry["request_id"])
	}
	if entry["route"] != "/api/projects/{projectID}" {
		t.Errorf("route = %v, want /api/projects/{projectID}", entry["route"])
	}
	if entry["bytes"] != float64(5) {
		t.Errorf("bytes = %v, want 5", entry["bytes"])
	}
	if got := w.Header().Get("X-Request-Id"); got != "req-abc" {
		t.Errorf("X-Request-Id header = %q, want req-abc", got)
	}
}

func TestLoggingMiddleware_ProbeLoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Errorf("healthy probe should not be logged at info level: %s", buf.String())
	}
}

func TestRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/me", 200, slog.LevelInfo},
		{"/api/me", 404, slog.LevelWarn},
		{"/api/me", 503, slog.LevelError},
		{"/health", 200, slog.LevelDebug},
		{"/metrics", 200, slog.LevelDebug},
		{"/health", 500, slog.LevelError},
	}
	for _, tt := range tests {
		if got := requestLogLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("requestLogLevel(%q, %d) = %v, want %v", tt.path, tt.status, got, tt.want)
		}
	}
}

func TestLoggingMiddleware_NilLoggerUsesDefault(t *testing.T) {
	handler := NewLoggingMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
