package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/bitesync/internal/model"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		bearer     bool
		wantStatus int
		wantCalled bool
	}{
		{name: "GETは検証しない", method: http.MethodGet, wantStatus: http.StatusOK, wantCalled: true},
		{name: "HEADは検証しない", method: http.MethodHead, wantStatus: http.StatusOK, wantCalled: true},
		{name: "OPTIONSは検証しない", method: http.MethodOptions, wantStatus: http.StatusOK, wantCalled: true},
		{name: "Cookieなし", method: http.MethodPost, header: "tok", wantStatus: http.StatusForbidden},
		{name: "ヘッダーなし", method: http.MethodPost, cookie: "tok", wantStatus: http.StatusForbidden},
		{name: "不一致", method: http.MethodPut, cookie: "tok-a", header: "tok-b", wantStatus: http.StatusForbidden},
		{name: "POST一致", method: http.MethodPost, cookie: "tok", header: "tok", wantStatus: http.StatusOK, wantCalled: true},
		{name: "PUT一致", method: http.MethodPut, cookie: "tok", header: "tok", wantStatus: http.StatusOK, wantCalled: true},
		{name: "PATCHトークンなし", method: http.MethodPatch, wantStatus: http.StatusForbidden},
		{name: "DELETEトークンなし", method: http.MethodDelete, wantStatus: http.StatusForbidden},
		{name: "Bearer認証は対象外", method: http.MethodPost, bearer: true, wantStatus: http.StatusOK, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/projects", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			if tt.bearer {
				req.Header.Set("Authorization", "Bearer some-token")
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}

func TestCSRFMiddleware_ForbiddenUsesErrorFormat(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okNext)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	var body ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeCSRFInvalid {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFInvalid)
	}
}

func TestCSRFMiddleware_SafeRequestIssuesCookie(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{CookieDomain: "example.com", CookieSecure: true})(okNext)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	c := findCookie(w.Result(), csrfCookieName)
	if c == nil {
		t.Fatal("expected CSRF cookie to be set on GET request")
	}
	if len(c.Value) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(c.Value))
	}
	if c.HttpOnly {
		t.Error("CSRF cookie must be readable by the frontend")
	}
	if c.SameSite != http.SameSiteLaxMode || c.Path != "/" || !c.Secure {
		t.Errorf("unexpected cookie attributes: %+v", c)
	}
	if c.MaxAge != int(defaultCSRFTokenTTL.Seconds()) {
		t.Errorf("MaxAge = %d, want %d", c.MaxAge, int(defaultCSRFTokenTTL.Seconds()))
	}
}

func TestCSRFMiddleware_ExistingCookieNotReplaced(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okNext)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if c := findCookie(w.Result(), csrfCookieName); c != nil {
		t.Errorf("CSRF cookie should not be re-set, got %q", c.Value)
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	t.Run("新規発行", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(CSRFConfig{TokenTTL: time.Hour}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var body struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		c := findCookie(w.Result(), csrfCookieName)
		if c == nil || body.Token == "" || c.Value != body.Token {
			t.Fatalf("cookie and body token should match: cookie=%v body=%q", c, body.Token)
		}
		if c.MaxAge != 3600 {
			t.Errorf("MaxAge = %d, want 3600", c.MaxAge)
		}
	})

	t.Run("既存トークンを返す", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-csrf-token"})
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, req)

		var body struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Token != "existing-csrf-token" {
			t.Errorf("token = %q, want existing-csrf-token", body.Token)
		}
		if findCookie(w.Result(), csrfCookieName) != nil {
			t.Error("existing token should not be re-issued")
		}
	})
}
