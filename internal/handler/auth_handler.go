// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/bitesync/internal/auth"
	"github.com/hitoshi/bitesync/internal/dashboard"
	"github.com/hitoshi/bitesync/internal/middleware"
	"github.com/hitoshi/bitesync/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password string, meta auth.SignUpMetadata) (*model.Account, error)
	SignIn(ctx context.Context, email, password string, lc auth.LoginContext) (*auth.SignInResult, error)
	CurrentSession(ctx context.Context, token string) (*model.Session, error)
	SignOut(ctx context.Context, token string) error
}

// DashboardLoader はサインイン直後のビューを読み込むインターフェース。
// 読み込みの過程でプロフィールが照合される。
type DashboardLoader interface {
	Load(ctx context.Context, identity model.Identity) (*dashboard.View, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はサインアップ・サインイン関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	dashboard DashboardLoader
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, dashboard DashboardLoader, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		dashboard: dashboard,
		config:    config,
	}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionResponse struct {
	User      userResponse    `json:"user"`
	ExpiresAt time.Time       `json:"expires_at"`
	Token     string          `json:"token,omitempty"`
	Dashboard *dashboard.View `json:"dashboard,omitempty"`
}

// SignUp はアカウントを作成する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.SignUp(r.Context(), req.Email, req.Password, auth.SignUpMetadata{FullName: req.FullName})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":        account.ID,
		"email":     account.Email,
		"full_name": account.FullName,
	})
}

// SignIn はサインインしてセッションCookieを設定する。
// POST /auth/signin
//
// サインイン後にダッシュボードを読み込み、プロフィールを照合する。
// 照合に失敗してもサインイン自体は成功として扱い、dashboardを省略する。
// 次回のGET /api/meで再度照合される。
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.SignIn(r.Context(), req.Email, req.Password, auth.LoginContext{
		IP:            clientIP(r),
		UserAgent:     r.UserAgent(),
		PreviousToken: middleware.TokenFromRequest(r),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token, h.config.SessionMaxAge)

	resp := sessionResponse{
		User:      userResponse{ID: result.Session.UserID, Email: result.Session.Email},
		ExpiresAt: result.Session.ExpiresAt,
		Token:     result.Token,
	}
	if h.dashboard != nil {
		view, err := h.dashboard.Load(r.Context(), result.Session.Identity())
		if err != nil {
			slog.Warn("dashboard load after sign-in failed",
				slog.String("user_id", result.Session.UserID),
				slog.String("error", err.Error()),
			)
		} else {
			resp.Dashboard = view
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SignOut はセッションを破棄する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		if err := h.service.SignOut(r.Context(), token); err != nil {
			slog.Error("failed to sign out", slog.String("error", err.Error()))
			// 失敗してもCookieはクリアする
		}
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Session は現在のセッションを返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CurrentSession(r.Context(), middleware.TokenFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if session == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		User:      userResponse{ID: session.UserID, Email: session.Email},
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	setSessionCookie(w, h.config, value, maxAge)
}

// setSessionCookie はセッションCookieを設定する。maxAgeが負の場合はCookieを削除する。
func setSessionCookie(w http.ResponseWriter, config AuthHandlerConfig, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientIP はリクエスト元のIPアドレスを返す。
// X-Forwarded-Forがあれば先頭の値を使う。
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
