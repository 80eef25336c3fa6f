// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bitesync/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey = contextKey("user_id")
	emailContextKey  = contextKey("email")
)

// SessionResolver はトークンから現在のセッションを解決する。
// 無効なトークンや失効済みのセッションにはnil, nilを返す。
type SessionResolver interface {
	CurrentSession(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionMiddleware はAuthorizationヘッダーのBearerトークン、
// またはHTTP Only Cookieのセッショントークンを検証するミドルウェアを返す。
// 認証済みのユーザーIDとメールアドレスをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := resolver.CurrentSession(r.Context(), token)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			annotateUserID(r.Context(), session.UserID)
			ctx := ContextWithIdentity(r.Context(), session.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest はリクエストからセッショントークンを取り出す。
// Bearerトークンが指定されていればCookieより優先する。
func TokenFromRequest(r *http.Request) string {
	if token, ok := bearerToken(r); ok {
		return token
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(bearerPrefix):]), true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// IdentityFromContext はリクエストコンテキストから認証済みのIdentityを取得する。
func IdentityFromContext(ctx context.Context) (model.Identity, error) {
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		return model.Identity{}, err
	}
	email, _ := ctx.Value(emailContextKey).(string)
	return model.Identity{ID: userID, Email: email}, nil
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, id model.Identity) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey, id.ID)
	return context.WithValue(ctx, emailContextKey, id.Email)
}
