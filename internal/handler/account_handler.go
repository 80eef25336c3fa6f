package handler

import (
	"context"
	"net/http"
)

// AccountWithdrawer は退会処理のインターフェース。
type AccountWithdrawer interface {
	Withdraw(ctx context.Context, userID string) error
}

// AccountHandler はアカウント自体の操作を扱うHTTPハンドラー。
type AccountHandler struct {
	withdrawer AccountWithdrawer
	config     AuthHandlerConfig
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(withdrawer AccountWithdrawer, config AuthHandlerConfig) *AccountHandler {
	return &AccountHandler{withdrawer: withdrawer, config: config}
}

// Withdraw はログインユーザーのアカウントと全データを削除し、セッションCookieをクリアする。
// DELETE /api/me
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.withdrawer.Withdraw(r.Context(), identity.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	setSessionCookie(w, h.config, "", -1)
	w.WriteHeader(http.StatusNoContent)
}
