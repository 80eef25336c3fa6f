package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/bitesync/internal/model"
)

// chatFailureMessage はチャット中継失敗時にクライアントへ返す固定メッセージ。
const chatFailureMessage = "There was an error processing your request"

// ChatRelayer はチャット中継のインターフェース。
type ChatRelayer interface {
	RelayChat(ctx context.Context, transcript []model.ChatMessage) (*model.ChatMessage, error)
}

// ChatHandler はチャット中継のHTTPハンドラー。
// レスポンスは統一エラーフォーマットではなく {response} / {error} 形式を使う。
type ChatHandler struct {
	relay ChatRelayer
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(relay ChatRelayer) *ChatHandler {
	return &ChatHandler{relay: relay}
}

type chatRequest struct {
	Messages []model.ChatMessage `json:"messages"`
}

type chatResponse struct {
	Response *model.ChatMessage `json:"response,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Chat は会話履歴をLLMに中継し、アシスタントの返信を返す。
// POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "invalid request body"})
		return
	}

	reply, err := h.relay.RelayChat(r.Context(), req.Messages)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidation {
			writeJSON(w, http.StatusBadRequest, chatResponse{Error: apiErr.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, chatResponse{Error: chatFailureMessage})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}
