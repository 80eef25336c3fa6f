// Package chat はスケジューリングアシスタントとの会話をLLMへ中継する。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/bitesync/internal/metrics"
	"github.com/hitoshi/bitesync/internal/model"
)

// SystemPrompt は全ての会話の先頭に付与するアシスタントの指示。
const SystemPrompt = "You are a helpful scheduling assistant. You help users manage their time, " +
	"schedule tasks, and organize their projects effectively. Use the context provided about " +
	"their schedule, projects, and tasks to give relevant advice."

// 生成パラメータ
const (
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
	DefaultTimeout     = 30 * time.Second

	maxMessages       = 50
	maxMessageContent = 8000
)

// CompletionRequest はLLMへの1回の補完リクエストを表す。
// Messagesの先頭はシステムメッセージ。
type CompletionRequest struct {
	Model       string
	Messages    []model.ChatMessage
	Temperature float64
	MaxTokens   int
}

// Completer はLLMの補完APIを呼び出すインターフェース。
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*model.ChatMessage, error)
}

// Relay は会話の履歴にシステムメッセージを付与してLLMへ転送する。
// 履歴の保存は行わない。
type Relay struct {
	completer Completer
	model     string
	timeout   time.Duration
	metrics   metrics.MetricsCollector
}

// NewRelay はRelayを生成する。modelが空ならDefaultModel、
// timeoutが0以下ならDefaultTimeoutを使う。
func NewRelay(completer Completer, modelName string, timeout time.Duration, mc metrics.MetricsCollector) *Relay {
	if modelName == "" {
		modelName = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Relay{
		completer: completer,
		model:     modelName,
		timeout:   timeout,
		metrics:   mc,
	}
}

// RelayChat は会話の履歴を中継し、アシスタントの返信を返す。
//
// 呼び出し元の履歴は変更しない。LLM呼び出しの失敗は原因を問わず
// RelayFailureとして返し、原因はログにのみ記録する。再試行はしない。
func (r *Relay) RelayChat(ctx context.Context, transcript []model.ChatMessage) (*model.ChatMessage, error) {
	if err := validateTranscript(transcript); err != nil {
		return nil, err
	}

	messages := make([]model.ChatMessage, 0, len(transcript)+1)
	messages = append(messages, model.ChatMessage{Role: model.ChatRoleSystem, Content: SystemPrompt})
	messages = append(messages, transcript...)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	reply, err := r.completer.Complete(ctx, CompletionRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	})
	if err == nil && (reply == nil || strings.TrimSpace(reply.Content) == "") {
		err = fmt.Errorf("completion returned no content")
	}
	elapsed := time.Since(start)

	if err != nil {
		slog.Error("chat relay failed",
			slog.String("model", r.model),
			slog.Int("messages", len(transcript)),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.String("error", err.Error()),
		)
		r.metrics.RecordChatRelay(false, elapsed)
		return nil, model.NewRelayFailureError(err)
	}

	r.metrics.RecordChatRelay(true, elapsed)
	return &model.ChatMessage{Role: model.ChatRoleAssistant, Content: reply.Content}, nil
}

// validateTranscript は利用者から受け取った履歴を検証する。
// システムメッセージは受け付けない。
func validateTranscript(transcript []model.ChatMessage) error {
	if len(transcript) == 0 {
		return model.NewValidationError("messages must not be empty")
	}
	if len(transcript) > maxMessages {
		return model.NewValidationError(fmt.Sprintf("too many messages (max %d)", maxMessages))
	}
	for i, m := range transcript {
		if m.Role != model.ChatRoleUser && m.Role != model.ChatRoleAssistant {
			return model.NewValidationError(fmt.Sprintf("messages[%d].role must be user or assistant", i))
		}
		if strings.TrimSpace(m.Content) == "" {
			return model.NewValidationError(fmt.Sprintf("messages[%d].content must not be empty", i))
		}
		if len(m.Content) > maxMessageContent {
			return model.NewValidationError(fmt.Sprintf("messages[%d].content is too long", i))
		}
	}
	return nil
}
