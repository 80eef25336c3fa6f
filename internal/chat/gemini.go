package chat

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hitoshi/bitesync/internal/model"
)

// DefaultGeminiModel はGemini利用時の既定モデル。
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient はGemini APIを呼び出すCompleter。
// システムメッセージはSystemInstructionとして渡し、
// assistantロールはGeminiのmodelロールに変換する。
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient はGeminiClientを生成する。
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Complete はGenerateContentを呼び出し、応答のテキストを返す。
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*model.ChatMessage, error) {
	system, contents := toGeminiContents(req.Messages)
	if len(contents) == 0 {
		return nil, errors.New("no user or assistant messages to send")
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New("gemini returned no text")
	}
	return &model.ChatMessage{Role: model.ChatRoleAssistant, Content: text}, nil
}

// toGeminiContents はメッセージ列をシステム指示と会話内容に分ける。
func toGeminiContents(messages []model.ChatMessage) (string, []*genai.Content) {
	var system string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.ChatRoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case model.ChatRoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return system, contents
}

// compile-time interface check
var _ Completer = (*GeminiClient)(nil)
