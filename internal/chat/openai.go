package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/hitoshi/bitesync/internal/model"
)

// DefaultOpenAIBaseURL はOpenAI APIの既定のベースURL。
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// maxResponseBody はレスポンスボディの最大読み込みサイズ。
const maxResponseBody = 1 << 20

// OpenAIClient はChat Completions APIを呼び出すCompleter。
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIClient はOpenAIClientを生成する。
// baseURLが空の場合はDefaultOpenAIBaseURLを使う。
func NewOpenAIClient(baseURL, apiKey string, httpClient *http.Client) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAIClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type openAIRequest struct {
	Model       string              `json:"model"`
	Messages    []model.ChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message model.ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete はChat Completions APIを呼び出し、最初の選択肢のメッセージを返す。
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*model.ChatMessage, error) {
	payload, err := sonic.Marshal(openAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	var out openAIResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode completion response (status %d): %w", res.StatusCode, err)
	}

	if out.Error != nil {
		return nil, fmt.Errorf("openai error (status %d, %s): %s", res.StatusCode, out.Error.Type, out.Error.Message)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status %d", res.StatusCode)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	msg := out.Choices[0].Message
	if msg.Role == "" {
		msg.Role = model.ChatRoleAssistant
	}
	return &msg, nil
}

// compile-time interface check
var _ Completer = (*OpenAIClient)(nil)
