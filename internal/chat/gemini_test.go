package chat

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/hitoshi/bitesync/internal/model"
)

// TestToGeminiContents はシステム指示の分離とロールの変換を検証する。
func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]model.ChatMessage{
		{Role: model.ChatRoleSystem, Content: SystemPrompt},
		{Role: model.ChatRoleUser, Content: "hi"},
		{Role: model.ChatRoleAssistant, Content: "hello"},
		{Role: model.ChatRoleUser, Content: "plan"},
	})

	if system != SystemPrompt {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	wantRoles := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Errorf("contents[%d].Role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
	if contents[1].Parts[0].Text != "hello" {
		t.Errorf("contents[1] text = %q, want hello", contents[1].Parts[0].Text)
	}
}

// TestNewGeminiClient_RequiresKey はAPIキーが必須であることを検証する。
func TestNewGeminiClient_RequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), ""); err == nil {
		t.Error("expected error for empty API key")
	}
}
