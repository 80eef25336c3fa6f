package model

// チャットメッセージのロール。
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage は会話の1メッセージを表す。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
