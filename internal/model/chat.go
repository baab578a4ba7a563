package model

import "time"

// ChatMessage is one user/assistant exchange in a chat session.
//
// History writes are best-effort: a failed insert is logged and swallowed,
// never failing the chat request itself. The table is therefore advisory —
// the chat endpoint works even when history is unavailable.
type ChatMessage struct {
	ID          string    `json:"id"          db:"id"`
	SessionID   string    `json:"sessionId"   db:"session_id"`
	UserMessage string    `json:"userMessage" db:"user_message"`
	BotResponse string    `json:"botResponse" db:"bot_response"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}
