package models

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one entry in the chat widget's message list.
type ChatMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"` // "user" | "assistant" | "system"
	Content string `json:"content"`
}

// ChatPayload is the body POSTed to the proxy route and forwarded verbatim to the backend.
type ChatPayload struct {
	SessionID string                     `json:"session_id"`
	Message   string                     `json:"message"`
	Location  *string                    `json:"location,omitempty"`
	Meta      map[string]json.RawMessage `json:"meta,omitempty"`
}

// TranscriptEntry is a persisted chat line for one session.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type MessagesResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []TranscriptEntry `json:"messages"`
}
