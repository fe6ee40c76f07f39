package models

import "encoding/json"

// Event types emitted by the conversational backend, one JSON object per line.
const (
	EventPlan       = "plan"
	EventToolResult = "tool_result"
	EventFinal      = "final"
	EventError      = "error"
)

type StreamEvent struct {
	Type string          `json:"type"`
	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
