package chatclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"tabletalk-web/internal/models"
)

// DecodeEvent parses one stream line. Lines that are not event objects
// return ok=false.
func DecodeEvent(line string) (models.StreamEvent, bool) {
	var ev models.StreamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
		return models.StreamEvent{}, false
	}
	return ev, true
}

// Pretty renders a stream line for humans. Unknown lines pass through as-is.
func Pretty(line string) string {
	ev, ok := DecodeEvent(line)
	if !ok {
		return line
	}

	data := dataText(ev.Data)
	switch ev.Type {
	case models.EventPlan:
		return "plan: " + data
	case models.EventToolResult:
		if ev.Name != "" {
			return fmt.Sprintf("%s: %s", ev.Name, data)
		}
		return "tool: " + data
	case models.EventFinal:
		return data
	case models.EventError:
		return "error: " + data
	default:
		return line
	}
}

func dataText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
