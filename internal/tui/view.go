package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tabletalk-web/internal/models"
)

type styles struct {
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	system    lipgloss.Style
	status    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		user: lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		assistant: lipgloss.NewStyle().
			Foreground(lipgloss.Color("235")).
			Background(lipgloss.Color("254")).
			Padding(0, 1),
		system: lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Italic(true),
		status: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.title.Render("TableTalk"))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.status.Render(m.statusLine()))
	return b.String()
}

func (m *Model) statusLine() string {
	if m.Streaming() {
		return "streaming… esc to stop · ctrl+c to quit"
	}
	return "session " + m.sessionID + " · enter to send · ctrl+c to quit"
}

// renderMessages lays out user messages right-aligned and everything else
// left-aligned, keeping line breaks in content.
func (m *Model) renderMessages() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	bubbleWidth := max(width*3/4, 20)

	rows := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		switch msg.Role {
		case models.RoleUser:
			b := bubble(m.styles.user, msg.Content, bubbleWidth)
			rows = append(rows, lipgloss.PlaceHorizontal(width, lipgloss.Right, b))
		case models.RoleSystem:
			rows = append(rows, m.styles.system.MaxWidth(width).Render(msg.Content))
		default:
			rows = append(rows, bubble(m.styles.assistant, msg.Content, bubbleWidth))
		}
	}
	return strings.Join(rows, "\n")
}

// bubble wraps content at limit columns and otherwise fits it snugly.
func bubble(style lipgloss.Style, content string, limit int) string {
	w := lipgloss.Width(content) + style.GetHorizontalFrameSize()
	return style.Width(min(w, limit)).Render(content)
}
