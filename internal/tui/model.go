// Package tui is the terminal chat widget.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"tabletalk-web/internal/chatclient"
	"tabletalk-web/internal/models"
)

const placeholder = "Ask for a restaurant recommendation…"

type lineMsg struct {
	streamID int
	line     string
}

type streamDoneMsg struct {
	streamID int
	err      error
}

// Model holds the message list, the input line and at most one in-flight
// request.
type Model struct {
	client    *chatclient.Client
	sessionID string
	pretty    bool

	messages []models.ChatMessage
	input    textinput.Model
	viewport viewport.Model
	styles   styles

	streamID int
	stream   chan tea.Msg
	cancel   context.CancelFunc

	width    int
	ready    bool
	quitting bool
}

func New(client *chatclient.Client, sessionID string, pretty bool) *Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "› "
	ti.CharLimit = 4000
	ti.Focus()

	return &Model{
		client:    client,
		sessionID: sessionID,
		pretty:    pretty,
		input:     ti,
		viewport:  viewport.New(80, 20),
		styles:    defaultStyles(),
		width:     80,
	}
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case lineMsg:
		if msg.streamID != m.streamID {
			return m, nil
		}
		m.appendMessage(models.RoleAssistant, m.render(msg.line))
		return m, m.waitForStream()

	case streamDoneMsg:
		if msg.streamID != m.streamID {
			return m, nil
		}
		m.finishStream()
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.appendMessage(models.RoleSystem, msg.err.Error())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.abort()
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		m.abort()
		return m, nil

	case tea.KeyEnter:
		return m, m.submit()

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input line, replacing any in-flight request.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}

	m.appendMessage(models.RoleUser, text)
	m.input.Reset()
	m.abort()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.streamID++
	m.stream = make(chan tea.Msg)

	payload := models.ChatPayload{SessionID: m.sessionID, Message: text}
	go pump(ctx, m.client, payload, m.streamID, m.stream)

	return m.waitForStream()
}

func (m *Model) waitForStream() tea.Cmd {
	ch := m.stream
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// abort cancels the in-flight request; messages it already produced stay.
func (m *Model) abort() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.finishStream()
	// late messages from the cancelled stream are dropped by id
	m.streamID++
}

func (m *Model) finishStream() {
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = nil
	m.stream = nil
}

// Streaming reports whether a request is in flight.
func (m *Model) Streaming() bool {
	return m.cancel != nil
}

func (m *Model) Messages() []models.ChatMessage {
	return append([]models.ChatMessage(nil), m.messages...)
}

func (m *Model) appendMessage(role, content string) {
	m.messages = append(m.messages, models.ChatMessage{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
	})
	m.refresh()
}

func (m *Model) render(line string) string {
	if m.pretty {
		return chatclient.Pretty(line)
	}
	return line
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func pump(ctx context.Context, client *chatclient.Client, payload models.ChatPayload, id int, out chan<- tea.Msg) {
	defer close(out)

	send := func(msg tea.Msg) bool {
		select {
		case out <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	stream, err := client.StreamChat(ctx, payload)
	if err != nil {
		send(streamDoneMsg{streamID: id, err: err})
		return
	}
	defer stream.Close()

	for stream.Next() {
		if !send(lineMsg{streamID: id, line: stream.Line()}) {
			return
		}
	}

	err = stream.Err()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	send(streamDoneMsg{streamID: id, err: err})
}
