package tui

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tabletalk-web/internal/chatclient"
	"tabletalk-web/internal/models"
)

func newTestModel(t *testing.T, handler http.HandlerFunc, pretty bool) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(chatclient.New(srv.URL), "sess-1", pretty)
}

// drain runs cmd and feeds the resulting messages back into the model until
// the chain ends.
func drain(m *Model, cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func roles(msgs []models.ChatMessage) string {
	parts := make([]string, len(msgs))
	for i, msg := range msgs {
		parts[i] = msg.Role + ":" + msg.Content
	}
	return strings.Join(parts, "|")
}

func TestSubmit_AppendsOneMessagePerLine(t *testing.T) {
	var body string
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		io.WriteString(w, "{\"type\":\"plan\"}\n\n{\"type\":\"final\"}\n")
	}, false)

	m.input.SetValue("  ramen near me  ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.input.Value() != "" {
		t.Errorf("expected input cleared, got %q", m.input.Value())
	}
	drain(m, cmd)

	want := `user:ramen near me|assistant:{"type":"plan"}|assistant:{"type":"final"}`
	if got := roles(m.Messages()); got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
	if m.Streaming() {
		t.Error("expected stream to be finished")
	}
	if !strings.Contains(body, `"session_id":"sess-1"`) || !strings.Contains(body, `"message":"ramen near me"`) {
		t.Errorf("unexpected request body %s", body)
	}
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	called := false
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) { called = true }, false)

	m.input.SetValue("   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if cmd != nil || len(m.Messages()) != 0 || called {
		t.Error("blank input must not send anything")
	}
}

func TestSubmit_PrettyRendering(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"type":"final","data":"Try the omakase."}`+"\n")
	}, true)

	m.input.SetValue("sushi")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	drain(m, cmd)

	msgs := m.Messages()
	if len(msgs) != 2 || msgs[1].Content != "Try the omakase." {
		t.Errorf("unexpected messages %s", roles(msgs))
	}
}

func TestSubmit_BackendFailureShowsSystemMessage(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, false)

	m.input.SetValue("hello")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	drain(m, cmd)

	msgs := m.Messages()
	if len(msgs) != 2 || msgs[1].Role != models.RoleSystem {
		t.Fatalf("expected a system message, got %s", roles(msgs))
	}
	if !strings.Contains(msgs[1].Content, "failed to stream chat") {
		t.Errorf("unexpected error text %q", msgs[1].Content)
	}
}

func TestEsc_AbortsInFlightRequest(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{\"type\":\"plan\"}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, false)

	m.input.SetValue("slow please")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	// first line arrives, then the user gives up
	_, cmd = m.Update(cmd())
	if !m.Streaming() {
		t.Fatal("expected stream in flight")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.Streaming() {
		t.Fatal("expected esc to abort the stream")
	}

	// anything the aborted stream still delivers is ignored
	if msg := cmd(); msg != nil {
		m.Update(msg)
	}
	want := `user:slow please|assistant:{"type":"plan"}`
	if got := roles(m.Messages()); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestSubmit_ReplacesInFlightRequest(t *testing.T) {
	firstCancelled := make(chan struct{})
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if strings.Contains(string(b), `"message":"second"`) {
			io.WriteString(w, "{\"type\":\"final\"}\n")
			return
		}
		io.WriteString(w, "{\"type\":\"plan\"}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(firstCancelled)
	}, false)

	m.input.SetValue("first")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	firstID := m.streamID
	_, firstCmd := m.Update(cmd())

	m.input.SetValue("second")
	_, secondCmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	select {
	case <-firstCancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the first request to be cancelled")
	}

	// whatever the replaced stream still yields is dropped by id
	if msg := firstCmd(); msg != nil {
		m.Update(msg)
	}
	m.Update(lineMsg{streamID: firstID, line: "late"})
	m.Update(streamDoneMsg{streamID: firstID})
	if !m.Streaming() {
		t.Fatal("a stale completion must not end the current stream")
	}

	drain(m, secondCmd)

	want := `user:first|assistant:{"type":"plan"}|user:second|assistant:{"type":"final"}`
	if got := roles(m.Messages()); got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
	if m.Streaming() {
		t.Error("expected second stream to be finished")
	}
}

func TestCtrlC_Quits(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {}, false)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Error("expected empty view after quitting")
	}
}

func TestView_AlignsUserRight(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {}, false)
	m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	m.appendMessage(models.RoleUser, "hi")
	m.appendMessage(models.RoleAssistant, "hello")

	lines := strings.Split(m.renderMessages(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two rows, got %d", len(lines))
	}
	if i := strings.Index(lines[0], "hi"); i < 40 {
		t.Errorf("expected user row right-aligned, got %q", lines[0])
	}
	if i := strings.Index(lines[1], "hello"); i < 0 || i > 2 {
		t.Errorf("expected assistant row left-aligned, got %q", lines[1])
	}
}
