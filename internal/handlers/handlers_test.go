package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"tabletalk-web/internal/middleware"
	"tabletalk-web/internal/models"
	"tabletalk-web/internal/proxy"
)

// ─── Stubs ───

type stubRecorder struct {
	mu      sync.Mutex
	entries []models.TranscriptEntry
}

func (s *stubRecorder) Record(e models.TranscriptEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return true
}

func (s *stubRecorder) roles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Role + ":" + e.Content
	}
	return out
}

type stubTranscripts struct {
	entries   []models.TranscriptEntry
	err       error
	lastID    string
	lastLimit int
}

func (s *stubTranscripts) List(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error) {
	s.lastID = sessionID
	s.lastLimit = limit
	return s.entries, s.err
}

type failingForwarder struct{}

func (failingForwarder) Open(ctx context.Context, body []byte, requestID string) (*http.Response, error) {
	return nil, fmt.Errorf("%w: dial tcp: connection refused", proxy.ErrBackendUnavailable)
}

func (failingForwarder) Relay(ctx context.Context, w io.Writer, body io.Reader, tap io.Writer) (int64, error) {
	return 0, errors.New("unreachable")
}

func newBackend(t *testing.T, handler http.HandlerFunc) *proxy.Forwarder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return proxy.NewForwarder(proxy.Config{
		BackendURL:      srv.URL,
		ChatPath:        "/chat",
		ResponseTimeout: 2 * time.Second,
		ReadTimeout:     2 * time.Second,
	}, nil)
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	middleware.RequestID(h).ServeHTTP(rr, req)
	return rr
}

// ─── Proxy Route Tests ───

func TestChatHandler_Stream_RelaysBackend(t *testing.T) {
	var forwarded string
	fwd := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		forwarded = string(b)
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "{\"type\":\"plan\",\"data\":{}}\n")
		w.(http.Flusher).Flush()
		io.WriteString(w, "{\"type\":\"final\",\"data\":\"ok\"}\n")
	})

	rec := &stubRecorder{}
	h := NewChatHandler(fwd, rec, nil, 1024, nil)

	body := `{"session_id":"abc","message":"vegan ramen under $20"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := serve(h.Stream, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/jsonl" {
		t.Errorf("expected application/jsonl, got %q", ct)
	}
	if forwarded != body {
		t.Errorf("expected body forwarded unchanged, got %q", forwarded)
	}
	want := "{\"type\":\"plan\",\"data\":{}}\n{\"type\":\"final\",\"data\":\"ok\"}\n"
	if rr.Body.String() != want {
		t.Errorf("expected stream relayed unchanged, got %q", rr.Body.String())
	}

	got := rec.roles()
	wantRoles := []string{
		"user:vegan ramen under $20",
		`assistant:{"type":"plan","data":{}}`,
		`assistant:{"type":"final","data":"ok"}`,
	}
	if fmt.Sprint(got) != fmt.Sprint(wantRoles) {
		t.Errorf("expected transcript %q, got %q", wantRoles, got)
	}
}

func TestChatHandler_Stream_PassesThroughStatus(t *testing.T) {
	fwd := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"detail":"session_id field required"}`)
	})

	rec := &stubRecorder{}
	h := NewChatHandler(fwd, rec, nil, 1024, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_id":"abc","message":"hi"}`))
	rr := serve(h.Stream, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected upstream 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "field required") {
		t.Errorf("expected upstream body relayed, got %q", rr.Body.String())
	}
	// only the user's message is recorded; error bodies are not assistant lines
	if len(rec.roles()) != 1 {
		t.Errorf("expected only the user entry, got %q", rec.roles())
	}
}

func TestChatHandler_Stream_BackendDown(t *testing.T) {
	h := NewChatHandler(failingForwarder{}, nil, nil, 1024, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_id":"abc","message":"hi"}`))
	rr := serve(h.Stream, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "BAD_GATEWAY" {
		t.Errorf("expected BAD_GATEWAY, got %q", resp.Error.Code)
	}
	if resp.Error.RequestID == "" {
		t.Error("expected request id in error envelope")
	}
}

func TestChatHandler_Stream_BodyTooLarge(t *testing.T) {
	h := NewChatHandler(failingForwarder{}, nil, nil, 16, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(strings.Repeat("x", 64)))
	rr := serve(h.Stream, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestChatHandler_Stream_NonJSONBodyStillForwarded(t *testing.T) {
	var forwarded string
	fwd := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		forwarded = string(b)
		w.WriteHeader(http.StatusBadRequest)
	})

	rec := &stubRecorder{}
	h := NewChatHandler(fwd, rec, nil, 1024, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("not json"))
	rr := serve(h.Stream, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected backend status, got %d", rr.Code)
	}
	if forwarded != "not json" {
		t.Errorf("expected raw body forwarded, got %q", forwarded)
	}
	if len(rec.roles()) != 0 {
		t.Errorf("expected nothing recorded, got %q", rec.roles())
	}
}

// ─── History Tests ───

func withSession(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestChatHandler_Messages(t *testing.T) {
	store := &stubTranscripts{entries: []models.TranscriptEntry{
		{SessionID: "abc", Role: models.RoleUser, Content: "hi"},
		{SessionID: "abc", Role: models.RoleAssistant, Content: `{"type":"final"}`},
	}}
	h := NewChatHandler(failingForwarder{}, nil, store, 1024, nil)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/sessions/abc/messages?limit=10", nil), "abc")
	rr := serve(h.Messages, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.lastID != "abc" || store.lastLimit != 10 {
		t.Errorf("expected List(abc, 10), got List(%s, %d)", store.lastID, store.lastLimit)
	}

	var resp models.MessagesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Content != "hi" {
		t.Errorf("unexpected messages: %+v", resp.Messages)
	}
}

func TestChatHandler_Messages_Validation(t *testing.T) {
	h := NewChatHandler(failingForwarder{}, nil, &stubTranscripts{}, 1024, nil)

	tests := []struct {
		name string
		id   string
		url  string
	}{
		{"blank id", " ", "/api/sessions/%20/messages"},
		{"long id", strings.Repeat("a", 200), "/api/sessions/x/messages"},
		{"bad limit", "abc", "/api/sessions/abc/messages?limit=-1"},
		{"non-numeric limit", "abc", "/api/sessions/abc/messages?limit=all"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := withSession(httptest.NewRequest(http.MethodGet, tc.url, nil), tc.id)
			rr := serve(h.Messages, req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestChatHandler_Messages_StoreError(t *testing.T) {
	h := NewChatHandler(failingForwarder{}, nil, &stubTranscripts{err: errors.New("redis down")}, 1024, nil)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/sessions/abc/messages", nil), "abc")
	rr := serve(h.Messages, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestChatHandler_Messages_NoStore(t *testing.T) {
	h := NewChatHandler(failingForwarder{}, nil, nil, 1024, nil)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/sessions/abc/messages", nil), "abc")
	rr := serve(h.Messages, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"messages":[]`) {
		t.Errorf("expected empty list, got %q", rr.Body.String())
	}
}

// ─── Misc ───

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"status":"ok"}` {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
}

type brokenPage struct{}

func (brokenPage) Render(w http.ResponseWriter) error { return errors.New("template exploded") }

func TestPageHandler_RenderError(t *testing.T) {
	h := NewPageHandler(brokenPage{}, nil)
	rr := httptest.NewRecorder()
	h.Home(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}
