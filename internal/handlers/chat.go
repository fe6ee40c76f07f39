package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tabletalk-web/internal/jsonl"
	"tabletalk-web/internal/middleware"
	"tabletalk-web/internal/models"
)

const maxSessionIDLen = 128

type chatForwarder interface {
	Open(ctx context.Context, body []byte, requestID string) (*http.Response, error)
	Relay(ctx context.Context, w io.Writer, body io.Reader, tap io.Writer) (int64, error)
}

type transcriptRecorder interface {
	Record(entry models.TranscriptEntry) bool
}

type transcriptReader interface {
	List(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error)
}

type ChatHandler struct {
	forwarder    chatForwarder
	recorder     transcriptRecorder
	transcripts  transcriptReader
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewChatHandler wires the proxy route. recorder and transcripts may be nil,
// which disables transcript capture and history respectively.
func NewChatHandler(forwarder chatForwarder, recorder transcriptRecorder, transcripts transcriptReader, maxBodyBytes int64, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		forwarder:    forwarder,
		recorder:     recorder,
		transcripts:  transcripts,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Stream forwards the request body to the backend and relays the response
// stream back unchanged, with the backend's status code.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("PAYLOAD_TOO_LARGE", "Request body too large", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	rlog := h.logger.With("request_id", requestID)

	// The body is forwarded verbatim; decoding it only serves the transcript.
	var sessionID string
	var payload models.ChatPayload
	if h.recorder != nil && json.Unmarshal(body, &payload) == nil && validSessionID(payload.SessionID) {
		sessionID = payload.SessionID
		if strings.TrimSpace(payload.Message) != "" {
			h.record(sessionID, models.RoleUser, payload.Message)
		}
	}

	resp, err := h.forwarder.Open(r.Context(), body, requestID)
	if err != nil {
		if r.Context().Err() != nil {
			rlog.Info("client went away before backend answered")
			return
		}
		rlog.Error("backend request failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResp("BAD_GATEWAY", "Chat backend is unavailable", r))
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", jsonl.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	var tap *jsonl.Writer
	if sessionID != "" && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		tap = jsonl.NewWriter(func(line string) {
			h.record(sessionID, models.RoleAssistant, line)
		})
	}

	var tapWriter io.Writer
	if tap != nil {
		tapWriter = tap
	}

	start := time.Now()
	n, err := h.forwarder.Relay(r.Context(), w, resp.Body, tapWriter)
	if tap != nil {
		tap.Flush()
	}

	switch {
	case err == nil:
		rlog.Debug("stream relayed", "status", resp.StatusCode, "bytes", n, "duration", time.Since(start))
	case errors.Is(err, context.Canceled):
		rlog.Info("client disconnected during stream", "bytes", n)
	default:
		// headers are already sent, all we can do is cut the stream
		rlog.Error("stream relay failed", "error", err, "bytes", n)
	}
}

// Messages returns the stored transcript for a session, oldest first.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if !validSessionID(sessionID) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"limit": "must be a non-negative integer"}, r))
			return
		}
		limit = n
	}

	if h.transcripts == nil {
		writeJSON(w, http.StatusOK, models.MessagesResponse{SessionID: sessionID, Messages: []models.TranscriptEntry{}})
		return
	}

	entries, err := h.transcripts.List(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("failed to load transcript", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load messages", r))
		return
	}

	writeJSON(w, http.StatusOK, models.MessagesResponse{SessionID: sessionID, Messages: entries})
}

func (h *ChatHandler) record(sessionID, role, content string) {
	h.recorder.Record(models.TranscriptEntry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

func validSessionID(id string) bool {
	return id != "" && len(id) <= maxSessionIDLen && strings.TrimSpace(id) == id
}
