package handlers

import (
	"log/slog"
	"net/http"
)

type pageRenderer interface {
	Render(w http.ResponseWriter) error
}

type PageHandler struct {
	page   pageRenderer
	logger *slog.Logger
}

func NewPageHandler(page pageRenderer, logger *slog.Logger) *PageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageHandler{page: page, logger: logger}
}

func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	if err := h.page.Render(w); err != nil {
		h.logger.Error("failed to render page", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
