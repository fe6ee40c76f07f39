// Package web holds the embedded chat page and its assets.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	// SessionStorageKey is the localStorage key the chat widget keeps its session id under.
	SessionStorageKey = "tabletalk-session"
	// FallbackSessionID is used when no client-side storage is available.
	FallbackSessionID = "demo-session"
)

type PageData struct {
	Title             string
	Tagline           string
	Placeholder       string
	ChatEndpoint      string
	HistoryEndpoint   string
	SessionStorageKey string
	FallbackSessionID string
}

func DefaultPageData() PageData {
	return PageData{
		Title:             "TableTalk",
		Tagline:           "A conversational dining assistant powered by Google ADK tools and AWS Bedrock.",
		Placeholder:       "Ask for a restaurant recommendation…",
		ChatEndpoint:      "/api/chat",
		HistoryEndpoint:   "/api/sessions",
		SessionStorageKey: SessionStorageKey,
		FallbackSessionID: FallbackSessionID,
	}
}

type Page struct {
	tmpl *template.Template
	data PageData
}

func NewPage(data PageData) (*Page, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &Page{tmpl: tmpl, data: data}, nil
}

// Render writes the home page. It renders into a buffer first so a template
// error never leaves a half-written page behind.
func (p *Page) Render(w http.ResponseWriter) error {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, p.data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded assets rooted at /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the embed directive guarantees the directory exists
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
