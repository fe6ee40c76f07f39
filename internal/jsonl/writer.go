package jsonl

import (
	"bytes"
	"strings"
)

// Writer is an io.Writer that calls fn for every complete non-empty line
// written to it. Call Flush once the stream ends to emit a trailing line
// without a newline.
type Writer struct {
	fn  func(line string)
	buf bytes.Buffer
}

func NewWriter(fn func(line string)) *Writer {
	return &Writer{fn: fn}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		w.emit(string(w.buf.Next(idx + 1)))
	}
	return len(p), nil
}

func (w *Writer) Flush() {
	if w.buf.Len() == 0 {
		return
	}
	w.emit(w.buf.String())
	w.buf.Reset()
}

func (w *Writer) emit(raw string) {
	if line := strings.TrimSpace(raw); line != "" {
		w.fn(line)
	}
}
