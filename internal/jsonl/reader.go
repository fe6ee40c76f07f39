// Package jsonl splits newline-delimited streams into lines.
//
// Lines are trimmed of surrounding whitespace and blank lines are dropped, so
// "a\n\n b \r\n" yields "a" then "b". A line split across two reads of the
// underlying stream is returned once, whole. A trailing line with no newline
// is returned at end of stream.
package jsonl

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const ContentType = "application/jsonl"

type Reader struct {
	r    *bufio.Reader
	line string
	err  error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next advances to the next non-empty line. It returns false at end of
// stream or on error; Err distinguishes the two.
func (r *Reader) Next() bool {
	for r.err == nil {
		raw, err := r.r.ReadString('\n')
		if err != nil {
			r.err = err
		}
		if line := strings.TrimSpace(raw); line != "" {
			r.line = line
			return true
		}
	}
	r.line = ""
	return false
}

// Line returns the line found by the last call to Next.
func (r *Reader) Line() string {
	return r.line
}

// Err returns the first non-EOF error encountered.
func (r *Reader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}
