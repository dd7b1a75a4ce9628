package logger

import (
	"bytes"
	"strings"
	"sync"
)

// LineWriter is an io.Writer that splits a byte stream into lines, logs each
// one at a fixed level with a prefix, and hands it to an optional callback.
// Subprocess stdout and stderr can share one LineWriter.
type LineWriter struct {
	level  LogLevel
	prefix string
	onLine func(string)

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewLineWriter(level LogLevel, prefix string, onLine func(string)) *LineWriter {
	return &LineWriter{level: level, prefix: prefix, onLine: onLine}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexAny(w.buf.Bytes(), "\r\n")
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits whatever is left after the final newline.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *LineWriter) emit(raw string) {
	line := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	output(w.level, w.prefix+line)
	if w.onLine != nil {
		w.onLine(line)
	}
}
