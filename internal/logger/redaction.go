package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials in log output
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for the credentials model providers and
// the gateway handle
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// OpenAI, Anthropic, OpenRouter and DeepSeek keys
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			// Gemini
			regexp.MustCompile(`AIza[0-9A-Za-z_-]{30,}`),
			// xAI
			regexp.MustCompile(`xai-[a-zA-Z0-9]{20,}`),
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/=-]+`),
			regexp.MustCompile(`(?i)x-radbridge-secret["\s:=]+[^\s",]+`),
			regexp.MustCompile(`(?i)(api_?key|apiKey)["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`(?i)shared_secret["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`(?i)password["\s:=]+[^\s",}]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, redacted)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers never see a short write for
// masked output
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
