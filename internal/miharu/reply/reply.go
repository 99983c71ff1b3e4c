// Package reply builds outbound chat responses.
//
// A Response is transport-agnostic: the dialogue engine and command
// handlers assemble text and blocks here, and the Matrix layer decides
// how to render them (plain body plus formatted HTML).
package reply

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxBlockTextLength is the upper bound for a single rendered block.
// Longer blocks are cut and terminated with an ellipsis.
const MaxBlockTextLength = 3000

// Response is a message ready to be sent back to the user.
type Response struct {
	// Text is the lead line of the response.
	Text string

	// Blocks are additional sections rendered after Text, each capped
	// at MaxBlockTextLength.
	Blocks []string
}

// New returns a Response with the given lead text.
func New(text string) *Response {
	return &Response{Text: text}
}

// Newf returns a Response with a formatted lead text.
func Newf(format string, args ...any) *Response {
	return &Response{Text: fmt.Sprintf(format, args...)}
}

// AddBlock appends a section, truncating it to MaxBlockTextLength.
func (r *Response) AddBlock(text string) {
	r.Blocks = append(r.Blocks, Truncate(text, MaxBlockTextLength))
}

// AddBlockf appends a formatted section.
func (r *Response) AddBlockf(format string, args ...any) {
	r.AddBlock(fmt.Sprintf(format, args...))
}

// String renders the response as a single plain-text message.
func (r *Response) String() string {
	if len(r.Blocks) == 0 {
		return r.Text
	}
	parts := make([]string, 0, len(r.Blocks)+1)
	if r.Text != "" {
		parts = append(parts, r.Text)
	}
	parts = append(parts, r.Blocks...)
	return strings.Join(parts, "\n\n")
}

// Error builds a response for a failed operation. The header names the
// operation, msg carries the underlying cause.
func Error(header, msg string) *Response {
	r := New(header)
	if msg != "" {
		r.AddBlock(msg)
	}
	return r
}

// Truncate cuts s to at most max bytes, appending "..." when cut. The
// cut never splits a multi-byte rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Plural returns the singular or plural form depending on n.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// EnabledDisabled maps a boolean toggle state to a word.
func EnabledDisabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

// HostLink renders a markdown link to the Icingaweb2 host page, or the
// bare host name when no web URL is configured.
func HostLink(webURL, host string) string {
	if webURL == "" {
		return host
	}
	return fmt.Sprintf("[%s](%s/monitoring/host/show?host=%s)", host, webURL, host)
}

// ServiceLink renders a markdown link to the Icingaweb2 service page.
func ServiceLink(webURL, host, service string) string {
	if webURL == "" {
		return service
	}
	return fmt.Sprintf("[%s](%s/monitoring/service/show?host=%s&service=%s)",
		service, webURL, host, service)
}

// FormatTime renders a timestamp the way status output expects it.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// FormatUnix renders a unix timestamp, or "never" for the sentinel -1.
func FormatUnix(ts int64) string {
	if ts < 0 {
		return "never"
	}
	return FormatTime(time.Unix(ts, 0))
}
