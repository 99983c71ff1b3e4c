package app

import (
	"regexp"
	"strings"
)

var linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

// markdownToHTML converts the small subset of Markdown produced by the
// command handlers into HTML suitable for a Matrix m.text event with
// format=org.matrix.custom.html.
//
// Supported constructs (in order of processing):
//   - Fenced code blocks  ```…```  → <pre><code>…</code></pre>
//   - Block quotes  > …            → <blockquote>…</blockquote>
//   - Links  […](…)                → <a href="…">…</a>
//   - Inline code  `…`             → <code>…</code>
//   - Bold  **…**                  → <strong>…</strong>
//   - Newlines                     → <br/>
//
// Code block content is only entity-escaped; the inline constructs and
// the newline conversion do not apply inside it.
func markdownToHTML(md string) string {
	var out strings.Builder
	lines := strings.Split(md, "\n")
	inCode := false
	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			if !inCode {
				out.WriteString("<pre><code>")
				inCode = true
			} else {
				out.WriteString("</code></pre>")
				inCode = false
			}
			continue
		}
		if inCode {
			// Escape HTML entities inside code blocks.
			escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(line)
			out.WriteString(escaped)
			out.WriteString("\n")
			continue
		}
		if rest, ok := strings.CutPrefix(line, "> "); ok {
			out.WriteString("<blockquote>")
			out.WriteString(inlineHTML(rest))
			out.WriteString("</blockquote><br/>")
			continue
		}
		out.WriteString(inlineHTML(line))
		out.WriteString("<br/>")
	}
	return out.String()
}

// inlineHTML renders the inline constructs of a single non-code line.
func inlineHTML(line string) string {
	// Links: [text](url)
	line = linkRe.ReplaceAllString(line, `<a href="$2">$1</a>`)

	// Inline code: `…`
	line = replaceDelimited(line, "`", "<code>", "</code>")

	// Bold: **…**
	line = replaceDelimited(line, "**", "<strong>", "</strong>")

	return line
}

// replaceDelimited replaces occurrences of delim…delim with open+content+close.
// Only complete pairs are replaced; an unmatched opener is left as-is.
func replaceDelimited(s, delim, open, close string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start + len(delim) // absolute index of closing delim
		b.WriteString(s[:start])
		b.WriteString(open)
		b.WriteString(s[start+len(delim) : end])
		b.WriteString(close)
		s = s[end+len(delim):]
	}
	return b.String()
}
