package dialogue

import "strings"

// splitQuoted splits a message into whitespace separated tokens while
// keeping quoted phrases together, so a filter like `"My Service"` stays
// one search term. Quote characters themselves are dropped. An unclosed
// quote runs to the end of the input.
func splitQuoted(s string) []string {
	var tokens []string
	var current strings.Builder
	inToken := false
	quote := rune(0)

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	flush()
	return tokens
}

// indexOfFold returns the index of the first token equal to word under
// case folding, or -1.
func indexOfFold(tokens []string, word string) int {
	for i, t := range tokens {
		if strings.EqualFold(t, word) {
			return i
		}
	}
	return -1
}
