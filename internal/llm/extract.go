package llm

import (
	"regexp"
	"strings"
)

var moveToken = regexp.MustCompile(`\b([NBRQK]?[a-h]?[1-8]?x?[a-h][1-8](?:=[NBRQ])?[+#]?|O-O(?:-O)?)`)

// ExtractMove returns the first token that looks like a SAN move, or false.
// Models tend to answer "reasoning: move", so the text after the last colon is
// searched first and the whole answer only when that part holds no move.
func ExtractMove(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if i := strings.LastIndex(text, ":"); i >= 0 {
		if mv, ok := firstMove(text[i+1:]); ok {
			return mv, true
		}
	}
	return firstMove(text)
}

func firstMove(text string) (string, bool) {
	text = strings.ReplaceAll(text, "0-0-0", "O-O-O")
	text = strings.ReplaceAll(text, "0-0", "O-O")
	m := moveToken.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}
