// Package util holds small text helpers shared by the chat-facing packages.
package util

import "strings"

const (
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"
)

// ApplyKakaoSeeMorePadding puts instruction on the first line and pushes body behind
// KakaoTalk's "see more" fold with zero-width spaces.
func ApplyKakaoSeeMorePadding(body, instruction string) string {
	if strings.TrimSpace(body) == "" {
		return body
	}
	instruction = strings.TrimSpace(instruction)

	var b strings.Builder
	b.Grow(len(instruction) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + len(body) + 1)
	b.WriteString(instruction)
	b.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String()
}

// StripLeadingHeader drops header (and the line breaks after it) from the start of text.
func StripLeadingHeader(text, header string) string {
	header = strings.TrimSpace(header)
	if header == "" || !strings.HasPrefix(text, header) {
		return text
	}
	rest := strings.TrimPrefix(text, header)
	return strings.TrimLeft(rest, "\r\n")
}

// FoldUnderHeader moves the first line of text above the fold and pads the rest.
// Text whose first line is not header is returned unchanged.
func FoldUnderHeader(text, header string) string {
	if strings.TrimSpace(text) == "" || !strings.HasPrefix(text, strings.TrimSpace(header)) {
		return text
	}
	return ApplyKakaoSeeMorePadding(StripLeadingHeader(text, header), header)
}
