package util

import (
	"strings"
	"testing"
	"time"
)

func TestFormatClock(t *testing.T) {
	cases := map[time.Duration]string{
		600 * time.Second:                      "10:00",
		599*time.Second + 400*time.Millisecond: "09:59",
		5 * time.Second:                        "00:05",
		-time.Second:                           "00:00",
	}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := FormatElapsed(95 * time.Second); got != "1m 35s" {
		t.Fatalf("got %q", got)
	}
	if got := FormatElapsed(0); got != "0m 0s" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatKST(t *testing.T) {
	at := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)
	if got := FormatKST(at, "2006-01-02 15:04"); got != "2026-01-03 00:04" {
		t.Fatalf("got %q", got)
	}
}

func TestFoldUnderHeader(t *testing.T) {
	out := FoldUnderHeader("Help\n\nline one\nline two", "Help")
	if !strings.HasPrefix(out, "Help"+KakaoZeroWidthSpace) {
		t.Fatalf("header not first: %q", out[:10])
	}
	if strings.Count(out, KakaoZeroWidthSpace) != KakaoSeeMorePadding {
		t.Fatalf("padding count = %d", strings.Count(out, KakaoZeroWidthSpace))
	}
	if !strings.HasSuffix(out, "\nline one\nline two") {
		t.Fatalf("body lost: %q", out)
	}
	if got := FoldUnderHeader("Other\nx", "Help"); got != "Other\nx" {
		t.Fatalf("unexpected fold: %q", got)
	}
}
