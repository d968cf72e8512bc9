// Package prune shortens oversized text for logs and model context while
// keeping its head and tail, which is where errors usually are.
package prune

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const DefaultMarker = "[truncated]"

// Limits bounds the output. Text within MaxBytes and MaxLines is returned
// unchanged; anything larger keeps at most the configured head and tail.
type Limits struct {
	MaxBytes  int
	MaxLines  int
	HeadBytes int
	TailBytes int
	HeadLines int
	TailLines int
	Marker    string
}

var (
	// ToolResult fits tool output into the model's context.
	ToolResult = Limits{MaxBytes: 8 << 10, MaxLines: 200, HeadBytes: 2 << 10, TailBytes: 4 << 10, HeadLines: 40, TailLines: 120}
	// CommandOutput keeps log lines about shell actions short.
	CommandOutput = Limits{MaxBytes: 2 << 10, MaxLines: 40, HeadBytes: 512, TailBytes: 1 << 10, HeadLines: 10, TailLines: 25}
)

func Exceeds(s string, maxBytes, maxLines int) bool {
	return len(s) > maxBytes || CountLines(s) > maxLines
}

func CountLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// Edges returns s, or a marked head/tail excerpt of it when it is over the
// limits. label names the content in the marker line.
func Edges(s, label string, l Limits) string {
	l = l.normalize()
	if !Exceeds(s, l.MaxBytes, l.MaxLines) {
		return s
	}
	header := fmt.Sprintf("%s %s (bytes=%d, lines=%d)", l.Marker, label, len(s), CountLines(s))
	head := prefix(s, l.HeadBytes, l.HeadLines)
	tail := suffix(s, l.TailBytes, l.TailLines)
	if head == "" && tail == "" {
		return fit(header, l)
	}
	return fit(header+"\n\n"+head+"\n\n[...]\n\n"+tail, l)
}

func (l Limits) normalize() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = ToolResult.MaxBytes
	}
	if l.MaxLines <= 0 {
		l.MaxLines = ToolResult.MaxLines
	}
	if l.Marker == "" {
		l.Marker = DefaultMarker
	}
	l.HeadBytes, l.TailBytes = max(l.HeadBytes, 0), max(l.TailBytes, 0)
	l.HeadLines, l.TailLines = max(l.HeadLines, 0), max(l.TailLines, 0)
	return l
}

func fit(s string, l Limits) string {
	if !Exceeds(s, l.MaxBytes, l.MaxLines) {
		return s
	}
	if out := prefix(s, l.MaxBytes, l.MaxLines); out != "" {
		return out
	}
	return l.Marker
}

// prefix returns at most maxBytes and maxLines from the start of s without
// splitting a rune.
func prefix(s string, maxBytes, maxLines int) string {
	if s == "" || maxBytes <= 0 || maxLines <= 0 {
		return ""
	}
	if maxBytes < len(s) {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if lines := strings.SplitN(s, "\n", maxLines+1); len(lines) > maxLines {
		s = strings.Join(lines[:maxLines], "\n")
	}
	return s
}

func suffix(s string, maxBytes, maxLines int) string {
	if s == "" || maxBytes <= 0 || maxLines <= 0 {
		return ""
	}
	if maxBytes < len(s) {
		start := len(s) - maxBytes
		for start < len(s) && !utf8.RuneStart(s[start]) {
			start++
		}
		s = s[start:]
	}
	if lines := strings.Split(s, "\n"); len(lines) > maxLines {
		s = strings.Join(lines[len(lines)-maxLines:], "\n")
	}
	return s
}
