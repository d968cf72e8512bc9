// Package channel holds the platform-neutral parts of outbound delivery:
// splitting long replies and retrying sends the platform throttled.
package channel

import (
	"context"
	"strings"
	"time"
)

// ChunkerMode selects the text chunking strategy.
type ChunkerMode string

const (
	ChunkerModeText     ChunkerMode = "text"
	ChunkerModeMarkdown ChunkerMode = "markdown"
)

// Chunker splits text into pieces that respect a character limit.
type Chunker func(text string, limit int) []string

// OutboundPolicy configures how outbound messages are chunked and retried.
type OutboundPolicy struct {
	TextChunkLimit int
	ChunkerMode    ChunkerMode
	Chunker        Chunker
	RetryMax       int
	RetryBackoff   time.Duration
}

// NormalizeOutboundPolicy fills zero-value fields with sensible defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.TextChunkLimit <= 0 {
		policy.TextChunkLimit = 2000
	}
	if policy.ChunkerMode == "" {
		policy.ChunkerMode = ChunkerModeText
	}
	if policy.RetryMax <= 0 {
		policy.RetryMax = 3
	}
	if policy.RetryBackoff <= 0 {
		policy.RetryBackoff = 500 * time.Millisecond
	}
	if policy.Chunker == nil {
		policy.Chunker = DefaultChunker(policy.ChunkerMode)
	}
	return policy
}

// DefaultChunker returns the built-in Chunker for the given mode.
func DefaultChunker(mode ChunkerMode) Chunker {
	switch mode {
	case ChunkerModeMarkdown:
		return ChunkMarkdownText
	default:
		return ChunkText
	}
}

// ChunkText splits text at newline boundaries, respecting the rune limit.
func ChunkText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 || runeLen(trimmed) <= limit {
		return []string{trimmed}
	}
	return packSegments(strings.Split(trimmed, "\n"), "\n", limit, splitLongLine)
}

// ChunkMarkdownText splits text at paragraph boundaries (double newlines),
// falling back to line splitting for oversized paragraphs.
func ChunkMarkdownText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 || runeLen(trimmed) <= limit {
		return []string{trimmed}
	}
	return packSegments(strings.Split(trimmed, "\n\n"), "\n\n", limit, ChunkText)
}

// packSegments greedily joins segments with sep while they fit in limit and
// hands segments that are too long on their own to split.
func packSegments(segments []string, sep string, limit int, split func(string, int) []string) []string {
	chunks := make([]string, 0)
	buf := make([]string, 0, len(segments))
	bufLen := 0
	sepRunes := runeLen(sep)
	for _, seg := range segments {
		segLen := runeLen(seg)
		sepLen := 0
		if len(buf) > 0 {
			sepLen = sepRunes
		}
		if bufLen+sepLen+segLen <= limit {
			buf = append(buf, seg)
			bufLen += sepLen + segLen
			continue
		}
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, sep))
			buf = buf[:0]
			bufLen = 0
		}
		if segLen <= limit {
			buf = append(buf, seg)
			bufLen = segLen
			continue
		}
		chunks = append(chunks, split(seg, limit)...)
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, sep))
	}
	return chunks
}

func runeLen(value string) int {
	return len([]rune(value))
}

func splitLongLine(line string, limit int) []string {
	if limit <= 0 {
		return []string{line}
	}
	runes := []rune(line)
	chunks := make([]string, 0)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		segment := strings.TrimSpace(string(runes[start:end]))
		if segment == "" {
			continue
		}
		chunks = append(chunks, segment)
	}
	return chunks
}

// RetryAfter reports whether err is a throttling error and how long the
// platform asked us to wait.
type RetryAfter func(err error) (time.Duration, bool)

// SendWithRetry calls send until it succeeds, returns a non-throttling error,
// or policy.RetryMax attempts are used. Waits honour the platform's hint and
// otherwise back off linearly.
func SendWithRetry(ctx context.Context, policy OutboundPolicy, retryAfter RetryAfter, send func() error) error {
	policy = NormalizeOutboundPolicy(policy)
	var err error
	for i := 0; i < policy.RetryMax; i++ {
		err = send()
		if err == nil {
			return nil
		}
		wait, throttled := retryAfter(err)
		if !throttled || i == policy.RetryMax-1 {
			return err
		}
		if wait <= 0 {
			wait = time.Duration(i+1) * policy.RetryBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
