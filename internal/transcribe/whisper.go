// Package transcribe turns voice notes into text.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/memohai/jobrelay/internal/config"
)

var ErrEmptyAudio = errors.New("empty audio")

// Whisper transcribes audio through the OpenAI audio transcriptions API.
type Whisper struct {
	client openai.Client
	model  string
}

func NewWhisper(apiKey, baseURL, model string, opts ...option.RequestOption) *Whisper {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimSpace(baseURL); base != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	clientOpts = append(clientOpts, opts...)
	if strings.TrimSpace(model) == "" {
		model = config.DefaultWhisperModel
	}
	return &Whisper{client: openai.NewClient(clientOpts...), model: model}
}

// FromConfig returns a Whisper transcriber when an OpenAI key is configured.
func FromConfig(cfg config.Config) (*Whisper, bool) {
	key := strings.TrimSpace(cfg.LLM.OpenAIAPIKey)
	if key == "" {
		return nil, false
	}
	return NewWhisper(key, cfg.LLM.OpenAIBaseURL, cfg.Voice.Model), true
}

func (w *Whisper) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), filename, contentType),
		Model: openai.AudioModel(w.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filename, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
