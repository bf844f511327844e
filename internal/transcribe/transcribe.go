// Package transcribe turns voice messages into text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/toolbot/internal/config"
)

// ErrEmptyTranscript is returned when the audio contained no speech
var ErrEmptyTranscript = errors.New("transcription returned no text")

// Audio is a downloaded voice message
type Audio struct {
	Data     []byte
	MimeType string
	Filename string
}

// Transcriber converts audio to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// New builds the transcriber selected in config. It returns nil when
// transcription is disabled.
func New(ctx context.Context, cfg config.Config) (Transcriber, error) {
	switch cfg.Transcriber {
	case "", "none":
		return nil, nil
	case "whisper":
		return NewWhisper(WhisperConfig{
			URL:     cfg.WhisperURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.WhisperModel,
			Timeout: 2 * time.Minute,
		}), nil
	case "google":
		g, err := NewGoogle(ctx, cfg.GoogleCredentials, cfg.SpeechLanguage)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown transcriber %q", cfg.Transcriber)
	}
}

func clean(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
