package transcribe

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

// Google transcribes with Cloud Speech-to-Text synchronous recognition
type Google struct {
	client   *speech.Client
	language string
}

// NewGoogle creates a Speech client. An empty credentials path falls back
// to application default credentials.
func NewGoogle(ctx context.Context, credentialsFile, language string) (*Google, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	if language == "" {
		language = "en-US"
	}
	return &Google{client: c, language: language}, nil
}

func (g *Google) Transcribe(ctx context.Context, audio Audio) (string, error) {
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig(audio.MimeType, g.language),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data},
		},
	})
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	return clean(strings.Join(parts, " "))
}

// Close releases the gRPC connection
func (g *Google) Close() error {
	return g.client.Close()
}

func recognitionConfig(mimeType, language string) *speechpb.RecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		// Matrix and Discord voice notes are 48kHz Opus
		rc.Encoding = speechpb.RecognitionConfig_OGG_OPUS
		rc.SampleRateHertz = 48000
	case strings.Contains(m, "webm"):
		rc.Encoding = speechpb.RecognitionConfig_WEBM_OPUS
		rc.SampleRateHertz = 48000
	case strings.Contains(m, "wav"):
		rc.Encoding = speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		rc.Encoding = speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		rc.Encoding = speechpb.RecognitionConfig_MP3
	}
	return rc
}
