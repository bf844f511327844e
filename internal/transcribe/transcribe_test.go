package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/toolbot/internal/config"
)

func TestWhisperTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "base", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			data, _ := io.ReadAll(f)
			assert.Equal(t, "OggS-fake", string(data))
			assert.Equal(t, "voice.ogg", hdr.Filename)
		}
		w.Write([]byte(`{"text":"  remind me to buy milk  "}`))
	}))
	defer srv.Close()

	w := NewWhisper(WhisperConfig{URL: srv.URL + "/v1", APIKey: "sk-test", Model: "base"})
	text, err := w.Transcribe(context.Background(), Audio{Data: []byte("OggS-fake"), MimeType: "audio/ogg"})
	require.NoError(t, err)
	assert.Equal(t, "remind me to buy milk", text)
}

func TestWhisperErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer silent" {
			w.Write([]byte(`{"text":""}`))
			return
		}
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewWhisper(WhisperConfig{URL: srv.URL}).Transcribe(context.Background(), Audio{Data: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whisper API error (503)")

	_, err = NewWhisper(WhisperConfig{URL: srv.URL, APIKey: "silent"}).Transcribe(context.Background(), Audio{Data: []byte("x")})
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestRecognitionConfig(t *testing.T) {
	rc := recognitionConfig("audio/ogg; codecs=opus", "de-DE")
	assert.Equal(t, speechpb.RecognitionConfig_OGG_OPUS, rc.Encoding)
	assert.EqualValues(t, 48000, rc.SampleRateHertz)
	assert.Equal(t, "de-DE", rc.LanguageCode)

	assert.Equal(t, speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, recognitionConfig("", "en-US").Encoding)
}

func TestNewDisabled(t *testing.T) {
	tr, err := New(context.Background(), config.Config{})
	require.NoError(t, err)
	assert.Nil(t, tr)

	_, err = New(context.Background(), config.Config{Transcriber: "vosk"})
	assert.Error(t, err)
}
