package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	google_translate_tts "github.com/GrailFinder/google-translate-tts"
	"github.com/GrailFinder/google-translate-tts/handlers"
)

// GoogleSynthesizer is the offline fallback when no speech backend is
// configured: it fetches mp3 audio from Google Translate instead of the
// assistant's /speak endpoint. Output feeds the same playback path.
type GoogleSynthesizer struct {
	speech *google_translate_tts.Speech
}

func NewGoogleSynthesizer(language string, speed float32) *GoogleSynthesizer {
	if language == "" {
		language = "en"
	}
	return &GoogleSynthesizer{
		speech: &google_translate_tts.Speech{
			Folder:   filepath.Join(os.TempDir(), "bk-voice-tts"),
			Language: language,
			Speed:    speed,
			Handler:  &handlers.Beep{},
		},
	}
}

func (g *GoogleSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	reader, err := g.speech.GenerateSpeech(text)
	if err != nil {
		return nil, fmt.Errorf("generate speech failed: %w", err)
	}
	audio, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated speech: %w", err)
	}
	return audio, nil
}
