// Package transcriber defines the ASR engine interface used by the session
// pipeline, the faster-whisper implementation and the transcript
// post-filtering shared by all engines.
package transcriber

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/livecaster/liveasr/internal/config"
)

// Options carries per-call transcription inputs.
type Options struct {
	// PreviousText is the aggregation buffer at call time; when non-empty
	// it is passed as the initial prompt and enables conditioning on
	// previous text.
	PreviousText string

	// Params are session-tunable engine parameters merged into the call.
	Params map[string]interface{}
}

// Transcriber is the unified interface for ASR back-ends. Samples are
// normalized mono floats at the service sample rate.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, opts Options) (string, error)
	IsReady() bool
	Close() error
}

// CleanTranscript trims the engine output and suppresses common Whisper
// hallucinations: a short transcript containing a blacklisted phrase is
// replaced by the empty string, the uniform "no useful speech" signal.
func CleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	length := utf8.RuneCountInString(text)
	for _, phrase := range config.HallucinationBlacklist {
		if strings.Contains(text, phrase) && length < utf8.RuneCountInString(phrase)+5 {
			logrus.WithField("transcript", text).Warn("Suspected hallucination filtered")
			return ""
		}
	}
	return text
}

// Mock is a transcriber for tests and development without a speech model.
type Mock struct {
	// Text, when set, is returned for every call. Otherwise a synthetic
	// marker including the sample count is returned.
	Text string
}

// Transcribe returns the configured text.
func (m *Mock) Transcribe(_ context.Context, samples []float32, _ Options) (string, error) {
	if m.Text != "" {
		return m.Text, nil
	}
	return fmt.Sprintf("[mock transcript: %d samples]", len(samples)), nil
}

// IsReady always reports true.
func (m *Mock) IsReady() bool { return true }

// Close is a no-op.
func (m *Mock) Close() error { return nil }
