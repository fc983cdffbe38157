package transcriber

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCleanTranscriptPassesNormalText verifies ordinary transcripts pass
// through trimmed.
func TestCleanTranscriptPassesNormalText(t *testing.T) {
	assert.Equal(t, "안녕하세요 반갑습니다.", CleanTranscript("  안녕하세요 반갑습니다. "))
}

// TestCleanTranscriptSuppressesHallucination verifies a bare blacklist
// phrase is suppressed.
func TestCleanTranscriptSuppressesHallucination(t *testing.T) {
	assert.Equal(t, "", CleanTranscript("감사합니다"))
	assert.Equal(t, "", CleanTranscript("시청해주셔서 감사합니다"))
	assert.Equal(t, "", CleanTranscript("다음 영상에서 만나요."))
}

// TestCleanTranscriptKeepsLongMatches verifies a transcript that merely
// contains a blacklist phrase inside a longer sentence survives.
func TestCleanTranscriptKeepsLongMatches(t *testing.T) {
	text := "발표를 들어주셔서 정말 감사합니다 여러분"
	assert.Equal(t, text, CleanTranscript(text))
}

// TestCleanTranscriptEmpty verifies whitespace-only input maps to empty.
func TestCleanTranscriptEmpty(t *testing.T) {
	assert.Equal(t, "", CleanTranscript("   "))
}

// TestMockTranscriber verifies the mock returns its configured text.
func TestMockTranscriber(t *testing.T) {
	m := &Mock{Text: "테스트 문장입니다."}

	text, err := m.Transcribe(context.Background(), make([]float32, 160), Options{})
	assert.NoError(t, err)
	assert.Equal(t, "테스트 문장입니다.", text)
	assert.True(t, m.IsReady())
	assert.NoError(t, m.Close())
}

// TestFloatsToBytes verifies the little-endian float32 layout the helper
// process expects.
func TestFloatsToBytes(t *testing.T) {
	samples := []float32{0, -1, 0.5}
	out := floatsToBytes(samples)

	assert.Len(t, out, 12)
	for i, want := range samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
		assert.Equal(t, want, got)
	}
}
