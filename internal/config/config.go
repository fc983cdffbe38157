// Package config holds the fixed audio/aggregation constants and the
// environment-derived server settings shared across the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// Audio format produced by the decoder and consumed by everything else:
	// 16-bit signed little-endian PCM, mono, 16 kHz.
	SampleRate     = 16000
	BytesPerSample = 2

	// VAD framing
	VADAggressiveness = 3
	VADFrameMs        = 30
	VADBytesPerFrame  = (SampleRate * VADFrameMs) / 1000 * BytesPerSample // 960

	// Segmentation defaults
	DefaultSilenceThresholdSec = 0.8
	MinAudioDurationSec        = 1.2
	MinUtteranceBytes          = int(MinAudioDurationSec * SampleRate * BytesPerSample)

	// Aggregation / flush policy
	TranslationTimeout             = 1500 * time.Millisecond
	MinLengthForTimeoutTranslation = 5
	PunctuationDebounce            = 300 * time.Millisecond
	FlushTickInterval              = 500 * time.Millisecond

	// Replay cache
	CacheCapacity = 8

	// Transcription
	TargetLanguage  = "ko"
	WhisperBeamSize = 5

	// Translation
	DefaultTranslationEngine = "deepl"
)

// SentenceTerminators end a buffer that is ready for a punctuation-driven
// flush.
var SentenceTerminators = []string{
	"습니다.", "니다.", "까요?", "이죠?", "데요!", "하죠.", "시오.",
}

// ConnectingWords are standalone tokens that leave a sentence dangling.
var ConnectingWords = []string{
	"그리고", "그래서", "그러나", "하지만", "그런데", "또한", "또는", "즉", "및",
	"대해", "따라", "위해", "통해", "관련", "대한", "관해", "대하여", "비해", "따르면",
}

// ConnectingEndings are trailing morphemes that leave a sentence dangling.
var ConnectingEndings = []string{
	"고", "하며", "면서", "는데", "지만", "하고", "에서", "에게", "한테", "부터", "까지", "으로", "로",
	"인데", "해도", "해서", "했고", "하는", "하던", "거나", "든지", "든가", "으며", "다가",
	"어서", "니까", "ㄹ수록", "더라도", "어야", "은데", "ㄴ데", "구요", "고요",
	"를", "을", "가", "이", "는", "은", "의", "와", "과",
}

// HallucinationBlacklist contains phrases Whisper tends to emit for
// silence-like audio. A short transcript matching one of these is suppressed.
var HallucinationBlacklist = []string{
	"감사합니다", "시청해주셔서 감사합니다", "한국어 음성 대화", "다음 영상에서 만나요.",
}

// Settings are the process-level knobs read from the environment once at
// startup. Flags in cmd/liveasr may override Addr and the directories.
type Settings struct {
	Addr     string // listen address, e.g. ":8000"
	CertFile string // non-empty enables TLS; requires KeyFile too
	KeyFile  string

	WebDir     string // static controller/viewer pages
	UploadsDir string // per-stream tuning JSON documents

	FFmpegPath string
	FFmpegArgs []string // empty means the built-in WebM to PCM argv
	PythonPath string

	// ClearBufferOnRestart clears the aggregation buffer when a
	// stream_start arrives with a pipeline already running. The source
	// behavior is to keep it.
	ClearBufferOnRestart bool
}

// FromEnv builds Settings from environment variables with defaults.
func FromEnv() Settings {
	return Settings{
		Addr:                 envString("LIVEASR_ADDR", ":8000"),
		CertFile:             os.Getenv("LIVEASR_SSL_CERTFILE"),
		KeyFile:              os.Getenv("LIVEASR_SSL_KEYFILE"),
		WebDir:               envString("LIVEASR_WEB_DIR", "web"),
		UploadsDir:           envString("LIVEASR_UPLOADS_DIR", "uploads"),
		FFmpegPath:           envString("FFMPEG_PATH", "ffmpeg"),
		FFmpegArgs:           envFields("FFMPEG_ARGS"),
		PythonPath:           envString("PYTHON_PATH", ""),
		ClearBufferOnRestart: envBool("CLEAR_BUFFER_ON_RESTART", false),
	}
}

func envString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// envFields splits a space-separated env value, keeping nil for "unset" so
// downstream defaults still apply.
func envFields(key string) []string {
	fields := strings.Fields(os.Getenv(key))
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func envBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
