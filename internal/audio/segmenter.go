package audio

import (
	"time"

	"github.com/livecaster/liveasr/internal/config"
	"github.com/sirupsen/logrus"
)

// Segmenter carves the PCM stream into utterance-sized buffers using
// frame-level voice-activity detection. PCM may arrive in arbitrary chunk
// sizes; only whole frames are classified and a trailing partial frame is
// retained until enough bytes arrive.
//
// Not safe for concurrent use; the pipeline feeds it from a single goroutine.
type Segmenter struct {
	vad        *VAD
	silenceGap func() time.Duration // read at each frame while active
	minBytes   int
	emit       func(utterance []byte)
	logger     *logrus.Entry

	pending       []byte // trailing partial frame
	utterance     []byte
	active        bool
	silenceFrames int
}

// SegmenterConfig holds the segmenter dependencies.
type SegmenterConfig struct {
	// SilenceGap returns the current end-of-utterance silence threshold.
	// It is consulted live so session config updates take effect mid-stream.
	SilenceGap func() time.Duration

	// MinUtteranceBytes is the minimum emitted buffer size. Defaults to
	// config.MinUtteranceBytes.
	MinUtteranceBytes int

	// Emit receives each completed utterance. The slice is owned by the
	// callee.
	Emit func(utterance []byte)

	StreamID string
}

// NewSegmenter creates a segmenter with a fresh VAD at the fixed
// aggressiveness.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	minBytes := cfg.MinUtteranceBytes
	if minBytes <= 0 {
		minBytes = config.MinUtteranceBytes
	}
	gap := cfg.SilenceGap
	if gap == nil {
		gap = func() time.Duration {
			return time.Duration(config.DefaultSilenceThresholdSec * float64(time.Second))
		}
	}
	return &Segmenter{
		vad:        NewVAD(config.VADAggressiveness),
		silenceGap: gap,
		minBytes:   minBytes,
		emit:       cfg.Emit,
		logger:     logrus.WithField("stream_id", cfg.StreamID),
	}
}

// Push feeds a PCM chunk of any size into the segmenter.
func (s *Segmenter) Push(pcm []byte) {
	s.pending = append(s.pending, pcm...)
	for len(s.pending) >= config.VADBytesPerFrame {
		frame := s.pending[:config.VADBytesPerFrame]
		s.pending = s.pending[config.VADBytesPerFrame:]
		s.processFrame(frame)
	}
}

func (s *Segmenter) processFrame(frame []byte) {
	isSpeech := s.vad.IsSpeech(frame)

	if !s.active {
		if isSpeech {
			s.active = true
			s.silenceFrames = 0
			s.utterance = append(s.utterance, frame...)
		}
		return
	}

	s.utterance = append(s.utterance, frame...)
	if isSpeech {
		s.silenceFrames = 0
		return
	}

	s.silenceFrames++
	maxSilenceFrames := int(s.silenceGap().Milliseconds()) / config.VADFrameMs
	if s.silenceFrames > maxSilenceFrames {
		s.active = false
		s.finish()
	}
}

// finish emits the buffered utterance when it is long enough, otherwise
// discards it.
func (s *Segmenter) finish() {
	size := len(s.utterance)
	if size >= s.minBytes && s.emit != nil {
		utterance := make([]byte, size)
		copy(utterance, s.utterance)
		s.logger.WithFields(logrus.Fields{
			"utterance_bytes": size,
			"duration_sec":    float64(size) / float64(config.SampleRate*config.BytesPerSample),
		}).Debug("Utterance emitted")
		s.emit(utterance)
	} else if size > 0 {
		s.logger.WithField("utterance_bytes", size).Debug("Utterance below minimum duration, discarded")
	}
	s.utterance = s.utterance[:0]
	s.silenceFrames = 0
}

// Reset discards any in-flight utterance and pending bytes. Used on pipeline
// teardown; nothing is emitted.
func (s *Segmenter) Reset() {
	s.pending = s.pending[:0]
	s.utterance = s.utterance[:0]
	s.active = false
	s.silenceFrames = 0
	s.vad.Reset()
}
