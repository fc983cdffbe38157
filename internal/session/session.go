package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/livecaster/liveasr/internal/aggregate"
	"github.com/livecaster/liveasr/internal/config"
	"github.com/livecaster/liveasr/internal/translate"
	"github.com/livecaster/liveasr/pkg/transcriber"
)

// ErrControllerExists is returned when a second controller tries to attach.
var ErrControllerExists = errors.New("session already has a controller")

// ErrMalformedControl is returned for control frames that do not decode;
// the server closes the offending socket with a policy code.
var ErrMalformedControl = errors.New("malformed control message")

// Deps are the session collaborators shared across all streams.
type Deps struct {
	Transcriber transcriber.Transcriber
	Translators *translate.Registry
	Tuning      *TuningStore
	Settings    config.Settings
}

// Session is the per-stream coordination point: one optional controller,
// any number of viewers, at most one running pipeline, and the aggregation
// buffer that survives pipeline restarts.
type Session struct {
	id     string
	deps   Deps
	logger *logrus.Entry

	broadcaster *Broadcaster
	agg         *aggregate.Aggregator

	mu               sync.Mutex
	controller       Sender
	languages        []string
	engine           string
	silenceThreshold float64 // seconds
	whisperOpts      map[string]interface{}
	pipeline         *Pipeline
}

// newSession builds a session with defaults; the registry is the only
// caller.
func newSession(id string, deps Deps) *Session {
	s := &Session{
		id:               id,
		deps:             deps,
		logger:           logrus.WithField("stream_id", id),
		broadcaster:      NewBroadcaster(id),
		languages:        []string{},
		engine:           config.DefaultTranslationEngine,
		silenceThreshold: config.DefaultSilenceThresholdSec,
		whisperOpts:      map[string]interface{}{},
	}
	s.agg = aggregate.New(aggregate.Config{
		StreamID:  id,
		OnInterim: s.onInterim,
		OnFinal:   s.onFinal,
	})
	return s
}

// ID returns the stream identifier.
func (s *Session) ID() string { return s.id }

// ConnectController attaches the single controller socket: loads the
// persisted tuning document and replies with session_init. A second
// controller is rejected.
func (s *Session) ConnectController(sender Sender) error {
	s.mu.Lock()
	if s.controller != nil {
		s.mu.Unlock()
		return ErrControllerExists
	}
	s.controller = sender

	params, err := s.deps.Tuning.Load(s.id)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load tuning document, starting empty")
		params = map[string]interface{}{}
	}
	s.whisperOpts = params

	init := SessionInit{
		Type: TypeSessionInit,
		Settings: InitSettings{
			SilenceThreshold:  s.silenceThreshold,
			TranslationEngine: s.engine,
			WhisperParams:     cloneParams(params),
		},
	}
	s.mu.Unlock()

	s.logger.Info("Controller connected")
	return sender.Send(init)
}

// DisconnectController detaches the controller and tears down any running
// pipeline.
func (s *Session) DisconnectController() {
	s.mu.Lock()
	s.controller = nil
	p := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	s.logger.Info("Controller disconnected")
}

// HandleControl processes one controller text frame.
func (s *Session) HandleControl(data []byte) error {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedControl, err)
	}

	switch msg.Type {
	case TypeStreamStart:
		return s.startPipeline()
	case TypeConfig:
		s.handleConfig(msg)
		return nil
	case TypeTuning:
		s.handleTuning(msg)
		return nil
	default:
		s.logger.WithField("msg_type", msg.Type).Warn("Unknown control message")
		return nil
	}
}

// HandleAudio forwards a binary frame to the running decoder. Audio before
// stream_start is dropped with a warning.
func (s *Session) HandleAudio(chunk []byte) {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()

	if p == nil {
		s.logger.Warn("Audio frame before stream_start, dropped")
		return
	}
	if err := p.WriteAudio(chunk); err != nil {
		s.logger.WithError(err).Warn("Audio frame not accepted by decoder")
	}
}

// AddViewer hydrates and joins a viewer socket.
func (s *Session) AddViewer(v Sender) error {
	return s.broadcaster.AddViewer(v)
}

// RemoveViewer detaches a viewer socket.
func (s *Session) RemoveViewer(v Sender) {
	s.broadcaster.RemoveViewer(v)
}

// Empty reports whether the session has neither a controller nor viewers.
func (s *Session) Empty() bool {
	s.mu.Lock()
	hasController := s.controller != nil
	s.mu.Unlock()
	return !hasController && s.broadcaster.ViewerCount() == 0
}

// startPipeline tears down any running pipeline and builds a fresh one.
func (s *Session) startPipeline() error {
	s.mu.Lock()
	prev := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
		if s.deps.Settings.ClearBufferOnRestart {
			s.agg.Clear()
		}
	}

	p, err := newPipeline(s)
	if err != nil {
		s.logger.WithError(err).Error("Pipeline start failed")
		return err
	}

	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()

	s.logger.Info("Pipeline started")
	return nil
}

// onPipelineExit is called by the pipeline when the decoder dies while the
// session still expects audio.
func (s *Session) onPipelineExit(p *Pipeline) {
	s.mu.Lock()
	if s.pipeline != p {
		s.mu.Unlock()
		return
	}
	s.pipeline = nil
	s.mu.Unlock()

	s.logger.Warn("Decoder exited mid-stream, pipeline torn down; awaiting stream_start")
	p.Stop()
}

func (s *Session) handleConfig(msg controlMessage) {
	s.mu.Lock()
	// An omitted language list means "no languages", not "keep the old list".
	s.languages = msg.Languages
	if s.languages == nil {
		s.languages = []string{}
	}
	if msg.SilenceThreshold > 0 {
		s.silenceThreshold = msg.SilenceThreshold
	}
	if msg.TranslationEngine != "" {
		s.engine = msg.TranslationEngine
	}
	cfg := NewConfig(append([]string(nil), s.languages...))
	s.logger.WithFields(logrus.Fields{
		"languages":         s.languages,
		"engine":            s.engine,
		"silence_threshold": s.silenceThreshold,
	}).Info("Session config updated")
	s.mu.Unlock()

	s.broadcaster.Publish(cfg)
}

func (s *Session) handleTuning(msg controlMessage) {
	s.mu.Lock()
	for key, val := range msg.Params {
		s.whisperOpts[key] = val
	}
	merged := cloneParams(s.whisperOpts)
	s.mu.Unlock()

	ack := TuningAck{Type: TypeTuningAck, Status: "success", Message: "parameters updated"}
	if err := s.deps.Tuning.Save(s.id, merged); err != nil {
		s.logger.WithError(err).Error("Failed to persist tuning document")
		ack = TuningAck{Type: TypeTuningAck, Status: "error", Message: err.Error()}
	}
	s.sendController(ack)
}

// onInterim delivers the growing buffer to the controller and viewers.
func (s *Session) onInterim(text string) {
	msg := NewInterimResult(text)
	s.sendController(msg)
	s.broadcaster.Publish(msg)
}

// onFinal delivers a flushed sentence, then fans out translations. The
// final always precedes its translations on every receiver because the
// fan-out starts only after both deliveries return.
func (s *Session) onFinal(original, id string) {
	msg := NewFinalResult(original, id)
	s.sendController(msg)
	s.broadcaster.Publish(msg)

	s.mu.Lock()
	langs := append([]string(nil), s.languages...)
	engine := s.engine
	p := s.pipeline
	s.mu.Unlock()

	if len(langs) == 0 {
		return
	}

	tr, ok := s.deps.Translators.Get(engine)
	if !ok {
		s.logger.WithField("engine", engine).Warn("Translation engine unavailable, skipping translations")
		return
	}

	ctx := context.Background()
	if p != nil {
		ctx = p.Context()
	}
	go translate.FanOut(ctx, tr, original, langs, func(res translate.Result) {
		out := NewTranslationResult(id, res.Lang, res.Text)
		s.sendController(out)
		s.broadcaster.Publish(out)
	})
}

// silenceGap exposes the live silence threshold to the segmenter.
func (s *Session) silenceGap() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.silenceThreshold * float64(time.Second))
}

// transcribeOptions snapshots the prompt and tunable parameters for one
// transcription call.
func (s *Session) transcribeOptions() transcriber.Options {
	s.mu.Lock()
	params := cloneParams(s.whisperOpts)
	s.mu.Unlock()

	return transcriber.Options{
		PreviousText: s.agg.Snapshot(),
		Params:       params,
	}
}

func (s *Session) sendController(msg Outbound) {
	s.mu.Lock()
	c := s.controller
	s.mu.Unlock()

	if c == nil {
		return
	}
	if err := c.Send(msg); err != nil {
		s.logger.WithError(err).Debug("Controller send failed")
	}
}

func cloneParams(params map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(params))
	for key, val := range params {
		clone[key] = val
	}
	return clone
}
