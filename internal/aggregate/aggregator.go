// Package aggregate accumulates transcript fragments into sentences and
// decides when a buffer is finalized, via either a punctuation-driven
// debounce or a periodic timeout check.
package aggregate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/livecaster/liveasr/internal/config"
)

// FlushPunctuation marks a flush forced by a sentence terminator.
const FlushPunctuation = "punctuation"

// Aggregator is the per-session transcript buffer. OnTranscript and Flush
// may be called from different goroutines; the internal mutex covers the
// buffer and the arrival clock.
type Aggregator struct {
	// flushMu serializes whole flushes, delivery included, so finals reach
	// every receiver in mint order even when a send stalls.
	flushMu sync.Mutex

	mu          sync.Mutex
	buffer      string
	lastArrival time.Time
	lastID      string
	seq         int64

	onInterim func(text string)
	onFinal   func(original, id string)

	debounce      time.Duration
	tickInterval  time.Duration
	timeout       time.Duration
	minTimeoutLen int

	logger *logrus.Entry
}

// Config holds the aggregator callbacks and, for tests, timing overrides.
type Config struct {
	StreamID string

	// OnInterim receives the trimmed buffer after every transcript
	// arrival. Fire-and-forget; interims are not cached.
	OnInterim func(text string)

	// OnFinal receives the flushed sentence and its freshly minted
	// identifier.
	OnFinal func(original, id string)

	Debounce         time.Duration // default 300ms
	TickInterval     time.Duration // default 500ms
	Timeout          time.Duration // default 1.5s
	MinTimeoutLength int           // default 5 chars
}

// New creates an aggregator with an empty buffer.
func New(cfg Config) *Aggregator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = config.PunctuationDebounce
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = config.FlushTickInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.TranslationTimeout
	}
	if cfg.MinTimeoutLength <= 0 {
		cfg.MinTimeoutLength = config.MinLengthForTimeoutTranslation
	}
	return &Aggregator{
		onInterim:     cfg.OnInterim,
		onFinal:       cfg.OnFinal,
		debounce:      cfg.Debounce,
		tickInterval:  cfg.TickInterval,
		timeout:       cfg.Timeout,
		minTimeoutLen: cfg.MinTimeoutLength,
		logger:        logrus.WithField("stream_id", cfg.StreamID),
	}
}

// OnTranscript appends a transcript fragment, emits the interim buffer and
// arms the punctuation debounce when the buffer now ends a sentence.
func (a *Aggregator) OnTranscript(text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	if strings.TrimSpace(a.buffer) != "" {
		a.buffer += " "
	}
	a.buffer += text
	a.lastArrival = time.Now()
	trimmed := strings.TrimSpace(a.buffer)
	a.mu.Unlock()

	if a.onInterim != nil {
		a.onInterim(trimmed)
	}

	if endsWithTerminator(trimmed) {
		go a.debounceFlush()
	}
}

// debounceFlush waits the debounce window and flushes only when no newer
// transcript arrived in the meantime.
func (a *Aggregator) debounceFlush() {
	time.Sleep(a.debounce)

	a.mu.Lock()
	quiet := !a.lastArrival.IsZero() && time.Since(a.lastArrival) >= a.debounce
	a.mu.Unlock()

	if quiet {
		a.Flush(FlushPunctuation)
	}
}

// Run drives the periodic timeout check until ctx is cancelled. The tick
// fires at a fixed interval regardless of input activity.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Flush("")
		}
	}
}

// Flush finalizes the buffer when the policy allows it. A punctuation flush
// is unconditional; a tick flush requires the arrival timeout, the minimum
// length, and a semantically complete tail. A no-op on an empty buffer.
// Flushes are serialized end to end: a later flush cannot mint or deliver
// until the previous OnFinal has returned.
func (a *Aggregator) Flush(reason string) {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()

	trimmed := strings.TrimSpace(a.buffer)
	if trimmed == "" {
		a.mu.Unlock()
		return
	}

	should := false
	if reason == FlushPunctuation {
		should = true
	} else {
		timedOut := !a.lastArrival.IsZero() && time.Since(a.lastArrival) > a.timeout
		longEnough := utf8.RuneCountInString(trimmed) >= a.minTimeoutLen
		should = timedOut && longEnough && !semanticallyIncomplete(trimmed)
	}
	if !should {
		a.mu.Unlock()
		return
	}

	a.buffer = ""
	a.lastArrival = time.Time{}
	id := a.mintIDLocked()
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"reason":   reason,
		"id":       id,
		"original": trimmed,
	}).Info("Buffer finalized")

	if a.onFinal != nil {
		a.onFinal(trimmed, id)
	}
}

// Snapshot returns the trimmed buffer, used as the previous-text prompt for
// the next transcription call.
func (a *Aggregator) Snapshot() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.TrimSpace(a.buffer)
}

// Clear discards the buffer without emitting anything.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.buffer = ""
	a.lastArrival = time.Time{}
	a.mu.Unlock()
}

// mintIDLocked returns a unique, monotonically increasing identifier:
// seconds since epoch with a disambiguating suffix on collision.
func (a *Aggregator) mintIDLocked() string {
	id := fmt.Sprintf("%.6f", float64(time.Now().UnixNano())/1e9)
	if id == a.lastID || strings.HasPrefix(a.lastID, id+"-") {
		a.seq++
		id = fmt.Sprintf("%s-%d", id, a.seq)
	}
	a.lastID = id
	return id
}

// endsWithTerminator reports whether the buffer ends a complete sentence.
func endsWithTerminator(text string) bool {
	for _, suffix := range config.SentenceTerminators {
		if strings.HasSuffix(text, suffix) {
			return true
		}
	}
	return false
}

// semanticallyIncomplete reports whether the last word leaves the sentence
// dangling: it ends with a connecting morpheme or is itself a connecting
// word.
func semanticallyIncomplete(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	lastWord := fields[len(fields)-1]
	for _, ending := range config.ConnectingEndings {
		if strings.HasSuffix(lastWord, ending) {
			return true
		}
	}
	for _, word := range config.ConnectingWords {
		if lastWord == word {
			return true
		}
	}
	return false
}
