package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/livecaster/liveasr/internal/config"
)

// Sender is one attached client socket. Send must be safe for concurrent
// use; Close must be idempotent.
type Sender interface {
	Send(msg Outbound) error
	Close() error
}

// Broadcaster delivers result messages to every viewer and keeps a bounded
// replay cache for late joiners.
type Broadcaster struct {
	mu       sync.Mutex
	viewers  map[Sender]struct{}
	snapshot Config
	cache    []Outbound
	capacity int
	logger   *logrus.Entry
}

// NewBroadcaster creates a broadcaster with an empty-languages config
// snapshot and an empty cache.
func NewBroadcaster(streamID string) *Broadcaster {
	return &Broadcaster{
		viewers:  make(map[Sender]struct{}),
		snapshot: NewConfig(nil),
		capacity: config.CacheCapacity,
		logger:   logrus.WithField("stream_id", streamID),
	}
}

// Publish delivers msg to every viewer and maintains the replay cache: a
// config message replaces the snapshot and clears the cache, results are
// appended with oldest-first eviction, anything else (interims) passes
// through uncached. Sends run concurrently across viewers; a failed send
// closes and removes that viewer only. Publish returns after every send has
// completed, so callers retain per-receiver ordering.
func (b *Broadcaster) Publish(msg Outbound) {
	b.mu.Lock()
	switch m := msg.(type) {
	case Config:
		b.snapshot = m
		b.cache = b.cache[:0]
	case FinalResult, TranslationResult:
		if len(b.cache) >= b.capacity {
			b.cache = b.cache[1:]
		}
		b.cache = append(b.cache, msg)
	}
	targets := make([]Sender, 0, len(b.viewers))
	for v := range b.viewers {
		targets = append(targets, v)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, v := range targets {
		wg.Add(1)
		go func(v Sender) {
			defer wg.Done()
			if err := v.Send(msg); err != nil {
				b.logger.WithError(err).Debug("Viewer send failed, dropping viewer")
				b.dropViewer(v)
			}
		}(v)
	}
	wg.Wait()
}

// AddViewer hydrates the viewer with the config snapshot and the replay
// cache in insertion order, then joins it to the live broadcast set. A send
// failure during hydration closes the socket and the viewer is never added.
func (b *Broadcaster) AddViewer(v Sender) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := v.Send(b.snapshot); err != nil {
		_ = v.Close()
		return err
	}
	for _, msg := range b.cache {
		if err := v.Send(msg); err != nil {
			_ = v.Close()
			return err
		}
	}
	b.viewers[v] = struct{}{}
	b.logger.WithFields(logrus.Fields{
		"viewers":  len(b.viewers),
		"replayed": len(b.cache),
	}).Info("Viewer joined")
	return nil
}

// RemoveViewer detaches a viewer without closing it; used when the socket's
// own read loop ends.
func (b *Broadcaster) RemoveViewer(v Sender) {
	b.mu.Lock()
	delete(b.viewers, v)
	remaining := len(b.viewers)
	b.mu.Unlock()
	b.logger.WithField("viewers", remaining).Info("Viewer left")
}

// ViewerCount reports the live broadcast set size.
func (b *Broadcaster) ViewerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.viewers)
}

func (b *Broadcaster) dropViewer(v Sender) {
	_ = v.Close()
	b.mu.Lock()
	delete(b.viewers, v)
	b.mu.Unlock()
}
