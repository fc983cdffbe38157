package session

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/livecaster/liveasr/internal/audio"
	"github.com/livecaster/liveasr/internal/decoder"
	"github.com/livecaster/liveasr/pkg/transcriber"
)

// utteranceQueueSize bounds utterances waiting for the serial transcription
// worker.
const utteranceQueueSize = 8

// Pipeline is one live audio processing chain: decoder child, PCM pump,
// VAD segmenter, serial transcription worker and the aggregator tick loop.
// Exactly one exists per session at a time.
type Pipeline struct {
	session *Session
	dec     *decoder.FFmpeg
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	logger  *logrus.Entry

	utterances chan []byte
}

// newPipeline spawns the decoder and starts the processing goroutines. A
// decoder spawn failure fails the whole start.
func newPipeline(s *Session) (*Pipeline, error) {
	dec := decoder.New(decoder.Config{
		Path:     s.deps.Settings.FFmpegPath,
		Args:     s.deps.Settings.FFmpegArgs,
		StreamID: s.id,
	})
	if err := dec.Start(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	p := &Pipeline{
		session:    s,
		dec:        dec,
		ctx:        ctx,
		cancel:     cancel,
		group:      group,
		logger:     logrus.WithField("stream_id", s.id),
		utterances: make(chan []byte, utteranceQueueSize),
	}

	group.Go(p.pumpPCM)
	group.Go(p.transcribeWorker)
	group.Go(func() error {
		s.agg.Run(ctx)
		return nil
	})
	group.Go(p.watchDecoder)
	return p, nil
}

// Context is the pipeline's lifetime context; translator calls inherit it
// so teardown cancels them.
func (p *Pipeline) Context() context.Context {
	return p.ctx
}

// WriteAudio forwards an encoded chunk to the decoder.
func (p *Pipeline) WriteAudio(chunk []byte) error {
	return p.dec.Write(chunk)
}

// Stop cancels all pipeline goroutines, closes the decoder and waits for
// everything to drain. Idempotent.
func (p *Pipeline) Stop() {
	p.cancel()
	_ = p.dec.Close()
	_ = p.group.Wait()
}

// pumpPCM feeds decoded PCM into the segmenter. Completed utterances are
// queued for the transcription worker; the queue applies backpressure so
// utterance order is preserved.
func (p *Pipeline) pumpPCM() error {
	seg := audio.NewSegmenter(audio.SegmenterConfig{
		SilenceGap: p.session.silenceGap,
		StreamID:   p.session.id,
		Emit: func(utterance []byte) {
			select {
			case p.utterances <- utterance:
			case <-p.ctx.Done():
			}
		},
	})
	defer close(p.utterances)

	for {
		select {
		case <-p.ctx.Done():
			seg.Reset()
			return nil
		case chunk, ok := <-p.dec.PCM():
			if !ok {
				return nil
			}
			seg.Push(chunk)
		}
	}
}

// transcribeWorker processes utterances one at a time so transcripts reach
// the aggregator in emission order.
func (p *Pipeline) transcribeWorker() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case utterance, ok := <-p.utterances:
			if !ok {
				return nil
			}
			p.transcribe(utterance)
		}
	}
}

func (p *Pipeline) transcribe(utterance []byte) {
	samples := audio.Preprocess(utterance)
	opts := p.session.transcribeOptions()

	text, err := p.session.deps.Transcriber.Transcribe(p.ctx, samples, opts)
	if err != nil {
		if p.ctx.Err() == nil {
			p.logger.WithError(err).Error("Transcription failed")
		}
		return
	}

	text = transcriber.CleanTranscript(text)
	if text == "" {
		return
	}
	p.session.agg.OnTranscript(text)
}

// watchDecoder tears the pipeline down when the child dies while the
// session still expects audio.
func (p *Pipeline) watchDecoder() error {
	select {
	case <-p.ctx.Done():
		return nil
	case <-p.dec.Exited():
		if p.ctx.Err() == nil {
			go p.session.onPipelineExit(p)
		}
		return nil
	}
}
