// Package decoder supervises the external audio decoder child process. The
// child consumes an encoded container stream (WebM/Opus in practice) on
// stdin and produces 16-bit little-endian PCM, mono, 16 kHz on stdout.
package decoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/livecaster/liveasr/internal/config"
)

var (
	// ErrNotStarted is returned when writing before Start.
	ErrNotStarted = errors.New("decoder has not been started")

	// ErrClosed is returned when writing after Close.
	ErrClosed = errors.New("decoder is closed")

	// ErrExited is returned when the child process has already exited.
	ErrExited = errors.New("decoder process exited")
)

const (
	pcmReadSize      = 4096
	writeQueueSize   = 64
	pcmChannelSize   = 32
	defaultWaitLimit = 3 * time.Second
)

// defaultArgs decode a WebM container from stdin to raw PCM on stdout.
func defaultArgs() []string {
	return []string{
		"-f", "webm",
		"-i", "-",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(config.SampleRate),
		"-",
	}
}

// Config holds decoder process settings.
type Config struct {
	Path     string   // decoder binary; defaults to "ffmpeg"
	Args     []string // full argv after the binary; defaults to WebM -> PCM
	StreamID string

	// WaitLimit bounds how long Close waits for the child to exit before
	// killing it. Defaults to 3 seconds.
	WaitLimit time.Duration
}

// FFmpeg is a supervised decoder child process. Writes are queued on a small
// bounded FIFO so the controller read loop never blocks on the child's
// stdin; the queue is drained in order and chunks are never dropped.
type FFmpeg struct {
	cfg    Config
	logger *logrus.Entry

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	writeQueue chan []byte
	pcm        chan []byte
	quit       chan struct{}
	exited     chan struct{}
	exitErr    error

	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates an unstarted decoder.
func New(cfg Config) *FFmpeg {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.Args == nil {
		cfg.Args = defaultArgs()
	}
	if cfg.WaitLimit <= 0 {
		cfg.WaitLimit = defaultWaitLimit
	}
	return &FFmpeg{
		cfg:        cfg,
		logger:     logrus.WithField("stream_id", cfg.StreamID),
		writeQueue: make(chan []byte, writeQueueSize),
		pcm:        make(chan []byte, pcmChannelSize),
		quit:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
}

// Start spawns the child and begins the stdin writer, stdout pump and
// stderr drain.
func (d *FFmpeg) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("decoder already started")
	}

	// #nosec G204 - binary and argv come from server configuration
	cmd := exec.Command(d.cfg.Path, d.cfg.Args...)

	var err error
	if d.stdin, err = cmd.StdinPipe(); err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if d.stdout, err = cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if d.stderr, err = cmd.StderrPipe(); err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", d.cfg.Path, err)
	}
	d.cmd = cmd
	d.started = true

	d.logger.WithFields(logrus.Fields{
		"pid":  cmd.Process.Pid,
		"path": d.cfg.Path,
	}).Info("Decoder process started")

	go d.writeLoop()
	go d.readStdout()
	go d.readStderr()
	go d.waitExit()
	return nil
}

// Write enqueues an encoded chunk for the child's stdin. It blocks only when
// the bounded queue is full, and fails once the decoder is closed or the
// child has exited. The chunk is copied.
func (d *FFmpeg) Write(chunk []byte) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return ErrNotStarted
	}
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.mu.Unlock()

	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	select {
	case d.writeQueue <- buf:
		return nil
	case <-d.quit:
		return ErrClosed
	case <-d.exited:
		return ErrExited
	}
}

// PCM returns the channel of decoded PCM chunks. It is closed when the
// child's stdout reaches EOF.
func (d *FFmpeg) PCM() <-chan []byte {
	return d.pcm
}

// Exited is closed when the child process has terminated.
func (d *FFmpeg) Exited() <-chan struct{} {
	return d.exited
}

// Close drains queued writes, closes the child's stdin and waits for exit
// with a bounded limit before forcing termination.
func (d *FFmpeg) Close() error {
	d.mu.Lock()
	if !d.started || d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.quit)

	select {
	case <-d.exited:
	case <-time.After(d.cfg.WaitLimit):
		d.logger.WithField("wait_limit", d.cfg.WaitLimit).Warn("Decoder did not exit in time, killing")
		if d.cmd.Process != nil {
			_ = d.cmd.Process.Kill()
		}
		<-d.exited
	}
	return d.exitErr
}

// writeLoop drains the FIFO into the child's stdin, then closes stdin when
// asked to quit so the child can flush and exit.
func (d *FFmpeg) writeLoop() {
	defer func() {
		if err := d.stdin.Close(); err != nil {
			d.logger.WithError(err).Debug("Decoder stdin close failed")
		}
	}()

	for {
		select {
		case chunk := <-d.writeQueue:
			if _, err := d.stdin.Write(chunk); err != nil {
				d.logger.WithError(err).Warn("Decoder stdin write failed")
				return
			}
		case <-d.quit:
			// Flush whatever is already queued, in order.
			for {
				select {
				case chunk := <-d.writeQueue:
					if _, err := d.stdin.Write(chunk); err != nil {
						return
					}
				default:
					return
				}
			}
		case <-d.exited:
			return
		}
	}
}

// readStdout pumps fixed-size PCM reads into the PCM channel. After Close,
// remaining output is still delivered while a consumer keeps up; once the
// channel backs up it is discarded so the child can drain and exit.
func (d *FFmpeg) readStdout() {
	defer close(d.pcm)

	discard := false
	buf := make([]byte, pcmReadSize)
	for {
		n, err := d.stdout.Read(buf)
		if n > 0 && !discard {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case d.pcm <- chunk:
			default:
				select {
				case d.pcm <- chunk:
				case <-d.quit:
					discard = true
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				d.logger.WithError(err).Debug("Decoder stdout read ended")
			}
			return
		}
	}
}

// readStderr surfaces decoder diagnostics as warnings, line by line. Decoder
// stderr output is never fatal to the session.
func (d *FFmpeg) readStderr() {
	scanner := bufio.NewScanner(d.stderr)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			d.logger.WithField("decoder", d.cfg.Path).Warn(line)
		}
	}
}

// waitExit reaps the child and records its exit status.
func (d *FFmpeg) waitExit() {
	err := d.cmd.Wait()
	d.exitErr = err
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			d.logger.WithField("exit_code", exitErr.ExitCode()).Warn("Decoder process exited with error")
		} else {
			d.logger.WithError(err).Warn("Decoder process wait failed")
		}
	} else {
		d.logger.Debug("Decoder process exited normally")
	}
	close(d.exited)
}
