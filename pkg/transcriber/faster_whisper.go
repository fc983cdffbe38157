package transcriber

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/livecaster/liveasr/internal/config"
)

// fasterWhisperScript runs one transcription in a helper process: float32
// samples on stdin, call configuration as the single argument, JSON result
// on stdout.
const fasterWhisperScript = `
import sys, json
import numpy as np
from faster_whisper import WhisperModel

cfg = json.loads(sys.argv[1])
audio = np.frombuffer(sys.stdin.buffer.read(), dtype=np.float32)

model = WhisperModel(cfg["model"], device=cfg["device"], compute_type=cfg["compute_type"])
kwargs = dict(cfg.get("params") or {})
kwargs["beam_size"] = cfg["beam_size"]
kwargs["language"] = cfg["language"]
if cfg.get("initial_prompt"):
    kwargs["initial_prompt"] = cfg["initial_prompt"]
    kwargs["condition_on_previous_text"] = True
else:
    kwargs["condition_on_previous_text"] = False

segments, _ = model.transcribe(audio, **kwargs)
text = "".join(segment.text for segment in segments)
json.dump({"text": text}, sys.stdout)
`

// fasterWhisperCall is the configuration document handed to the helper.
type fasterWhisperCall struct {
	Model         string                 `json:"model"`
	Device        string                 `json:"device"`
	ComputeType   string                 `json:"compute_type"`
	BeamSize      int                    `json:"beam_size"`
	Language      string                 `json:"language"`
	InitialPrompt string                 `json:"initial_prompt,omitempty"`
	Params        map[string]interface{} `json:"params,omitempty"`
}

// fasterWhisperResult is the helper's stdout document.
type fasterWhisperResult struct {
	Text string `json:"text"`
}

// FasterWhisper transcribes via a faster-whisper helper process, one
// invocation per utterance. The model itself is cached on disk by
// faster-whisper between invocations.
type FasterWhisper struct {
	modelName   string
	device      string
	computeType string
	pythonPath  string
	ready       bool
}

// NewFasterWhisper creates a faster-whisper transcriber, verifying the
// Python environment up front so a missing install fails at startup rather
// than on the first utterance.
func NewFasterWhisper(modelName, pythonPath string) (*FasterWhisper, error) {
	if modelName == "" {
		modelName = "large-v3"
	}

	if pythonPath == "" {
		var err error
		pythonPath, err = exec.LookPath("python3")
		if err != nil {
			pythonPath, err = exec.LookPath("python")
			if err != nil {
				return nil, fmt.Errorf("python executable not found in PATH: %w", err)
			}
		}
	}

	check := exec.Command(pythonPath, "-c", "import faster_whisper")
	if err := check.Run(); err != nil {
		return nil, fmt.Errorf("faster-whisper not installed (pip install faster-whisper): %w", err)
	}

	ft := &FasterWhisper{
		modelName:   modelName,
		device:      envOr("FASTER_WHISPER_DEVICE", "auto"),
		computeType: envOr("FASTER_WHISPER_COMPUTE_TYPE", "float16"),
		pythonPath:  pythonPath,
		ready:       true,
	}

	logrus.WithFields(logrus.Fields{
		"python":       ft.pythonPath,
		"model":        ft.modelName,
		"device":       ft.device,
		"compute_type": ft.computeType,
	}).Info("FasterWhisper transcriber initialized")
	return ft, nil
}

// Transcribe runs one helper invocation. Beam size and language are fixed;
// opts.Params rides along into the model call.
func (ft *FasterWhisper) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	call := fasterWhisperCall{
		Model:         ft.modelName,
		Device:        ft.device,
		ComputeType:   ft.computeType,
		BeamSize:      config.WhisperBeamSize,
		Language:      config.TargetLanguage,
		InitialPrompt: opts.PreviousText,
		Params:        opts.Params,
	}
	cfgJSON, err := json.Marshal(call)
	if err != nil {
		return "", fmt.Errorf("marshal call config: %w", err)
	}

	// #nosec G204 - python path comes from server configuration
	cmd := exec.CommandContext(ctx, ft.pythonPath, "-c", fasterWhisperScript, string(cfgJSON))
	cmd.Stdin = bytes.NewReader(floatsToBytes(samples))

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		logrus.WithFields(logrus.Fields{
			"error":  err,
			"stderr": errBuf.String(),
		}).Error("FasterWhisper transcription failed")
		return "", fmt.Errorf("faster-whisper: %w", err)
	}

	var result fasterWhisperResult
	if err := json.Unmarshal(outBuf.Bytes(), &result); err != nil {
		return "", fmt.Errorf("parse faster-whisper output: %w", err)
	}
	return result.Text, nil
}

// IsReady reports whether the startup environment check succeeded.
func (ft *FasterWhisper) IsReady() bool { return ft.ready }

// Close releases nothing; each invocation is self-contained.
func (ft *FasterWhisper) Close() error { return nil }

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// floatsToBytes encodes samples as little-endian float32, the layout the
// helper reads with numpy.
func floatsToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
