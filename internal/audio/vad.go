// Package audio implements the voice-activity detector, the utterance
// segmenter and the transcription preprocessing chain. All PCM passing
// through this package is 16-bit signed little-endian, mono, 16 kHz.
package audio

import (
	"encoding/binary"
	"math"
)

// energyThresholds indexes the minimum frame RMS by aggressiveness.
// Aggressiveness 3 is the most restrictive.
var energyThresholds = [4]float64{0.005, 0.010, 0.020, 0.030}

// zcrLimit rejects frames whose zero-crossing rate is too high to be voiced
// speech (fricative-only or broadband noise frames).
const zcrLimit = 0.35

// noiseMargin is how far above the background estimate a frame must sit.
const noiseMargin = 3.0

// VAD classifies fixed-size PCM frames as speech or silence. It keeps a
// running background-noise estimate so the effective threshold adapts to the
// stream; the estimate only moves during silence.
type VAD struct {
	aggressiveness  int
	energyThreshold float64
	noiseLevel      float64
	smoothingFactor float64
}

// NewVAD creates a detector at the given aggressiveness (0..3, clamped).
func NewVAD(aggressiveness int) *VAD {
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 3 {
		aggressiveness = 3
	}
	return &VAD{
		aggressiveness:  aggressiveness,
		energyThreshold: energyThresholds[aggressiveness],
		noiseLevel:      0.001,
		smoothingFactor: 0.1,
	}
}

// IsSpeech reports whether a single frame contains voiced speech.
func (v *VAD) IsSpeech(frame []byte) bool {
	samples := bytesToInt16(frame)
	if len(samples) == 0 {
		return false
	}

	energy := calculateRMS(samples)
	zcr := calculateZeroCrossingRate(samples)

	speech := energy >= v.energyThreshold &&
		energy >= v.noiseLevel*noiseMargin &&
		zcr <= zcrLimit

	if !speech && energy < v.energyThreshold*2 {
		// Exponential smoothing of the background estimate.
		v.noiseLevel = v.smoothingFactor*energy + (1-v.smoothingFactor)*v.noiseLevel
	}
	return speech
}

// Reset restores the initial background-noise estimate.
func (v *VAD) Reset() {
	v.noiseLevel = 0.001
}

// bytesToInt16 converts little-endian PCM bytes to int16 samples.
func bytesToInt16(pcm []byte) []int16 {
	if len(pcm)%2 != 0 {
		return nil
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// calculateRMS returns the root-mean-square energy of normalized samples.
func calculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range samples {
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// calculateZeroCrossingRate returns how often the signal changes sign.
func calculateZeroCrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
