package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaster/liveasr/internal/config"
)

// pcmSine generates raw PCM for a sine tone of the given duration.
func pcmSine(freqHz float64, amplitude int16, seconds float64) []byte {
	n := int(seconds * config.SampleRate)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sample := int16(float64(amplitude) * math.Sin(2*math.Pi*freqHz*float64(i)/float64(config.SampleRate)))
		// #nosec G115 - bit reinterpretation, not value conversion
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return pcm
}

// TestNormalizeRange verifies normalized samples stay in [-1, 1].
func TestNormalizeRange(t *testing.T) {
	pcm := pcmSine(440, 32000, 0.1)
	samples := Normalize(pcm)

	assert.Equal(t, len(pcm)/2, len(samples))
	for _, s := range samples {
		assert.LessOrEqual(t, float64(s), 1.0)
		assert.GreaterOrEqual(t, float64(s), -1.0)
	}
}

// TestPreprocessPreservesLength verifies the enhancement chain never changes
// the sample count.
func TestPreprocessPreservesLength(t *testing.T) {
	pcm := pcmSine(1000, 8000, 1.5)
	out := Preprocess(pcm)

	assert.Equal(t, len(pcm)/2, len(out))
	for _, s := range out {
		assert.False(t, math.IsNaN(float64(s)))
		assert.False(t, math.IsInf(float64(s), 0))
	}
}

// TestPreprocessShortInputFallsBack verifies input shorter than one analysis
// frame falls back to the unfiltered normalized samples.
func TestPreprocessShortInputFallsBack(t *testing.T) {
	pcm := pcmSine(440, 8000, 0.01) // 160 samples, below the 512 frame
	out := Preprocess(pcm)

	assert.Equal(t, Normalize(pcm), out)
}

// TestSpectralGatePreservesUtteranceOnset verifies the overlap-add
// reconstruction does not taper the first hop, where only one analysis
// window covers each sample. The trailing silence keeps the noise floor at
// zero so the tone itself passes the gate intact.
func TestSpectralGatePreservesUtteranceOnset(t *testing.T) {
	tone := Normalize(pcmSine(440, 8000, 0.1))
	signal := append(append([]float32{}, tone...), make([]float32, 1600)...)

	out, err := spectralGate(signal)
	require.NoError(t, err)
	require.Len(t, out, len(signal))

	energy := func(s []float32) float64 {
		var sum float64
		for _, v := range s {
			sum += float64(v) * float64(v)
		}
		return sum
	}

	onsetIn := energy(signal[:gateHopSize])
	onsetOut := energy(out[:gateHopSize])
	assert.Greater(t, onsetOut, onsetIn*0.7)
	assert.Less(t, onsetOut, onsetIn*1.3)
}

// TestBandPassAttenuatesOutOfBand verifies a tone far outside the passband
// loses most of its energy while an in-band tone survives.
func TestBandPassAttenuatesOutOfBand(t *testing.T) {
	inBand := Normalize(pcmSine(1000, 8000, 0.5))
	outOfBand := Normalize(pcmSine(60, 8000, 0.5))

	inBandOut := bandPass(inBand)
	outOfBandOut := bandPass(outOfBand)

	// Skip the filter warm-up region when measuring energy.
	energy := func(s []float32) float64 {
		var sum float64
		for _, v := range s[len(s)/2:] {
			sum += float64(v) * float64(v)
		}
		return sum
	}

	assert.Greater(t, energy(inBandOut), energy(inBand)*0.25)
	assert.Less(t, energy(outOfBandOut), energy(outOfBand)*0.05)
}
