package audio

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/livecaster/liveasr/internal/config"
)

// Spectral gate parameters. 512 samples at 16 kHz is a 32 ms analysis frame.
const (
	gateFrameSize  = 512
	gateHopSize    = gateFrameSize / 2
	gateNoiseScale = 1.5
)

// Band-pass corner frequencies for telephone-band speech.
const (
	bandLowHz  = 300.0
	bandHighHz = 3400.0
)

var errTooShort = errors.New("audio shorter than one analysis frame")

// Preprocess converts an utterance of raw PCM into normalized float samples
// and applies the enhancement chain (spectral noise gate, then a 5th-order
// Butterworth band-pass). On any enhancement failure the unfiltered
// normalized samples are returned instead.
func Preprocess(pcm []byte) []float32 {
	samples := Normalize(pcm)
	enhanced, err := enhance(samples)
	if err != nil {
		logrus.WithError(err).Warn("Audio enhancement failed, using unfiltered samples")
		return samples
	}
	return enhanced
}

// Normalize converts 16-bit little-endian PCM to float32 samples in [-1, 1].
func Normalize(pcm []byte) []float32 {
	ints := bytesToInt16(pcm)
	samples := make([]float32, len(ints))
	for i, v := range ints {
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

func enhance(samples []float32) ([]float32, error) {
	reduced, err := spectralGate(samples)
	if err != nil {
		return nil, err
	}
	return bandPass(reduced), nil
}

// spectralGate attenuates frequency bins whose magnitude stays near the
// per-bin noise floor, estimated as the minimum magnitude observed across
// all analysis frames of the utterance.
func spectralGate(samples []float32) ([]float32, error) {
	n := len(samples)
	if n < gateFrameSize {
		return nil, errTooShort
	}

	window := hannWindow(gateFrameSize)
	fft := fourier.NewFFT(gateFrameSize)
	bins := gateFrameSize/2 + 1

	frameCount := 1 + (n-gateFrameSize)/gateHopSize
	spectra := make([][]complex128, frameCount)
	noiseFloor := make([]float64, bins)
	for i := range noiseFloor {
		noiseFloor[i] = math.Inf(1)
	}

	frame := make([]float64, gateFrameSize)
	for f := 0; f < frameCount; f++ {
		start := f * gateHopSize
		for i := 0; i < gateFrameSize; i++ {
			frame[i] = float64(samples[start+i]) * window[i]
		}
		coeffs := fft.Coefficients(nil, frame)
		spectra[f] = coeffs
		for i, c := range coeffs {
			if mag := cmplxAbs(c); mag < noiseFloor[i] {
				noiseFloor[i] = mag
			}
		}
	}

	acc := make([]float64, n)
	weight := make([]float64, n)
	inv := make([]float64, gateFrameSize)
	for f := 0; f < frameCount; f++ {
		coeffs := spectra[f]
		for i, c := range coeffs {
			mag := cmplxAbs(c)
			threshold := noiseFloor[i] * gateNoiseScale
			if mag <= threshold || mag == 0 {
				coeffs[i] = 0
				continue
			}
			// Soft gain keeps strong bins intact and fades weak ones.
			gain := 1 - threshold/mag
			coeffs[i] = complex(real(c)*gain, imag(c)*gain)
		}
		fft.Sequence(inv, coeffs)
		start := f * gateHopSize
		for i := 0; i < gateFrameSize; i++ {
			// The inverse transform is unnormalized.
			acc[start+i] += inv[i] / gateFrameSize
			weight[start+i] += window[i]
		}
	}

	// Divide by the summed window weight so the utterance edges, covered by
	// a single Hann taper, are not attenuated. Samples with no meaningful
	// coverage (the very first, plus anything past the last full frame)
	// pass through unprocessed.
	out := make([]float32, n)
	for i := range out {
		if weight[i] > 1e-6 {
			out[i] = float32(acc[i] / weight[i])
		} else {
			out[i] = samples[i]
		}
	}
	return out, nil
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

// bandPass applies a 5th-order Butterworth band-pass (300 Hz - 3400 Hz)
// realized as cascaded high-pass and low-pass sections. Odd-order
// Butterworth factors into one first-order section and biquads with the
// standard pole Q values.
func bandPass(samples []float32) []float32 {
	out := make([]float32, len(samples))
	copy(out, samples)

	// Butterworth pole Qs for order 5.
	qs := []float64{0.6180, 1.6180}

	for _, q := range qs {
		applyBiquad(out, highPassBiquad(bandLowHz, config.SampleRate, q))
		applyBiquad(out, lowPassBiquad(bandHighHz, config.SampleRate, q))
	}
	applyFirstOrder(out, bandLowHz, config.SampleRate, true)
	applyFirstOrder(out, bandHighHz, config.SampleRate, false)
	return out
}

type biquad struct {
	b0, b1, b2, a1, a2 float64
}

func lowPassBiquad(freq, sampleRate, q float64) biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosW0) / 2 / a0,
		b1: (1 - cosW0) / a0,
		b2: (1 - cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

func highPassBiquad(freq, sampleRate, q float64) biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosW0) / 2 / a0,
		b1: -(1 + cosW0) / a0,
		b2: (1 + cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

func applyBiquad(samples []float32, f biquad) {
	var x1, x2, y1, y2 float64
	for i, s := range samples {
		x := float64(s)
		y := f.b0*x + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		samples[i] = float32(y)
	}
}

// applyFirstOrder applies a one-pole high-pass or low-pass section.
func applyFirstOrder(samples []float32, freq, sampleRate float64, highPass bool) {
	w0 := 2 * math.Pi * freq / sampleRate
	k := math.Tan(w0 / 2)
	a0 := k + 1
	var b0, b1 float64
	if highPass {
		b0, b1 = 1/a0, -1/a0
	} else {
		b0, b1 = k/a0, k/a0
	}
	a1 := (k - 1) / a0

	var x1, y1 float64
	for i, s := range samples {
		x := float64(s)
		y := b0*x + b1*x1 - a1*y1
		x1, y1 = x, y
		samples[i] = float32(y)
	}
}
