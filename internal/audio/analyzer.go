// Package audio extracts loudness and a voice heuristic from audio files.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hajimehoshi/go-mp3"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

// Frame parameters for loudness and spectral features.
const (
	FrameLength = 2048
	HopLength   = 512

	// Spectral centroid band treated as speech.
	VoiceCentroidMin = 1000.0
	VoiceCentroidMax = 4000.0
)

// ErrUnsupportedFormat is returned for audio the analyzer cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Analysis is the per-file summary stored next to the raw audio.
type Analysis struct {
	Duration            float64 `json:"duration"`
	RMSLoudness         float64 `json:"rms_loudness"`
	IsVoice             bool    `json:"is_voice"`
	RequiresAttribution bool    `json:"requires_attribution"`
	SampleRate          int     `json:"sample_rate"`
	Channels            int     `json:"channels"`
	Bitrate             *int    `json:"bitrate"`
}

// PCM is decoded audio mixed down to one channel, samples in [-1, 1].
type PCM struct {
	Mono       []float64
	SampleRate int
	Channels   int
}

// Analyzer decodes audio and computes an Analysis.
type Analyzer struct{}

// NewAnalyzer creates an analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze decodes data and summarises it.
func (a *Analyzer) Analyze(data []byte, requiresAttribution bool) (Analysis, error) {
	pcm, err := Decode(data)
	if err != nil {
		return Analysis{}, err
	}

	result, err := AnalyzePCM(pcm)
	if err != nil {
		return Analysis{}, err
	}
	result.RequiresAttribution = requiresAttribution
	if result.Duration > 0 {
		bitrate := int(math.Round(float64(len(data)) * 8 / result.Duration))
		result.Bitrate = &bitrate
	}
	return result, nil
}

// Decode turns an MP3 file into mono PCM.
func Decode(data []byte) (PCM, error) {
	if len(data) == 0 {
		return PCM{}, fmt.Errorf("decode audio: %w: empty input", ErrUnsupportedFormat)
	}
	if mt := mimetype.Detect(data); !mt.Is("audio/mpeg") {
		return PCM{}, fmt.Errorf("decode audio: %w: %s", ErrUnsupportedFormat, mt.String())
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}

	// go-mp3 always yields 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}

	frames := len(raw) / 4
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := int16(uint16(raw[4*i]) | uint16(raw[4*i+1])<<8)
		r := int16(uint16(raw[4*i+2]) | uint16(raw[4*i+3])<<8)
		mono[i] = (float64(l) + float64(r)) / 2 / 32768
	}

	return PCM{
		Mono:       mono,
		SampleRate: dec.SampleRate(),
		Channels:   mp3Channels(data),
	}, nil
}

// AnalyzePCM computes duration, mean frame RMS and the spectral-centroid
// voice heuristic.
func AnalyzePCM(pcm PCM) (Analysis, error) {
	if pcm.SampleRate <= 0 {
		return Analysis{}, fmt.Errorf("analyze audio: invalid sample rate %d", pcm.SampleRate)
	}
	if len(pcm.Mono) == 0 {
		return Analysis{}, errors.New("analyze audio: no samples")
	}

	frames := frameStarts(len(pcm.Mono))
	rms := make([]float64, len(frames))
	centroids := make([]float64, len(frames))

	fft := fourier.NewFFT(FrameLength)
	buf := make([]float64, FrameLength)
	var coeffs []complex128

	for i, start := range frames {
		end := min(start+FrameLength, len(pcm.Mono))
		clear(buf)
		copy(buf, pcm.Mono[start:end])

		rms[i] = frameRMS(pcm.Mono[start:end])

		window.Hann(buf)
		coeffs = fft.Coefficients(coeffs, buf)
		centroids[i] = spectralCentroid(fft, coeffs, float64(pcm.SampleRate))
	}

	centroid := stat.Mean(centroids, nil)
	return Analysis{
		Duration:    float64(len(pcm.Mono)) / float64(pcm.SampleRate),
		RMSLoudness: stat.Mean(rms, nil),
		IsVoice:     centroid >= VoiceCentroidMin && centroid <= VoiceCentroidMax,
		SampleRate:  pcm.SampleRate,
		Channels:    pcm.Channels,
	}, nil
}

// frameStarts returns the start offset of every analysis frame. A signal
// shorter than one frame is a single frame.
func frameStarts(n int) []int {
	if n <= FrameLength {
		return []int{0}
	}
	starts := make([]int, 0, (n-FrameLength)/HopLength+1)
	for s := 0; s+FrameLength <= n; s += HopLength {
		starts = append(starts, s)
	}
	return starts
}

func frameRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// spectralCentroid is the magnitude-weighted mean frequency. Silence is 0.
func spectralCentroid(fft *fourier.FFT, coeffs []complex128, sampleRate float64) float64 {
	var weighted, total float64
	for i, c := range coeffs {
		mag := math.Hypot(real(c), imag(c))
		weighted += fft.Freq(i) * sampleRate * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}
