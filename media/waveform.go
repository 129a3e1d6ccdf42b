package media

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/maastricht-university/audio-analyzer/errs"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Waveform is mono audio normalized to roughly [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// maxMagnitude is the largest positive value for each sample width in bytes.
var maxMagnitude = map[int]float64{
	1: 127,
	2: 32767,
	3: 8388607,
	4: 2147483647,
}

// DecodeWaveform reads a PCM WAV file, downmixes to mono by channel mean and
// scales samples by the maximum magnitude of the sample width.
func DecodeWaveform(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Waveform{}, errs.Wrap(errs.ErrUnsupportedFormat, "decode", "", "not a wav file", dec.Err())
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return Waveform{}, errs.Wrap(errs.ErrUnsupportedFormat, "decode", "",
			fmt.Sprintf("audio format %d", dec.WavAudioFormat), nil)
	}
	width := int(dec.BitDepth) / 8
	scale, ok := maxMagnitude[width]
	if !ok || int(dec.BitDepth)%8 != 0 {
		return Waveform{}, errs.Wrap(errs.ErrUnsupportedFormat, "decode", "",
			fmt.Sprintf("unsupported sample width: %d bits", dec.BitDepth), nil)
	}
	channels := int(dec.NumChans)
	if channels < 1 {
		return Waveform{}, errs.Wrap(errs.ErrUnsupportedFormat, "decode", "", "no channels", nil)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("decode pcm: %w", err)
	}

	// 8-bit WAV samples are unsigned.
	offset := 0
	if width == 1 {
		offset = 128
	}

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c] - offset
		}
		out[i] = float32(float64(sum) / float64(channels) / scale)
	}
	return Waveform{Samples: out, SampleRate: int(dec.SampleRate)}, nil
}
