// Package media wraps the external media tools and WAV decoding.
//
// Key types:
//   - Normalizer: runs ffmpeg to produce mono 16 kHz 16-bit PCM next to the source
//   - Prober: best-effort duration and bit rate via ffprobe
//   - Waveform: decoded mono samples scaled to the sample width
//
// Both external tools are optional at runtime. A missing ffprobe only loses
// metadata; a missing ffmpeg fails conversion with errs.ErrConversion.
package media
