package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/maastricht-university/audio-analyzer/errs"
	"github.com/maastricht-university/audio-analyzer/logging"
)

// writeRawWAV writes a minimal RIFF/WAVE file with the given PCM payload.
func writeRawWAV(t *testing.T, path string, format, channels, bits uint16, rate uint32, data []byte) {
	t.Helper()
	var b bytes.Buffer
	blockAlign := channels * (bits / 8)
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, format)
	_ = binary.Write(&b, binary.LittleEndian, channels)
	_ = binary.Write(&b, binary.LittleEndian, rate)
	_ = binary.Write(&b, binary.LittleEndian, rate*uint32(blockAlign))
	_ = binary.Write(&b, binary.LittleEndian, blockAlign)
	_ = binary.Write(&b, binary.LittleEndian, bits)
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func approx(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-4 }

func TestDecodeWaveform16BitStereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 16000},
		Data:           []int{32767, 32767, 32767, -32767, 0, -32767},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	_ = f.Close()

	w, err := DecodeWaveform(path)
	if err != nil {
		t.Fatalf("DecodeWaveform: %v", err)
	}
	if w.SampleRate != 16000 {
		t.Fatalf("unexpected sample rate %d", w.SampleRate)
	}
	want := []float32{1, 0, -0.5}
	if len(w.Samples) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(w.Samples))
	}
	for i := range want {
		if !approx(w.Samples[i], want[i]) {
			t.Fatalf("sample %d = %v, want %v", i, w.Samples[i], want[i])
		}
	}
}

func TestDecodeWaveformWidths(t *testing.T) {
	dir := t.TempDir()

	eight := filepath.Join(dir, "u8.wav")
	writeRawWAV(t, eight, 1, 1, 8, 8000, []byte{128, 255, 1})
	w, err := DecodeWaveform(eight)
	if err != nil {
		t.Fatalf("8-bit: %v", err)
	}
	if !approx(w.Samples[0], 0) || !approx(w.Samples[1], 1) || !approx(w.Samples[2], -1) {
		t.Fatalf("8-bit samples %v", w.Samples)
	}

	twentyFour := filepath.Join(dir, "s24.wav")
	// 0x3FFFFF is just under half scale.
	writeRawWAV(t, twentyFour, 1, 1, 24, 16000, []byte{0xFF, 0xFF, 0x3F, 0x00, 0x00, 0x00})
	w, err = DecodeWaveform(twentyFour)
	if err != nil {
		t.Fatalf("24-bit: %v", err)
	}
	if !approx(w.Samples[0], 0.5) || !approx(w.Samples[1], 0) {
		t.Fatalf("24-bit samples %v", w.Samples)
	}

	thirtyTwo := filepath.Join(dir, "s32.wav")
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 0x80000001) // -2147483647
	writeRawWAV(t, thirtyTwo, 1, 1, 32, 16000, data)
	w, err = DecodeWaveform(thirtyTwo)
	if err != nil {
		t.Fatalf("32-bit: %v", err)
	}
	if !approx(w.Samples[0], -1) {
		t.Fatalf("32-bit samples %v", w.Samples)
	}
}

func TestDecodeWaveformUnsupportedWidth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s40.wav")
	writeRawWAV(t, path, 1, 1, 40, 16000, make([]byte, 10))
	_, err := DecodeWaveform(path)
	if !errors.Is(err, errs.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestDecodeWaveformRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeWaveform(path); !errors.Is(err, errs.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestParseProbe(t *testing.T) {
	md, err := parseProbe([]byte(`{"format":{"duration":"183.456789","bit_rate":"320499"}}`))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if md.Duration == nil || *md.Duration != 183.457 {
		t.Fatalf("unexpected duration %v", md.Duration)
	}
	if md.BitRate == nil || *md.BitRate != 320 {
		t.Fatalf("unexpected bit rate %v", md.BitRate)
	}

	md, err = parseProbe([]byte(`{"format":{"duration":"N/A"}}`))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if md.Duration != nil || md.BitRate != nil {
		t.Fatalf("expected empty metadata, got %+v", md)
	}

	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProbeMissingBinary(t *testing.T) {
	p := NewProber(filepath.Join(t.TempDir(), "no-ffprobe"))
	if _, err := p.Probe(context.Background(), "/tmp/x"); err == nil {
		t.Fatal("expected error for missing ffprobe")
	}
}

func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func TestNormalizeWritesDerivedFile(t *testing.T) {
	bin := fakeTool(t, `for last; do :; done
case "$*" in
  *"-ac 1 -ar 16000 -sample_fmt s16"*) echo pcm > "$last" ;;
  *) echo "bad args: $*" >&2; exit 1 ;;
esac
`)
	src := filepath.Join(t.TempDir(), "0123abcd")
	if err := os.WriteFile(src, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	n := NewNormalizer(bin, 16000, 1, logging.Discard())
	out, err := n.Normalize(context.Background(), src)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out != src+".wav" {
		t.Fatalf("unexpected derived path %q", out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("derived file missing: %v", err)
	}
}

func TestNormalizeFailureCarriesDiagnostics(t *testing.T) {
	bin := fakeTool(t, `for last; do :; done
echo partial > "$last"
echo "Invalid data found when processing input" >&2
exit 1
`)
	src := filepath.Join(t.TempDir(), "broken")
	n := NewNormalizer(bin, 16000, 1, logging.Discard())
	_, err := n.Normalize(context.Background(), src)
	if !errors.Is(err, errs.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected ffmpeg stderr in error, got %q", err.Error())
	}
	if _, statErr := os.Stat(DerivedPath(src)); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial output removed, stat err=%v", statErr)
	}
}

func TestNormalizeMissingBinary(t *testing.T) {
	n := NewNormalizer(filepath.Join(t.TempDir(), "nope"), 16000, 1, logging.Discard())
	if _, err := n.Normalize(context.Background(), "/tmp/x"); !errors.Is(err, errs.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
}
