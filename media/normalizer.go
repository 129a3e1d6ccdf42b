package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/audio-analyzer/errs"
)

// DerivedSuffix is appended to a source path to name its canonical waveform.
const DerivedSuffix = ".wav"

// Normalizer converts arbitrary media into mono 16-bit PCM WAV via ffmpeg.
type Normalizer struct {
	binary     string
	sampleRate int
	channels   int
	log        logrus.FieldLogger
}

func NewNormalizer(binary string, sampleRate, channels int, log logrus.FieldLogger) *Normalizer {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Normalizer{binary: binary, sampleRate: sampleRate, channels: channels, log: log.WithField("component", "normalizer")}
}

// DerivedPath names the waveform Normalize writes for src.
func DerivedPath(src string) string { return src + DerivedSuffix }

// Normalize writes the canonical waveform next to src and returns its path.
// The caller owns the returned file. On failure no derived file is left behind.
func (n *Normalizer) Normalize(ctx context.Context, src string) (string, error) {
	out := DerivedPath(src)
	bin, err := exec.LookPath(n.binary)
	if err != nil {
		return "", errs.Wrap(errs.ErrConversion, "normalize", n.binary, "transcoder not available", err)
	}

	args := []string{
		"-y", "-i", src,
		"-ac", strconv.Itoa(n.channels),
		"-ar", strconv.Itoa(n.sampleRate),
		"-sample_fmt", "s16",
		out,
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		removeQuietly(out)
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "ffmpeg conversion failed"
		}
		return "", errs.Wrap(errs.ErrConversion, "normalize", n.binary, msg, err)
	}
	if _, err := os.Stat(out); err != nil {
		return "", errs.Wrap(errs.ErrConversion, "normalize", n.binary, "no output produced", err)
	}
	n.log.WithField("file", out).Debug("media normalized")
	return out, nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).WithField("file", path).Warn("remove derived file")
	}
}
