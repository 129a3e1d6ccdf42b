package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata is best-effort container metadata. Nil fields are unknown.
type Metadata struct {
	Duration *float64 // seconds, 3 decimals
	BitRate  *int     // kbit/s
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type probeResult struct {
	Format probeFormat `json:"format"`
}

// Prober reads duration and bit rate with ffprobe.
type Prober struct {
	binary string
}

func NewProber(binary string) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary}
}

// Probe inspects the first audio stream of path.
func (p *Prober) Probe(ctx context.Context, path string) (Metadata, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Metadata{}, errors.New("ffprobe: empty path")
	}
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (Metadata, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return Metadata{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	var md Metadata
	if d, ok := parseFloat(result.Format.Duration); ok {
		d = math.Round(d*1000) / 1000
		md.Duration = &d
	}
	if b, ok := parseFloat(result.Format.BitRate); ok {
		kbps := int(math.Round(b / 1000))
		md.BitRate = &kbps
	}
	return md, nil
}

func parseFloat(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}
