package clients

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/maastricht-university/audio-analyzer/errs"
)

// ChunkOpts controls chunked long-form decoding on the speech service.
type ChunkOpts struct {
	ChunkLength float64 // sec
	StrideLeft  float64 // sec
	StrideRight float64 // sec
}

// Speech is a loaded speech recognition model.
type Speech struct {
	h     *HTTP
	url   string
	model string
}

// LoadSpeech loads model on the speech service at url.
func LoadSpeech(ctx context.Context, h *HTTP, url, model string) (*Speech, error) {
	if err := h.load(ctx, "asr", url, model); err != nil {
		return nil, err
	}
	return &Speech{h: h, url: url, model: model}, nil
}

func (s *Speech) Model() string { return s.model }

// Transcribe sends mono float32 samples as little-endian PCM.
func (s *Speech) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts ChunkOpts) (Transcription, error) {
	var body bytes.Buffer
	body.Grow(len(samples) * 4)
	if err := binary.Write(&body, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("asr encode: %w", err)
	}

	q := url.Values{}
	q.Set("sampling_rate", strconv.Itoa(sampleRate))
	q.Set("chunk_length_s", strconv.FormatFloat(opts.ChunkLength, 'f', -1, 64))
	q.Set("stride_left_s", strconv.FormatFloat(opts.StrideLeft, 'f', -1, 64))
	q.Set("stride_right_s", strconv.FormatFloat(opts.StrideRight, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/transcribe?"+q.Encode(), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.h.c.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, "asr", "transcribe", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("asr read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Wrap(errs.ErrUnexpectedResponse, "asr", "transcribe", resp.Status+": "+strings.TrimSpace(string(raw)), nil)
	}
	return DecodeTranscription(raw)
}

// Transcription is one of PlainText, StructuredText or Segments.
type Transcription interface {
	Text() string
	isTranscription()
}

// PlainText is a bare string response.
type PlainText string

// StructuredText is an object response carrying a primary text field.
type StructuredText struct {
	Value string
}

type TransSeg struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Segments is an ordered list of timed segments.
type Segments []TransSeg

func (t PlainText) Text() string      { return strings.TrimSpace(string(t)) }
func (t StructuredText) Text() string { return strings.TrimSpace(t.Value) }

// Text orders segments by start offset and joins them with single spaces.
func (s Segments) Text() string {
	ordered := append(Segments(nil), s...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })
	parts := make([]string, 0, len(ordered))
	for _, seg := range ordered {
		parts = append(parts, seg.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (PlainText) isTranscription()      {}
func (StructuredText) isTranscription() {}
func (Segments) isTranscription()       {}

type asrObject struct {
	Text       string          `json:"text"`
	Transcript string          `json:"transcript"`
	Segments   json.RawMessage `json:"segments"`
}

// DecodeTranscription classifies a raw speech service response.
func DecodeTranscription(raw []byte) (Transcription, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errs.Wrap(errs.ErrUnexpectedResponse, "asr", "decode", "empty response", nil)
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, errs.Wrap(errs.ErrUnexpectedResponse, "asr", "decode", "", err)
		}
		return PlainText(s), nil
	case '[':
		var segs Segments
		if err := json.Unmarshal(trimmed, &segs); err != nil {
			return nil, errs.Wrap(errs.ErrUnexpectedResponse, "asr", "decode", "segment list", err)
		}
		return segs, nil
	case '{':
		var obj asrObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, errs.Wrap(errs.ErrUnexpectedResponse, "asr", "decode", "", err)
		}
		if obj.Text != "" {
			return StructuredText{Value: obj.Text}, nil
		}
		if obj.Transcript != "" {
			return StructuredText{Value: obj.Transcript}, nil
		}
		if seg := bytes.TrimSpace(obj.Segments); len(seg) > 0 && seg[0] == '[' {
			var segs Segments
			if err := json.Unmarshal(seg, &segs); err != nil {
				return nil, errs.Wrap(errs.ErrUnexpectedResponse, "asr", "decode", "segment list", err)
			}
			return segs, nil
		}
	}
	return nil, errs.Wrap(errs.ErrUnexpectedResponse, "asr", "decode", "unexpected transcription response", nil)
}
