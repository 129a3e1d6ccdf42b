package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/maastricht-university/audio-analyzer/errs"
)

// --- Emotion (/classify) ---
type EmoReq struct {
	Text string `json:"text"`
	TopK int    `json:"top_k"`
}
type EmoScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// EmoConfig is the classifier's label configuration as served by /config.
type EmoConfig struct {
	ID2Label map[string]string `json:"id2label"`
}

// Classifier is a loaded text emotion classifier.
type Classifier struct {
	h        *HTTP
	url      string
	model    string
	id2label map[string]string
}

// LoadClassifier loads model on the emotion service at url and fetches its
// label configuration. A missing /config is tolerated.
func LoadClassifier(ctx context.Context, h *HTTP, url, model string) (*Classifier, error) {
	if err := h.load(ctx, "emotion", url, model); err != nil {
		return nil, err
	}
	var conf EmoConfig
	if err := h.getJSON(ctx, "emotion config", url+"/config", &conf); err != nil {
		conf.ID2Label = nil
	}
	return &Classifier{h: h, url: url, model: model, id2label: conf.ID2Label}, nil
}

func (c *Classifier) Model() string { return c.model }

// Classify returns up to topK labeled scores for text.
func (c *Classifier) Classify(ctx context.Context, text string, topK int) ([]EmoScore, error) {
	var raw json.RawMessage
	if err := c.h.postJSON(ctx, "emotion", c.url+"/classify", EmoReq{Text: text, TopK: topK}, &raw); err != nil {
		return nil, err
	}
	return decodeScores(raw)
}

// decodeScores accepts a list of scores, a single score object, or a list
// wrapping one list per input.
func decodeScores(raw json.RawMessage) ([]EmoScore, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errs.Wrap(errs.ErrUnexpectedResponse, "emotion", "decode", "empty response", nil)
	}
	if trimmed[0] == '{' {
		var one EmoScore
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, errs.Wrap(errs.ErrUnexpectedResponse, "emotion", "decode", "", err)
		}
		return []EmoScore{one}, nil
	}

	var list []EmoScore
	if err := json.Unmarshal(trimmed, &list); err == nil {
		return list, nil
	}
	var nested [][]EmoScore
	if err := json.Unmarshal(trimmed, &nested); err != nil {
		return nil, errs.Wrap(errs.ErrUnexpectedResponse, "emotion", "decode", "", err)
	}
	if len(nested) == 0 {
		return nil, nil
	}
	return nested[0], nil
}

// LabelForIndex looks up the classifier's id2label entry for index.
func (c *Classifier) LabelForIndex(index int) (string, bool) {
	return c.LabelForKey(strconv.Itoa(index))
}

// LabelForKey looks up the classifier's id2label entry by raw key.
func (c *Classifier) LabelForKey(key string) (string, bool) {
	if c == nil || c.id2label == nil {
		return "", false
	}
	label, ok := c.id2label[strings.TrimSpace(key)]
	return label, ok && label != ""
}
