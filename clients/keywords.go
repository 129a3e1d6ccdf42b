package clients

import (
	"context"
	"encoding/json"

	"github.com/maastricht-university/audio-analyzer/errs"
)

// --- Keywords (/extract) ---
type KeywordReq struct {
	Text       string  `json:"text"`
	TopN       int     `json:"top_n"`
	NgramRange [2]int  `json:"keyphrase_ngram_range"`
	StopWords  string  `json:"stop_words,omitempty"`
	UseMMR     bool    `json:"use_mmr"`
	Diversity  float64 `json:"diversity,omitempty"`
}

// Keyphrase is a ranked phrase with its relevance score.
type Keyphrase struct {
	Phrase string
	Score  float64
}

// UnmarshalJSON accepts both ["phrase", 0.42] pairs and {"phrase":..,"score":..} objects.
func (k *Keyphrase) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err == nil {
		if len(pair) != 2 {
			return errs.Wrap(errs.ErrUnexpectedResponse, "keywords", "decode", "pair must have two elements", nil)
		}
		if err := json.Unmarshal(pair[0], &k.Phrase); err != nil {
			return err
		}
		return json.Unmarshal(pair[1], &k.Score)
	}
	var obj struct {
		Phrase  string  `json:"phrase"`
		Keyword string  `json:"keyword"`
		Score   float64 `json:"score"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	k.Phrase, k.Score = obj.Phrase, obj.Score
	if k.Phrase == "" {
		k.Phrase = obj.Keyword
	}
	return nil
}

type KeywordResp struct {
	Keywords []Keyphrase `json:"keywords"`
}

// Keywords is a loaded keyphrase extraction model.
type Keywords struct {
	h     *HTTP
	url   string
	model string
}

// LoadKeywords loads model on the keyword service at url.
func LoadKeywords(ctx context.Context, h *HTTP, url, model string) (*Keywords, error) {
	if err := h.load(ctx, "keywords", url, model); err != nil {
		return nil, err
	}
	return &Keywords{h: h, url: url, model: model}, nil
}

func (k *Keywords) Model() string { return k.model }

// Extract returns ranked keyphrases for req.Text.
func (k *Keywords) Extract(ctx context.Context, req KeywordReq) ([]Keyphrase, error) {
	var out KeywordResp
	if err := k.h.postJSON(ctx, "keywords", k.url+"/extract", req, &out); err != nil {
		return nil, err
	}
	return out.Keywords, nil
}
