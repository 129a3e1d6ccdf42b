// Package emotion maps raw classifier labels onto the canonical emotion set
// and ranks classifier observations.
//
// Classifier checkpoints disagree on vocabulary: some emit English words in
// varying case, some emit LABEL_<n> placeholders, some ship their own
// index-to-label table. Resolve hides that variation so aggregation only sees
// canonical labels when a mapping exists.
package emotion

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	Anger    = "Anger"
	Disgust  = "Disgust"
	Fear     = "Fear"
	Joy      = "Joy"
	Sadness  = "Sadness"
	Surprise = "Surprise"
)

// Canonical lists the canonical labels in positional order.
var Canonical = []string{Anger, Disgust, Fear, Joy, Sadness, Surprise}

// aliases is keyed by the normalization key: lowercased, underscores as spaces.
var aliases = map[string]string{
	"anger":     Anger,
	"angry":     Anger,
	"label 0":   Anger,
	"disgust":   Disgust,
	"label 1":   Disgust,
	"fear":      Fear,
	"fearful":   Fear,
	"label 2":   Fear,
	"joy":       Joy,
	"joyful":    Joy,
	"label 3":   Joy,
	"sadness":   Sadness,
	"sad":       Sadness,
	"label 4":   Sadness,
	"surprise":  Surprise,
	"surprised": Surprise,
	"label 5":   Surprise,
}

// LabelSource exposes a classifier's own label configuration.
type LabelSource interface {
	// LabelForIndex returns the label configured for a class index.
	LabelForIndex(index int) (string, bool)
	// LabelForKey looks a label up by its raw configuration key.
	LabelForKey(key string) (string, bool)
}

func normalizeKey(label string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(label, "_", " ")))
}

// Canonicalize applies the alias table only. Unknown labels come back trimmed.
func Canonicalize(label string) string {
	if canonical, ok := aliases[normalizeKey(label)]; ok {
		return canonical
	}
	return strings.TrimSpace(label)
}

// Resolve maps a raw classifier label to a canonical label. src may be nil.
// Labels that cannot be resolved are returned trimmed but otherwise verbatim.
func Resolve(raw string, src LabelSource) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if canonical := Canonicalize(trimmed); canonical != trimmed {
		return canonical
	}
	if src == nil || !strings.HasPrefix(strings.ToLower(trimmed), "label_") {
		return trimmed
	}

	suffix := trimmed[len("label_"):]
	var candidates []string
	if idx, err := strconv.Atoi(suffix); err == nil {
		if label, ok := src.LabelForIndex(idx); ok {
			candidates = append(candidates, label)
		}
		if idx >= 0 && idx < len(Canonical) {
			candidates = append(candidates, Canonical[idx])
		}
	}
	if label, ok := src.LabelForKey(suffix); ok {
		candidates = append(candidates, label)
	}
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) != "" {
			return Canonicalize(candidate)
		}
	}
	return trimmed
}

// Observation is one raw classifier output.
type Observation struct {
	Label string
	Score float64
}

// Resolved is a canonicalized, deduplicated emotion.
type Resolved struct {
	Label string
	Score float64
}

// Rank resolves every observation, keeps the highest score per label, sorts
// by descending score and returns at most limit entries. Scores are clamped
// to [0,1] but not rounded. Observations with an empty label are ignored.
func Rank(obs []Observation, src LabelSource, limit int) []Resolved {
	resolved := make([]Resolved, 0, len(obs))
	index := make(map[string]int, len(obs))
	for _, o := range obs {
		if strings.TrimSpace(o.Label) == "" {
			continue
		}
		label := Resolve(o.Label, src)
		score := clamp(o.Score)
		if i, seen := index[label]; seen {
			if score > resolved[i].Score {
				resolved[i].Score = score
			}
			continue
		}
		index[label] = len(resolved)
		resolved = append(resolved, Resolved{Label: label, Score: score})
	}

	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].Score > resolved[j].Score })
	if limit >= 0 && len(resolved) > limit {
		resolved = resolved[:limit]
	}
	return resolved
}

// Round4 rounds to four decimal places.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
