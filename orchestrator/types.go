package orchestrator

import "time"

// TextAnalysis is the emotion and keyword signal derived from a transcript.
type TextAnalysis struct {
	Confidence      int                `json:"confidence"` // top emotion score, percent
	Keywords        []string           `json:"keywords"`
	Emotions        []string           `json:"emotions"`
	PrimaryEmotions []string           `json:"primaryEmotions"`
	Scores          map[string]float64 `json:"scores"` // canonical label -> max score
}

// AnalysisRecord is the result of analysing one upload.
type AnalysisRecord struct {
	FileName       string `json:"fileName"`
	StoredFileName string `json:"storedFileName,omitempty"`
	StoredPath     string `json:"storedPath,omitempty"`
	TrackID        string `json:"trackId"`
	Transcription  string `json:"transcription"`
	TextAnalysis
	Duration  *float64  `json:"duration,omitempty"` // seconds
	BitRate   *int      `json:"bitRate,omitempty"`  // kbit/s
	Timestamp time.Time `json:"timestamp"`
}

func emptyAnalysis() TextAnalysis {
	return TextAnalysis{
		Confidence:      100,
		Keywords:        []string{},
		Emotions:        []string{},
		PrimaryEmotions: []string{},
		Scores:          map[string]float64{},
	}
}
