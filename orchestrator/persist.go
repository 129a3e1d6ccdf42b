package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Persist writes rec as indented JSON under outputsRoot and returns the path.
// Files are named after the track id and the analysis time.
func Persist(outputsRoot string, rec AnalysisRecord) (string, error) {
	if err := os.MkdirAll(outputsRoot, 0o755); err != nil {
		return "", err
	}
	ts := rec.Timestamp.Format("20060102-150405")
	path := filepath.Join(outputsRoot, rec.TrackID+"_"+ts+".json")
	if err := writeJSON(path, rec); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
