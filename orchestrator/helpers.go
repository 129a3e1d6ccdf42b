package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// deriveTrackID keeps letters, digits, '-' and '_' from the stem of the
// original name, falling back to the stored file's stem.
func deriveTrackID(originalName, storedPath string) string {
	name := originalName
	if name == "" {
		name = filepath.Base(storedPath)
	}
	if id := sanitizeStem(name); id != "" {
		return id
	}
	return stem(filepath.Base(storedPath))
}

func sanitizeStem(name string) string {
	// Client names may use either separator.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, stem(name))
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func removeDerived(path string, log logrus.FieldLogger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).WithField("path", path).Warn("remove derived waveform")
	}
}
