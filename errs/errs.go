// Package errs holds the error taxonomy shared by the analysis pipeline,
// the range streamer and the search facade.
//
// Errors are tagged with one of the sentinel markers below via Wrap and
// classified later with errors.Is.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrConversion          = errors.New("conversion error")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrUnexpectedResponse  = errors.New("unexpected response")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrTranscription       = errors.New("transcription failed")
	ErrClassification      = errors.New("classification failed")
)

// Wrap builds an error message that includes stage context while tagging it
// with marker. A nil marker leaves the error untagged beyond its cause.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	switch {
	case marker == nil && err == nil:
		return errors.New(detail)
	case marker == nil:
		return fmt.Errorf("%s: %w", detail, err)
	case err == nil:
		return fmt.Errorf("%w: %s", marker, detail)
	default:
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
}

// HTTPStatus maps a tagged error to the status code reported to clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
