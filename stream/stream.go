// Package stream serves stored audio with HTTP byte-range semantics.
package stream

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maastricht-university/audio-analyzer/errs"
	"github.com/maastricht-university/audio-analyzer/storage"
)

// ChunkSize bounds every chunk a Producer yields.
const ChunkSize = 64 * 1024

// Streamer reads files from a store. It never writes.
type Streamer struct {
	store *storage.Store
}

func New(store *storage.Store) *Streamer { return &Streamer{store: store} }

// Response is a fully described reply; Body is nil when there is no content.
type Response struct {
	Status int
	Header http.Header
	Body   *Producer
}

// Serve resolves name and an optional Range header value into a Response.
// Names are validated before any file-system access.
func (s *Streamer) Serve(name, rangeHeader string) (*Response, error) {
	path, err := s.store.Path(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrNotFound, "audio", "", name, nil)
		}
		return nil, fmt.Errorf("audio stat: %w", err)
	}
	if info.IsDir() {
		return nil, errs.Wrap(errs.ErrNotFound, "audio", "", name, nil)
	}
	size := info.Size()

	h := http.Header{}
	h.Set("Accept-Ranges", "bytes")

	if !strings.HasPrefix(rangeHeader, "bytes=") {
		h.Set("Content-Type", contentType(path))
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		return &Response{Status: http.StatusOK, Header: h, Body: newProducer(path, 0, size-1)}, nil
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		return nil, err
	}
	if start >= size || end >= size || start > end {
		return &Response{
			Status: http.StatusRequestedRangeNotSatisfiable,
			Header: http.Header{"Content-Range": {fmt.Sprintf("bytes */%d", size)}},
		}, nil
	}

	h.Set("Content-Type", contentType(path))
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	h.Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	return &Response{Status: http.StatusPartialContent, Header: h, Body: newProducer(path, start, end)}, nil
}

// parseRange reads "bytes=start-end". A missing start means 0 and a missing
// end means the last byte.
func parseRange(header string, size int64) (int64, int64, error) {
	spec := strings.TrimSpace(strings.TrimPrefix(header, "bytes="))
	startStr, endStr, _ := strings.Cut(spec, "-")

	start := int64(0)
	if startStr = strings.TrimSpace(startStr); startStr != "" {
		v, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, errs.Wrap(errs.ErrInvalidInput, "audio", "range", header, nil)
		}
		start = v
	}
	end := size - 1
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		v, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, errs.Wrap(errs.ErrInvalidInput, "audio", "range", header, nil)
		}
		end = v
	}
	return start, end, nil
}

// audioTypes covers formats missing from minimal system mime tables.
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".webm": "audio/webm",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if n == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(head[:n])
}

// Write sends the status, headers and body to w and reports body bytes written.
func (r *Response) Write(w http.ResponseWriter) (int64, error) {
	for k, v := range r.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(r.Status)
	if r.Body == nil {
		return 0, nil
	}
	defer r.Body.Close()

	var written int64
	for {
		chunk, err := r.Body.Next()
		if len(chunk) > 0 {
			n, werr := w.Write(chunk)
			written += int64(n)
			if werr != nil {
				return written, werr
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// Producer yields the bytes start..end inclusive of a file in chunks of at
// most ChunkSize. It opens the file on first use, stops early when the file
// is shorter than expected, and cannot be restarted.
type Producer struct {
	path      string
	start     int64
	remaining int64
	f         *os.File
	buf       []byte
	done      bool
}

func newProducer(path string, start, end int64) *Producer {
	return &Producer{path: path, start: start, remaining: end - start + 1}
}

// Next returns the next chunk, or io.EOF once the range is exhausted.
// The returned slice is only valid until the following call.
func (p *Producer) Next() ([]byte, error) {
	if p.done || p.remaining <= 0 {
		p.finish()
		return nil, io.EOF
	}
	if p.f == nil {
		f, err := os.Open(p.path)
		if err != nil {
			p.done = true
			return nil, err
		}
		if _, err := f.Seek(p.start, io.SeekStart); err != nil {
			f.Close()
			p.done = true
			return nil, err
		}
		p.f = f
		p.buf = make([]byte, ChunkSize)
	}

	want := int64(len(p.buf))
	if p.remaining < want {
		want = p.remaining
	}
	n, err := p.f.Read(p.buf[:want])
	p.remaining -= int64(n)
	if n > 0 {
		return p.buf[:n], nil
	}
	p.finish()
	if err == nil || err == io.EOF {
		return nil, io.EOF
	}
	return nil, err
}

func (p *Producer) finish() {
	p.done = true
	if p.f != nil {
		p.f.Close()
		p.f = nil
	}
}

// Close releases the file if the sequence was abandoned early.
func (p *Producer) Close() error {
	p.finish()
	return nil
}
