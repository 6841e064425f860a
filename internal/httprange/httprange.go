// Package httprange serves files and exact byte subranges with the
// partial-content semantics scrubbing media players depend on. Audio and
// video go through the same code path.
package httprange

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"gallery-server/internal/logging"
	"gallery-server/internal/metrics"
)

// ErrUnsatisfiable indicates a range expression that is malformed or lies
// outside the resource. The response discloses the total length only.
var ErrUnsatisfiable = errors.New("range not satisfiable")

// Range is an inclusive byte interval within a resource.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes the range covers.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the interval for a 206 response.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a single-range header value against a resource of the
// given size. Supported forms: "bytes=A-B", "bytes=A-" and "bytes=-N".
// An overshooting end is clamped to the last byte; a start at or past the
// end of the resource, an inverted interval, a non-bytes unit or any
// malformed expression returns ErrUnsatisfiable.
func ParseRange(header string, size int64) (Range, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return Range{}, ErrUnsatisfiable
	}
	spec = strings.TrimSpace(spec)
	if strings.Contains(spec, ",") {
		// Multipart ranges are not worth the complexity for media
		// scrubbing; players only ever ask for one interval.
		return Range{}, ErrUnsatisfiable
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return Range{}, ErrUnsatisfiable
	}

	if startStr == "" {
		// Suffix form: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return Range{}, ErrUnsatisfiable
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		return Range{Start: start, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return Range{}, ErrUnsatisfiable
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return Range{}, ErrUnsatisfiable
		}
		if end > size-1 {
			end = size - 1
		}
	}
	if start > end {
		return Range{}, ErrUnsatisfiable
	}
	return Range{Start: start, End: end}, nil
}

// ServeFile writes the file at path to w, honoring a Range header if the
// request carries one. Responses are marked immutable: the content behind a
// public token never changes, rotation issues a new token instead.
func ServeFile(w http.ResponseWriter, r *http.Request, path, mimeType, filename string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Not found", http.StatusNotFound)
		} else {
			logging.Error("Failed to open %s for serving: %v", path, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logging.Error("Failed to stat %s: %v", path, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	size := info.Size()

	h := w.Header()
	h.Set("Content-Type", mimeType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	if filename != "" {
		h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	}
	// Partial responses must reach the client byte for byte; players
	// compute seek offsets against the declared length.
	h.Set("Content-Encoding", "identity")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		metrics.RangeRequestsTotal.WithLabelValues("full").Inc()
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		copyAndCount(w, f, size, path)
		return
	}

	rng, err := ParseRange(rangeHeader, size)
	if err != nil {
		metrics.RangeRequestsTotal.WithLabelValues("unsatisfiable").Inc()
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		logging.Error("Failed to seek %s to %d: %v", path, rng.Start, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	metrics.RangeRequestsTotal.WithLabelValues("partial").Inc()
	h.Set("Content-Range", rng.ContentRange(size))
	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	copyAndCount(w, io.LimitReader(f, rng.Length()), rng.Length(), path)
}

func copyAndCount(w io.Writer, src io.Reader, want int64, path string) {
	n, err := io.Copy(w, src)
	metrics.BytesServed.Add(float64(n))
	if err != nil {
		// Usually the client giving up mid-stream, routine for seeks.
		logging.Debug("Serving %s stopped after %d/%d bytes: %v", path, n, want, err)
	}
}
