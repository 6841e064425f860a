package httprange

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantErr   bool
	}{
		{"bytes=0-99", 1000, 0, 99, false},
		{"bytes=-50", 300, 250, 299, false},
		{"bytes=100-", 512, 100, 511, false},
		{"bytes=0-0", 1, 0, 0, false},
		{"bytes=0-9999", 100, 0, 99, false}, // end clamped
		{"bytes=-9999", 100, 0, 99, false},  // suffix larger than file
		{"items=0-10", 128, 0, 0, true},     // wrong unit
		{"bytes=100-50", 1000, 0, 0, true},  // inverted
		{"bytes=1000-", 1000, 0, 0, true},   // start past end
		{"bytes=-0", 100, 0, 0, true},       // empty suffix
		{"bytes=a-b", 100, 0, 0, true},
		{"bytes=0-10,20-30", 100, 0, 0, true}, // multipart
		{"bytes=", 100, 0, 0, true},
		{"garbage", 100, 0, 0, true},
	}
	for _, tt := range tests {
		rng, err := ParseRange(tt.header, tt.size)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsatisfiable) {
				t.Errorf("ParseRange(%q, %d) error = %v, want ErrUnsatisfiable", tt.header, tt.size, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRange(%q, %d) failed: %v", tt.header, tt.size, err)
			continue
		}
		if rng.Start != tt.wantStart || rng.End != tt.wantEnd {
			t.Errorf("ParseRange(%q, %d) = %d-%d, want %d-%d",
				tt.header, tt.size, rng.Start, rng.End, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestRangeLengthAndContentRange(t *testing.T) {
	rng := Range{Start: 0, End: 99}
	if rng.Length() != 100 {
		t.Errorf("Length() = %d, want 100", rng.Length())
	}
	if got := rng.ContentRange(1000); got != "bytes 0-99/1000" {
		t.Errorf("ContentRange(1000) = %q, want %q", got, "bytes 0-99/1000")
	}
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "media.bin")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestServeFileFull(t *testing.T) {
	content := strings.Repeat("x", 256)
	path := writeTestFile(t, content)

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	w := httptest.NewRecorder()
	ServeFile(w, req, path, "video/mp4", "clip.mp4")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != content {
		t.Errorf("body length = %d, want %d", len(got), len(content))
	}
	headers := map[string]string{
		"Content-Type":        "video/mp4",
		"Accept-Ranges":       "bytes",
		"Content-Encoding":    "identity",
		"Content-Length":      "256",
		"Cache-Control":       "public, max-age=31536000, immutable",
		"Content-Disposition": `inline; filename="clip.mp4"`,
	}
	for name, want := range headers {
		if got := w.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestServeFilePartial(t *testing.T) {
	path := writeTestFile(t, "0123456789abcdef")

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	req.Header.Set("Range", "bytes=4-7")
	w := httptest.NewRecorder()
	ServeFile(w, req, path, "audio/ogg", "")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Body.String(); got != "4567" {
		t.Errorf("body = %q, want %q", got, "4567")
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 4-7/16" {
		t.Errorf("Content-Range = %q, want %q", got, "bytes 4-7/16")
	}
	if got := w.Header().Get("Content-Length"); got != "4" {
		t.Errorf("Content-Length = %q, want %q", got, "4")
	}
}

func TestServeFileSuffixRange(t *testing.T) {
	path := writeTestFile(t, "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	req.Header.Set("Range", "bytes=-3")
	w := httptest.NewRecorder()
	ServeFile(w, req, path, "audio/ogg", "")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Body.String(); got != "789" {
		t.Errorf("body = %q, want %q", got, "789")
	}
}

func TestServeFileUnsatisfiable(t *testing.T) {
	path := writeTestFile(t, "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	req.Header.Set("Range", "bytes=50-60")
	w := httptest.NewRecorder()
	ServeFile(w, req, path, "audio/ogg", "")

	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", w.Code)
	}
	// The response discloses the total length, never the attempted range.
	if got := w.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("Content-Range = %q, want %q", got, "bytes */10")
	}
}

func TestServeFileMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	w := httptest.NewRecorder()
	ServeFile(w, req, filepath.Join(t.TempDir(), "gone.mp4"), "video/mp4", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestServeFileHead(t *testing.T) {
	path := writeTestFile(t, "0123456789")

	req := httptest.NewRequest(http.MethodHead, "/media", nil)
	req.Header.Set("Range", "bytes=0-4")
	w := httptest.NewRecorder()
	ServeFile(w, req, path, "video/mp4", "")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("HEAD response carried %d body bytes", w.Body.Len())
	}
	if got := w.Header().Get("Content-Length"); got != "5" {
		t.Errorf("Content-Length = %q, want %q", got, "5")
	}
}
