package media

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestChecksumCopy(t *testing.T) {
	var buf bytes.Buffer
	n, sum, err := ChecksumCopy(&buf, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("ChecksumCopy failed: %v", err)
	}
	if n != 5 {
		t.Errorf("bytes copied = %d, want 5", n)
	}
	if buf.String() != "hello" {
		t.Errorf("copied content = %q, want hello", buf.String())
	}

	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if sum != want {
		t.Errorf("digest = %s, want %s", sum, want)
	}
}

func TestChecksumCopySameContentSameDigest(t *testing.T) {
	var a, b bytes.Buffer
	_, sumA, err := ChecksumCopy(&a, strings.NewReader("identical bytes"))
	if err != nil {
		t.Fatal(err)
	}
	_, sumB, err := ChecksumCopy(&b, strings.NewReader("identical bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if sumA != sumB {
		t.Errorf("digests differ for identical content: %s vs %s", sumA, sumB)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestChecksumCopyWriteError(t *testing.T) {
	if _, _, err := ChecksumCopy(failingWriter{}, strings.NewReader("hello")); err == nil {
		t.Error("ChecksumCopy with failing writer succeeded, want error")
	}
}
