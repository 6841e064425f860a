package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ChecksumCopy copies r to w while computing the lowercase hex SHA-256
// digest of the bytes that passed through. This is the identity used for
// duplicate detection, taken over the uploaded bytes as they stream to
// disk.
func ChecksumCopy(w io.Writer, r io.Reader) (int64, string, error) {
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		return n, "", fmt.Errorf("failed to checksum stream: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
