package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/disintegration/imaging"

	"gallery-server/internal/codec"
	"gallery-server/internal/database"
	"gallery-server/internal/scheduler"
	"gallery-server/internal/storage"
)

type testEnv struct {
	p      *Pipeline
	db     *database.Database
	layout *storage.Layout
}

func newTestEnv(t *testing.T, maxFileSize int64) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "gallery.db"))
	if err != nil {
		t.Fatalf("database.New failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	layout, err := storage.NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout failed: %v", err)
	}

	pool, err := scheduler.NewPool(2)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	signer, err := NewTokenSigner(ctx, db)
	if err != nil {
		t.Fatalf("NewTokenSigner failed: %v", err)
	}

	return &testEnv{
		p:      New(db, layout, codec.NewRunner(), pool, signer, maxFileSize),
		db:     db,
		layout: layout,
	}
}

// jpegBytes returns an encoded JPEG of the given size. Distinct dimensions
// produce distinct bytes, which matters for dedup tests.
func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{10, 180, 90, 255})
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		t.Fatalf("failed to encode test JPEG: %v", err)
	}
	return buf.Bytes()
}

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{48}$`)

// Shell stand-ins for the codec binaries. The copy variants reproduce the
// real tools' contract (read the input, write the output path) without
// needing ffmpeg or ImageMagick on the test machine.
const (
	copyConvertScript = `#!/bin/sh
for last; do :; done
cp "$1" "$last"
`
	copyFFmpegScript = `#!/bin/sh
src=
prev=
last=
for a; do
	if [ "$prev" = "-i" ]; then src="$a"; fi
	prev="$a"
	last="$a"
done
cp "$src" "$last"
`
	failingScript = "#!/bin/sh\nexit 1\n"
)

// withTools puts stand-in codec binaries first on PATH. Must be called
// before newTestEnv: the runner checks PATH once at construction.
func withTools(t *testing.T, tools map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, script := range tools {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755); err != nil {
			t.Fatalf("failed to write stand-in %s: %v", name, err)
		}
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestIngestImage(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID:  1,
		Filename: "Vacation Photo.jpg",
		MimeType: "image/jpeg",
		Content:  bytes.NewReader(jpegBytes(t, 1600, 800)),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Duplicate {
		t.Error("fresh upload reported as duplicate")
	}

	a := res.Asset
	if !tokenPattern.MatchString(a.PublicToken) {
		t.Errorf("public token = %q, want 48 hex chars", a.PublicToken)
	}
	if a.Width != 1600 || a.Height != 800 {
		t.Errorf("dimensions = %dx%d, want 1600x800", a.Width, a.Height)
	}
	if !a.DerivativesReady {
		t.Error("derivatives not ready after synchronous ingest")
	}
	if a.DisplayOrder != 1 {
		t.Errorf("display order = %d, want 1", a.DisplayOrder)
	}

	// All three derivatives exist next to the original.
	for _, prefix := range []string{"thumb_", "medium_", "large_"} {
		rel := storage.SiblingPath(a.StoredPath, storage.DerivativeName(prefix, a.StoredPath))
		abs, _ := env.layout.Resolve(rel)
		if _, err := os.Stat(abs); err != nil {
			t.Errorf("derivative %s missing: %v", rel, err)
		}
	}
}

func TestIngestDuplicate(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	content := jpegBytes(t, 400, 300)

	first, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "a.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}

	second, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "b.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if !second.Duplicate {
		t.Error("identical upload not reported as duplicate")
	}
	if second.Asset.ID != first.Asset.ID {
		t.Errorf("duplicate resolved to asset %d, want %d", second.Asset.ID, first.Asset.ID)
	}

	// Only the first original is on disk.
	assets, err := env.p.ListAlbumAssets(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 {
		t.Errorf("album has %d assets, want 1", len(assets))
	}
}

func TestIngestDuplicateAcrossAlbums(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	content := jpegBytes(t, 500, 500)

	first, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "a.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatal(err)
	}

	// The same bytes into another album dedupe against the oldest copy.
	second, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 2, Filename: "c.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate || second.Asset.ID != first.Asset.ID {
		t.Errorf("cross-album dedup returned asset %d (dup=%v), want %d", second.Asset.ID, second.Duplicate, first.Asset.ID)
	}
}

func TestIngestDuplicateByContentID(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	first, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "a.jpg", MimeType: "image/jpeg", ContentID: "ph-7",
		Content: bytes.NewReader(jpegBytes(t, 400, 300)),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Different bytes, same client content ID: still the same photo.
	second, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "a-reexport.jpg", MimeType: "image/jpeg", ContentID: "ph-7",
		Content: bytes.NewReader(jpegBytes(t, 401, 300)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate || second.Asset.ID != first.Asset.ID {
		t.Errorf("content ID dedup returned asset %d (dup=%v), want %d", second.Asset.ID, second.Duplicate, first.Asset.ID)
	}

	// The same ID in another album is a fresh asset.
	third, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 2, Filename: "a.jpg", MimeType: "image/jpeg", ContentID: "ph-7",
		Content: bytes.NewReader(jpegBytes(t, 402, 300)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if third.Duplicate {
		t.Error("same content ID in a different album reported as duplicate")
	}
}

func TestIngestUnsupportedType(t *testing.T) {
	env := newTestEnv(t, 0)

	_, err := env.p.Ingest(context.Background(), &IngestRequest{
		AlbumID: 1, Filename: "notes.txt", MimeType: "text/plain", Content: bytes.NewReader([]byte("hi")),
	})
	if !IsValidation(err) {
		t.Errorf("unsupported upload error = %v, want ValidationError", err)
	}
}

func TestIngestTooLarge(t *testing.T) {
	env := newTestEnv(t, 64) // 64 bytes
	ctx := context.Background()

	_, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "big.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 200, 200)),
	})
	if !IsValidation(err) {
		t.Fatalf("oversized upload error = %v, want ValidationError", err)
	}

	// Nothing may be left behind, in the database or on disk.
	assets, err := env.p.ListAlbumAssets(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 0 {
		t.Errorf("oversized upload left %d assets", len(assets))
	}
	entries, err := os.ReadDir(env.layout.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			t.Errorf("oversized upload left file %s", e.Name())
		}
	}
}

func TestRotateLeft(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "r.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 800, 400)),
	})
	if err != nil {
		t.Fatal(err)
	}
	oldToken := res.Asset.PublicToken

	rotated, err := env.p.RotateLeft(ctx, res.Asset.ID)
	if err != nil {
		t.Fatalf("RotateLeft failed: %v", err)
	}
	if rotated.Width != 400 || rotated.Height != 800 {
		t.Errorf("rotated dimensions = %dx%d, want 400x800", rotated.Width, rotated.Height)
	}
	if rotated.Rotation != 90 {
		t.Errorf("rotation = %d, want 90", rotated.Rotation)
	}
	if rotated.PublicToken == oldToken {
		t.Error("public token unchanged after rotation")
	}
	if !tokenPattern.MatchString(rotated.PublicToken) {
		t.Errorf("new token = %q, want 48 hex chars", rotated.PublicToken)
	}
	if !rotated.DerivativesReady {
		t.Error("derivatives not regenerated after rotation")
	}

	// The old token must no longer resolve.
	if _, err := env.p.ResolveAsset(ctx, oldToken, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale token resolve = %v, want ErrNotFound", err)
	}

	// Four rotations come back around.
	for i := 0; i < 3; i++ {
		if rotated, err = env.p.RotateLeft(ctx, res.Asset.ID); err != nil {
			t.Fatalf("rotation %d failed: %v", i+2, err)
		}
	}
	if rotated.Rotation != 0 {
		t.Errorf("rotation after full turn = %d, want 0", rotated.Rotation)
	}
	if rotated.Width != 800 || rotated.Height != 400 {
		t.Errorf("dimensions after full turn = %dx%d, want 800x400", rotated.Width, rotated.Height)
	}
}

func TestRotateLeftRejectsNonImages(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := &database.Asset{
		AlbumID: 1, Type: "video", OriginalName: "v.mp4", StoredPath: "v.mp4",
		MimeType: "video/mp4", Checksum: "c", PublicToken: "tok",
	}
	if err := env.db.InsertAsset(ctx, a); err != nil {
		t.Fatal(err)
	}

	if _, err := env.p.RotateLeft(ctx, a.ID); !IsValidation(err) {
		t.Errorf("rotating a video error = %v, want ValidationError", err)
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "d.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 300, 300)),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.p.Delete(ctx, res.Asset.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := env.p.GetAsset(ctx, res.Asset.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAsset after delete = %v, want ErrNotFound", err)
	}

	// Original and derivatives are gone.
	abs, _ := env.layout.Resolve(res.Asset.StoredPath)
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Error("original still on disk after delete")
	}
	for _, prefix := range []string{"thumb_", "medium_", "large_"} {
		rel := storage.SiblingPath(res.Asset.StoredPath, storage.DerivativeName(prefix, res.Asset.StoredPath))
		abs, _ := env.layout.Resolve(rel)
		if _, err := os.Stat(abs); !os.IsNotExist(err) {
			t.Errorf("derivative %s still on disk after delete", rel)
		}
	}

	if err := env.p.Delete(ctx, res.Asset.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}

func TestResolveAsset(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "s.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 2000, 1000)),
	})
	if err != nil {
		t.Fatal(err)
	}
	token := res.Asset.PublicToken

	tests := []struct {
		size     string
		wantMime string
		wantBase string
	}{
		{"", "image/jpeg", ""},
		{"original", "image/jpeg", ""},
		{"thumbnail", "image/jpeg", "thumb_"},
		{"medium", "image/jpeg", "medium_"},
		{"large", "image/jpeg", "large_"},
		{"THUMBNAIL", "image/jpeg", "thumb_"}, // selectors are case-insensitive
	}
	for _, tt := range tests {
		sf, err := env.p.ResolveAsset(ctx, token, tt.size)
		if err != nil {
			t.Errorf("ResolveAsset(size=%q) failed: %v", tt.size, err)
			continue
		}
		if sf.MimeType != tt.wantMime {
			t.Errorf("size %q mime = %q, want %q", tt.size, sf.MimeType, tt.wantMime)
		}
		base := filepath.Base(sf.AbsPath)
		if tt.wantBase != "" && base[:len(tt.wantBase)] != tt.wantBase {
			t.Errorf("size %q served %q, want prefix %q", tt.size, base, tt.wantBase)
		}
	}

	if _, err := env.p.ResolveAsset(ctx, token, "gigantic"); !IsValidation(err) {
		t.Errorf("unknown size error = %v, want ValidationError", err)
	}
	if _, err := env.p.ResolveAsset(ctx, "deadbeef", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown token error = %v, want ErrNotFound", err)
	}
}

func TestResolveAssetFallsBackWhenDerivativeMissing(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "f.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 900, 900)),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a backfill gap.
	rel := storage.SiblingPath(res.Asset.StoredPath, storage.DerivativeName(storage.PrefixThumbnail, res.Asset.StoredPath))
	abs, _ := env.layout.Resolve(rel)
	if err := os.Remove(abs); err != nil {
		t.Fatal(err)
	}

	sf, err := env.p.ResolveAsset(ctx, res.Asset.PublicToken, "thumbnail")
	if err != nil {
		t.Fatalf("ResolveAsset failed: %v", err)
	}
	origAbs, _ := env.layout.Resolve(res.Asset.StoredPath)
	if sf.AbsPath != origAbs {
		t.Errorf("served %q, want original fallback %q", sf.AbsPath, origAbs)
	}
}

func TestGenerateMissingDerivatives(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "b.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 1000, 500)),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Erase the derivatives and mark the asset stale.
	for _, prefix := range []string{"thumb_", "medium_", "large_"} {
		rel := storage.SiblingPath(res.Asset.StoredPath, storage.DerivativeName(prefix, res.Asset.StoredPath))
		abs, _ := env.layout.Resolve(rel)
		_ = os.Remove(abs)
	}
	if err := env.db.SetDerivativesReady(ctx, res.Asset.ID, false); err != nil {
		t.Fatal(err)
	}

	report, err := env.p.GenerateMissingDerivatives(ctx, false)
	if err != nil {
		t.Fatalf("GenerateMissingDerivatives failed: %v", err)
	}
	if report.Processed != 1 || report.Succeeded != 1 {
		t.Errorf("report = %+v, want 1 processed, 1 succeeded", report)
	}

	rel := storage.SiblingPath(res.Asset.StoredPath, storage.DerivativeName(storage.PrefixThumbnail, res.Asset.StoredPath))
	abs, _ := env.layout.Resolve(rel)
	if _, err := os.Stat(abs); err != nil {
		t.Errorf("thumbnail not regenerated: %v", err)
	}

	a, err := env.p.GetAsset(ctx, res.Asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !a.DerivativesReady {
		t.Error("asset not marked ready after backfill")
	}

	// An idle pass reports nothing to do.
	report, err = env.p.GenerateMissingDerivatives(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 0 {
		t.Errorf("idle pass processed %d assets, want 0", report.Processed)
	}
}

func TestGenerateMissingDerivativesOverwrite(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "o.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 600, 300)),
	})
	if err != nil {
		t.Fatal(err)
	}

	// The thumbnail is gone but the asset still claims to be ready; only
	// an overwrite pass repairs that.
	rel := storage.SiblingPath(res.Asset.StoredPath, storage.DerivativeName(storage.PrefixThumbnail, res.Asset.StoredPath))
	abs, _ := env.layout.Resolve(rel)
	if err := os.Remove(abs); err != nil {
		t.Fatal(err)
	}

	report, err := env.p.GenerateMissingDerivatives(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 0 {
		t.Errorf("non-overwrite pass processed %d assets, want 0", report.Processed)
	}

	report, err = env.p.GenerateMissingDerivatives(ctx, true)
	if err != nil {
		t.Fatalf("overwrite pass failed: %v", err)
	}
	if report.Processed != 1 || report.Succeeded != 1 {
		t.Errorf("overwrite report = %+v, want 1 processed, 1 succeeded", report)
	}
	if _, err := os.Stat(abs); err != nil {
		t.Errorf("thumbnail not rebuilt by overwrite pass: %v", err)
	}
}

func TestGenerateMissingDerivativesSkipsLostOriginals(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "lost.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 100, 100)),
	})
	if err != nil {
		t.Fatal(err)
	}

	abs, _ := env.layout.Resolve(res.Asset.StoredPath)
	if err := os.Remove(abs); err != nil {
		t.Fatal(err)
	}
	if err := env.db.SetDerivativesReady(ctx, res.Asset.ID, false); err != nil {
		t.Fatal(err)
	}

	report, err := env.p.GenerateMissingDerivatives(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 1 {
		t.Errorf("report = %+v, want 1 skipped", report)
	}
}

func TestSaveRecordingUnsupportedType(t *testing.T) {
	env := newTestEnv(t, 0)

	_, err := env.p.SaveRecording(context.Background(), 1, "video/mp4", bytes.NewReader([]byte("x")))
	if !IsValidation(err) {
		t.Errorf("unsupported recording error = %v, want ValidationError", err)
	}
}

func TestTokenSigner(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	signer, err := NewTokenSigner(ctx, env.db)
	if err != nil {
		t.Fatal(err)
	}

	t1 := signer.AssetToken(1, "a.jpg", 1)
	if !tokenPattern.MatchString(t1) {
		t.Errorf("token = %q, want 48 hex chars", t1)
	}

	// Deterministic for the same identity, distinct across generations,
	// paths and albums.
	if signer.AssetToken(1, "a.jpg", 1) != t1 {
		t.Error("token not deterministic")
	}
	if signer.AssetToken(1, "a.jpg", 2) == t1 {
		t.Error("generation bump did not change the token")
	}
	if signer.AssetToken(2, "a.jpg", 1) == t1 {
		t.Error("album change did not change the token")
	}
	if signer.RecordingToken(1, "a.jpg") == t1 {
		t.Error("recording token collides with asset token")
	}

	// A second signer instance reuses the persisted secret.
	signer2, err := NewTokenSigner(ctx, env.db)
	if err != nil {
		t.Fatal(err)
	}
	if signer2.AssetToken(1, "a.jpg", 1) != t1 {
		t.Error("restart produced different tokens for the same identity")
	}
}

func TestIngestHeicConvertsAndDedups(t *testing.T) {
	withTools(t, map[string]string{"convert": copyConvertScript})
	env := newTestEnv(t, 0)
	ctx := context.Background()
	content := jpegBytes(t, 640, 480) // stand-in convert copies bytes as-is

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "IMG_0001.heic", MimeType: "image/heic", Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	a := res.Asset
	if filepath.Ext(a.StoredPath) != ".jpg" {
		t.Errorf("stored path = %q, want .jpg after conversion", a.StoredPath)
	}
	if a.MimeType != "image/jpeg" {
		t.Errorf("mime = %q, want image/jpeg", a.MimeType)
	}
	if !a.DerivativesReady {
		t.Error("derivatives not ready after conversion")
	}

	// The HEIC original must be gone, the JPEG must serve.
	abs, _ := env.layout.Resolve(a.StoredPath)
	if _, err := os.Stat(abs); err != nil {
		t.Errorf("converted JPEG missing: %v", err)
	}
	entries, err := os.ReadDir(env.layout.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".heic" {
			t.Errorf("HEIC original %s still on disk", e.Name())
		}
	}

	// The checksum stays the uploaded bytes, so re-sending the identical
	// file dedups instead of colliding with its own converted copy.
	second, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "IMG_0001.heic", MimeType: "image/heic", Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("re-upload failed: %v", err)
	}
	if !second.Duplicate || second.Asset.ID != a.ID {
		t.Errorf("re-upload returned asset %d (dup=%v), want duplicate of %d", second.Asset.ID, second.Duplicate, a.ID)
	}
}

func TestIngestHeicConversionFailureDiscards(t *testing.T) {
	withTools(t, map[string]string{"convert": failingScript})
	env := newTestEnv(t, 0)
	ctx := context.Background()

	_, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "broken.heic", MimeType: "image/heic", Content: bytes.NewReader(jpegBytes(t, 200, 200)),
	})
	if err == nil {
		t.Fatal("Ingest with failing conversion succeeded, want error")
	}
	if !IsFatalProcessing(err) {
		t.Errorf("error = %v, want fatal processing error", err)
	}

	// The upload is discarded entirely: no rows, no original, no partial
	// conversion output.
	assets, err := env.p.ListAlbumAssets(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 0 {
		t.Errorf("failed conversion left %d assets", len(assets))
	}
	entries, err := os.ReadDir(env.layout.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			t.Errorf("failed conversion left file %s", e.Name())
		}
	}
}

func TestIngestAudioReencodesToOgg(t *testing.T) {
	withTools(t, map[string]string{"ffmpeg": copyFFmpegScript})
	env := newTestEnv(t, 0)
	ctx := context.Background()
	content := []byte("mp3 frames")

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "song.mp3", MimeType: "audio/mpeg", Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	a := res.Asset
	if filepath.Ext(a.StoredPath) != ".ogg" {
		t.Errorf("stored path = %q, want .ogg after re-encode", a.StoredPath)
	}
	if a.MimeType != "audio/ogg" {
		t.Errorf("mime = %q, want audio/ogg", a.MimeType)
	}
	if !a.DerivativesReady {
		t.Error("audio asset not marked ready")
	}
	if !tokenPattern.MatchString(a.PublicToken) {
		t.Errorf("token = %q, want 48 hex chars", a.PublicToken)
	}

	abs, _ := env.layout.Resolve(a.StoredPath)
	if _, err := os.Stat(abs); err != nil {
		t.Errorf("re-encoded file missing: %v", err)
	}
	entries, err := os.ReadDir(env.layout.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".mp3" {
			t.Errorf("original %s still on disk after re-encode", e.Name())
		}
	}

	// Re-sending the identical bytes dedups against the re-encoded copy.
	second, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "song.mp3", MimeType: "audio/mpeg", Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("re-upload failed: %v", err)
	}
	if !second.Duplicate || second.Asset.ID != a.ID {
		t.Errorf("re-upload returned asset %d (dup=%v), want duplicate of %d", second.Asset.ID, second.Duplicate, a.ID)
	}
}

func TestIngestAudioOpusContainerKeepsName(t *testing.T) {
	withTools(t, map[string]string{"ffmpeg": copyFFmpegScript})
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "take.webm", MimeType: "audio/webm", Content: bytes.NewReader([]byte("webm audio")),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if filepath.Ext(res.Asset.StoredPath) != ".webm" {
		t.Errorf("stored path = %q, want .webm kept in place", res.Asset.StoredPath)
	}
	if res.Asset.MimeType != "audio/webm" {
		t.Errorf("mime = %q, want audio/webm", res.Asset.MimeType)
	}
	if !res.Asset.DerivativesReady {
		t.Error("audio asset not marked ready")
	}
}

func TestSaveRecordingReencodesToOgg(t *testing.T) {
	withTools(t, map[string]string{"ffmpeg": copyFFmpegScript})
	env := newTestEnv(t, 0)
	ctx := context.Background()

	rec, err := env.p.SaveRecording(ctx, 1, "audio/mpeg", bytes.NewReader([]byte("mp3 take")))
	if err != nil {
		t.Fatalf("SaveRecording failed: %v", err)
	}
	if filepath.Ext(rec.StoredPath) != ".ogg" {
		t.Errorf("stored path = %q, want .ogg after re-encode", rec.StoredPath)
	}
	if rec.MimeType != "audio/ogg" {
		t.Errorf("mime = %q, want audio/ogg", rec.MimeType)
	}
	abs, _ := env.layout.Resolve(rec.StoredPath)
	if _, err := os.Stat(abs); err != nil {
		t.Errorf("recording file missing: %v", err)
	}

	// Only the re-encoded take remains in the recordings directory.
	entries, err := os.ReadDir(env.layout.RecordingsDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("recordings dir has %d files, want 1", len(entries))
	}

	// A take recorded straight into an Opus-capable container keeps it.
	rec2, err := env.p.SaveRecording(ctx, 1, "audio/webm;codecs=opus", bytes.NewReader([]byte("webm take")))
	if err != nil {
		t.Fatalf("SaveRecording failed: %v", err)
	}
	if filepath.Ext(rec2.StoredPath) != ".webm" {
		t.Errorf("stored path = %q, want .webm kept in place", rec2.StoredPath)
	}
}

func TestSaveRecordingFailureLeavesNothing(t *testing.T) {
	withTools(t, map[string]string{"ffmpeg": failingScript})
	env := newTestEnv(t, 0)
	ctx := context.Background()

	if _, err := env.p.SaveRecording(ctx, 1, "audio/webm", bytes.NewReader([]byte("take"))); err == nil {
		t.Fatal("SaveRecording with failing re-encode succeeded, want error")
	}

	recs, err := env.db.ListAlbumRecordings(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("failed recording left %d rows", len(recs))
	}
	entries, err := os.ReadDir(env.layout.RecordingsDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed recording left %d files on disk", len(entries))
	}
}

func TestGenerateMissingDerivativesReencodesAudio(t *testing.T) {
	withTools(t, map[string]string{"ffmpeg": copyFFmpegScript})
	env := newTestEnv(t, 0)
	ctx := context.Background()

	// An interrupted upload: the row exists, the file is still in its
	// original container, the ready flag was never set.
	abs, _ := env.layout.Resolve("voice.mp3")
	if err := os.WriteFile(abs, []byte("mp3 frames"), 0644); err != nil {
		t.Fatal(err)
	}
	a := &database.Asset{
		AlbumID: 1, Type: "audio", OriginalName: "voice.mp3", StoredPath: "voice.mp3",
		MimeType: "audio/mpeg", Checksum: "c1", PublicToken: "tok",
	}
	if err := env.db.InsertAsset(ctx, a); err != nil {
		t.Fatal(err)
	}

	report, err := env.p.GenerateMissingDerivatives(ctx, false)
	if err != nil {
		t.Fatalf("GenerateMissingDerivatives failed: %v", err)
	}
	if report.Succeeded != 1 {
		t.Errorf("report = %+v, want 1 succeeded", report)
	}

	got, err := env.p.GetAsset(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StoredPath != "voice.ogg" {
		t.Errorf("stored path = %q, want voice.ogg", got.StoredPath)
	}
	if got.MimeType != "audio/ogg" {
		t.Errorf("mime = %q, want audio/ogg", got.MimeType)
	}
	if !got.DerivativesReady {
		t.Error("asset not marked ready after backfill re-encode")
	}
	if !tokenPattern.MatchString(got.PublicToken) {
		t.Errorf("token = %q, want 48 hex chars", got.PublicToken)
	}

	oggAbs, _ := env.layout.Resolve("voice.ogg")
	if _, err := os.Stat(oggAbs); err != nil {
		t.Errorf("re-encoded file missing: %v", err)
	}
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Error("original container still on disk after backfill")
	}
}

func TestRotateLeftFailureKeepsDerivatives(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.p.Ingest(ctx, &IngestRequest{
		AlbumID: 1, Filename: "keep.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegBytes(t, 500, 250)),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Corrupt the original so the rotate cannot decode it.
	abs, _ := env.layout.Resolve(res.Asset.StoredPath)
	if err := os.WriteFile(abs, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := env.p.RotateLeft(ctx, res.Asset.ID); err == nil {
		t.Fatal("RotateLeft on corrupt original succeeded, want error")
	}

	// Nothing moved: the derivatives, ready flag and token all still serve
	// the previous orientation.
	got, err := env.p.GetAsset(ctx, res.Asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.DerivativesReady {
		t.Error("ready flag cleared by failed rotate")
	}
	if got.PublicToken != res.Asset.PublicToken {
		t.Errorf("token changed by failed rotate: %q -> %q", res.Asset.PublicToken, got.PublicToken)
	}
	if got.Rotation != 0 {
		t.Errorf("rotation = %d, want 0 after failed rotate", got.Rotation)
	}
	for _, prefix := range []string{"thumb_", "medium_", "large_"} {
		rel := storage.SiblingPath(res.Asset.StoredPath, storage.DerivativeName(prefix, res.Asset.StoredPath))
		abs, _ := env.layout.Resolve(rel)
		if _, err := os.Stat(abs); err != nil {
			t.Errorf("derivative %s lost after failed rotate: %v", rel, err)
		}
	}
}
