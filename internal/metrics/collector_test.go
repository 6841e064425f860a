package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubProvider struct {
	stats Stats
}

func (s *stubProvider) GetStats() Stats {
	return s.stats
}

func TestCollectorUpdatesGauges(t *testing.T) {
	provider := &stubProvider{stats: Stats{
		TotalImages:     12,
		TotalVideos:     3,
		TotalAudio:      2,
		TotalRecordings: 5,
		TotalBytes:      1 << 20,
	}}

	c := NewCollector(provider, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(MediaFilesTotal.WithLabelValues("image")); got != 12 {
		t.Errorf("image gauge = %v, want 12", got)
	}
	if got := testutil.ToFloat64(MediaFilesTotal.WithLabelValues("video")); got != 3 {
		t.Errorf("video gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(MediaFilesTotal.WithLabelValues("audio")); got != 2 {
		t.Errorf("audio gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(RecordingsTotal); got != 5 {
		t.Errorf("recordings gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(LibraryBytes); got != 1<<20 {
		t.Errorf("library bytes gauge = %v, want %d", got, 1<<20)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	// Must not panic.
	c.collect()
}

func TestCollectorStartStop(t *testing.T) {
	provider := &stubProvider{stats: Stats{TotalImages: 1}}
	c := NewCollector(provider, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	if got := testutil.ToFloat64(MediaFilesTotal.WithLabelValues("image")); got != 1 {
		t.Errorf("image gauge = %v, want 1", got)
	}
}

func TestInitializeMetrics(t *testing.T) {
	// Must not panic and must register the zero-valued series.
	InitializeMetrics()
	if got := testutil.ToFloat64(UploadsTotal.WithLabelValues("image", "rejected")); got != 0 {
		t.Errorf("pre-populated counter = %v, want 0", got)
	}
}
