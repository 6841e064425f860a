package metrics

import (
	"time"

	"gallery-server/internal/logging"
)

// StatsProvider supplies library statistics for the periodic collector.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current library statistics.
type Stats struct {
	TotalImages     int
	TotalVideos     int
	TotalAudio      int
	TotalRecordings int
	TotalBytes      int64
}

// Collector periodically collects and updates library metrics.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection.
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	MediaFilesTotal.WithLabelValues("image").Set(float64(stats.TotalImages))
	MediaFilesTotal.WithLabelValues("video").Set(float64(stats.TotalVideos))
	MediaFilesTotal.WithLabelValues("audio").Set(float64(stats.TotalAudio))
	RecordingsTotal.Set(float64(stats.TotalRecordings))
	LibraryBytes.Set(float64(stats.TotalBytes))

	logging.Debug("Library metrics updated: %d images, %d videos, %d audio, %d recordings",
		stats.TotalImages, stats.TotalVideos, stats.TotalAudio, stats.TotalRecordings)
}
