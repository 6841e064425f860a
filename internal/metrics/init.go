package metrics

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, t := range []string{"image", "video", "audio"} {
		for _, s := range []string{"stored", "duplicate", "rejected", "failed"} {
			UploadsTotal.WithLabelValues(t, s)
		}
		MediaFilesTotal.WithLabelValues(t)
	}

	for _, kind := range []string{"image", "heic", "video", "audio", "rotate"} {
		for _, s := range []string{"success", "error", "interrupted"} {
			ProcessingJobsTotal.WithLabelValues(kind, s)
		}
		ProcessingJobDuration.WithLabelValues(kind)
	}

	for _, profile := range []string{"thumbnail", "medium", "large", "web_video", "video_thumb"} {
		for _, s := range []string{"success", "error"} {
			DerivativeGenerationsTotal.WithLabelValues(profile, s)
		}
	}

	for _, s := range []string{"full", "partial", "unsatisfiable"} {
		RangeRequestsTotal.WithLabelValues(s)
	}

	for _, s := range []string{"succeeded", "failed", "skipped"} {
		BackfillFilesTotal.WithLabelValues(s)
	}

	for _, op := range []string{"insert_asset", "get_asset", "find_duplicate", "update_asset",
		"delete_asset", "insert_recording", "get_recording", "stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
