package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gallery-server/internal/codec"
	"gallery-server/internal/logging"
	"gallery-server/internal/metrics"
)

// Timeouts for the ffmpeg-backed operations. Transcodes of long videos are
// slow; frame grabs and probes are not.
const (
	transcodeTimeout  = 30 * time.Minute
	videoThumbTimeout = 2 * time.Minute
	probeTimeout      = 30 * time.Second
)

// MediaInfo holds the stream properties ffprobe reports for a file.
type MediaInfo struct {
	Width    int
	Height   int
	Duration float64
	Codec    string
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe retrieves dimensions, duration and codec of a media file.
func Probe(ctx context.Context, runner *codec.Runner, path string) (*MediaInfo, error) {
	out, err := runner.RunStdout(ctx, probeTimeout, codec.BinFFprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}

	info := &MediaInfo{}
	if parsed.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(parsed.Format.Duration, 64)
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			info.Codec = s.CodecName
			break
		}
	}
	if info.Codec == "" {
		for _, s := range parsed.Streams {
			if s.CodecType == "audio" {
				info.Codec = s.CodecName
				break
			}
		}
	}
	return info, nil
}

// TranscodeWebVideo produces the browser-friendly H.264/AAC MP4 rendition
// of a video. The original is kept untouched.
func TranscodeWebVideo(ctx context.Context, runner *codec.Runner, src, dst string) error {
	start := time.Now()
	_, err := runner.Run(ctx, transcodeTimeout, codec.BinFFmpeg,
		"-y",
		"-i", src,
		"-c:v", "libx264",
		"-profile:v", "main",
		"-level", "4.0",
		"-preset", "medium",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		dst,
	)
	if err != nil {
		_ = os.Remove(dst)
		metrics.DerivativeGenerationsTotal.WithLabelValues("web_video", "error").Inc()
		return fmt.Errorf("web transcode failed for %s: %w", src, err)
	}

	metrics.DerivativeGenerationsTotal.WithLabelValues("web_video", "success").Inc()
	logging.Info("Web video rendition complete: %s (%s)", dst, time.Since(start).Round(time.Second))
	return nil
}

// VideoThumbnail extracts a poster frame one second into the video, scaled
// to 600px wide.
func VideoThumbnail(ctx context.Context, runner *codec.Runner, src, dst string) error {
	_, err := runner.Run(ctx, videoThumbTimeout, codec.BinFFmpeg,
		"-y",
		"-ss", "00:00:01",
		"-i", src,
		"-vframes", "1",
		"-vf", "scale=600:-1",
		"-q:v", "2",
		dst,
	)
	if err != nil {
		// Clips shorter than one second have no frame at -ss 1; retry
		// from the start.
		_, err = runner.Run(ctx, videoThumbTimeout, codec.BinFFmpeg,
			"-y",
			"-i", src,
			"-vframes", "1",
			"-vf", "scale=600:-1",
			"-q:v", "2",
			dst,
		)
	}
	if err != nil {
		_ = os.Remove(dst)
		metrics.DerivativeGenerationsTotal.WithLabelValues("video_thumb", "error").Inc()
		return fmt.Errorf("video thumbnail failed for %s: %w", src, err)
	}

	metrics.DerivativeGenerationsTotal.WithLabelValues("video_thumb", "success").Inc()
	return nil
}
