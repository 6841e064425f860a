package media

import "testing"

func TestScaleForClampsToOne(t *testing.T) {
	tests := []struct {
		name   string
		p      Profile
		w, h   int
		want   float64
	}{
		{"smaller than box", ProfileThumbnail, 300, 200, 1.0},
		{"exactly the box", ProfileThumbnail, 600, 600, 1.0},
		{"wide image", ProfileThumbnail, 1200, 600, 0.5},
		{"tall image", ProfileThumbnail, 600, 1200, 0.5},
		{"both over, width dominates", ProfileMedium, 4800, 2400, 0.25},
		{"degenerate zero", ProfileLarge, 0, 100, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.ScaleFor(tt.w, tt.h); got != tt.want {
				t.Errorf("ScaleFor(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
			}
		})
	}
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name       string
		p          Profile
		w, h       int
		wantW, wantH int
	}{
		{"no upscale", ProfileThumbnail, 100, 50, 100, 50},
		{"halved", ProfileThumbnail, 1200, 600, 600, 300},
		{"large profile", ProfileLarge, 4800, 3600, 2400, 1800},
		{"never below one pixel", ProfileThumbnail, 10000, 1, 600, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := tt.p.TargetSize(tt.w, tt.h)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("TargetSize(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestProfilePrefixes(t *testing.T) {
	if ProfileThumbnail.Prefix != "thumb_" {
		t.Errorf("thumbnail prefix = %q", ProfileThumbnail.Prefix)
	}
	if ProfileMedium.Prefix != "medium_" {
		t.Errorf("medium prefix = %q", ProfileMedium.Prefix)
	}
	if ProfileLarge.Prefix != "large_" {
		t.Errorf("large prefix = %q", ProfileLarge.Prefix)
	}
}

func TestProfileQualities(t *testing.T) {
	if ProfileThumbnail.Quality != 60 {
		t.Errorf("thumbnail quality = %d, want 60", ProfileThumbnail.Quality)
	}
	for _, p := range []Profile{ProfileMedium, ProfileLarge} {
		if p.Quality != 95 {
			t.Errorf("%s quality = %d, want 95", p.Name, p.Quality)
		}
	}
}
