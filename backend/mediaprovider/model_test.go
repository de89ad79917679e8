package mediaprovider

import "testing"

func TestFallbackTrack(t *testing.T) {
	tests := []struct {
		path      string
		wantTitle string
	}{
		{"/music/Artist - Song.mp3", "Artist - Song"},
		{"/music/noext", "noext"},
		{"/music/archive.tar.flac", "archive.tar"},
		{"/music/.hidden", ".hidden"},
	}
	for _, tt := range tests {
		tr := FallbackTrack(tt.path)
		if tr.Title != tt.wantTitle {
			t.Errorf("FallbackTrack(%q).Title = %q, want %q", tt.path, tr.Title, tt.wantTitle)
		}
		if tr.Artist != UnknownArtist || tr.Duration != 0 || tr.FilePath != tt.path {
			t.Errorf("FallbackTrack(%q) = %+v", tt.path, tr)
		}
		if tr.ID != TrackIDForPath(tt.path) {
			t.Errorf("FallbackTrack(%q) has unstable ID", tt.path)
		}
	}
}

func TestTrackIDForPath(t *testing.T) {
	if TrackIDForPath("/a/b.mp3") != TrackIDForPath("/a/./b.mp3") {
		t.Error("equivalent paths should map to the same ID")
	}
	if TrackIDForPath("/a/b.mp3") == TrackIDForPath("/a/c.mp3") {
		t.Error("different paths should map to different IDs")
	}
}
