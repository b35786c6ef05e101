package catalog

import (
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain name untouched",
			in:   "song.mp3",
			want: "song.mp3",
		},
		{
			name: "question mark replaced",
			in:   "Song?.mp3",
			want: "Song_.mp3",
		},
		{
			name: "spaces and slashes replaced",
			in:   "my song / take 2.flac",
			want: "my_song___take_2.flac",
		},
		{
			name: "allowed punctuation kept",
			in:   "a-b_c.d",
			want: "a-b_c.d",
		},
		{
			name: "non-ascii replaced",
			in:   "曲.mp3",
			want: "_.mp3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLocalPathDeterministic(t *testing.T) {
	first := LocalPath("/cache", "f1", "Song?.mp3")
	second := LocalPath("/cache", "f1", "Song?.mp3")

	if first != second {
		t.Fatalf("LocalPath not deterministic: %q vs %q", first, second)
	}

	want := filepath.Join("/cache", "f1_Song_.mp3")
	if first != want {
		t.Errorf("LocalPath = %q, want %q", first, want)
	}
}

func TestReplaceByID(t *testing.T) {
	files := []File{
		{ID: "a", Name: "one"},
		{ID: "b", Name: "two"},
	}

	out := ReplaceByID(files, File{ID: "a", Name: "one v2"})

	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}

	got, ok := FindByID(out, "a")
	if !ok {
		t.Fatal("entry for a missing after replace")
	}

	if got.Name != "one v2" {
		t.Errorf("expected replaced name, got %q", got.Name)
	}

	out = ReplaceByID(out, File{ID: "c", Name: "three"})
	if len(out) != 3 {
		t.Errorf("expected append for new id, got %d entries", len(out))
	}
}

func TestRemoveByID(t *testing.T) {
	files := []File{{ID: "a"}, {ID: "b"}}

	out, removed := RemoveByID(files, "a")
	if !removed || len(out) != 1 || out[0].ID != "b" {
		t.Errorf("RemoveByID(a) = %v, removed=%v", out, removed)
	}

	out, removed = RemoveByID(files, "missing")
	if removed || len(out) != 2 {
		t.Errorf("RemoveByID(missing) = %v, removed=%v", out, removed)
	}
}

func TestSourceValid(t *testing.T) {
	if !SourceGoogleDrive.Valid() || !SourceOneDrive.Valid() {
		t.Error("known sources should be valid")
	}

	if Source("dropbox").Valid() {
		t.Error("unknown source should not be valid")
	}
}
