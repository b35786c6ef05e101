package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestReaderReportsPercent(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)

	var reported []int

	pr := NewReader(bytes.NewReader(data), int64(len(data)), func(percent int) {
		reported = append(reported, percent)
	})

	n, err := io.Copy(io.Discard, pr)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	if n != int64(len(data)) {
		t.Fatalf("copied %d bytes, want %d", n, len(data))
	}

	if len(reported) == 0 {
		t.Fatal("expected progress callbacks")
	}

	last := reported[len(reported)-1]
	if last != 100 {
		t.Errorf("final percent = %d, want 100", last)
	}

	for i := 1; i < len(reported); i++ {
		if reported[i] < reported[i-1] {
			t.Errorf("progress went backwards: %v", reported)

			break
		}
	}
}

func TestReaderNoDuplicatePercent(t *testing.T) {
	var reported []int

	pr := NewReader(strings.NewReader("abcd"), 4, func(percent int) {
		reported = append(reported, percent)
	})

	buf := make([]byte, 1)
	for {
		if _, err := pr.Read(buf); err != nil {
			break
		}
	}

	seen := make(map[int]bool)
	for _, p := range reported {
		if seen[p] {
			t.Errorf("percent %d reported twice: %v", p, reported)
		}

		seen[p] = true
	}
}

func TestReaderUnknownTotal(t *testing.T) {
	called := false

	pr := NewReader(strings.NewReader("abcd"), -1, func(int) {
		called = true
	})

	if _, err := io.Copy(io.Discard, pr); err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	if called {
		t.Error("expected no callbacks when total is unknown")
	}
}

func TestReaderClampsOverrun(t *testing.T) {
	// Total smaller than the actual stream must not report beyond 100.
	var maxSeen int

	pr := NewReader(strings.NewReader("abcdefgh"), 4, func(percent int) {
		if percent > maxSeen {
			maxSeen = percent
		}
	})

	if _, err := io.Copy(io.Discard, pr); err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	if maxSeen > 100 {
		t.Errorf("reported %d%%, want at most 100", maxSeen)
	}
}
