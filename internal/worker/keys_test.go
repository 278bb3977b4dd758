package worker

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestBuildS3Key(t *testing.T) {
	now := time.Date(2026, 10, 15, 23, 30, 0, 0, time.FixedZone("KST", 9*3600))

	got := BuildS3Key("archive/", "f.json.gz", now)
	want := "archive/dt=2026-10-15/hr=14/f.json.gz"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewFilename(t *testing.T) {
	now := time.Unix(1760518800, 0)
	a := NewFilename("collector1", now)
	b := NewFilename("collector1", now)

	re := regexp.MustCompile(`^1760518800_collector1_\d{6}\.json\.gz$`)
	if !re.MatchString(a) || !re.MatchString(b) {
		t.Fatalf("unexpected names %q %q", a, b)
	}
	if a == b {
		t.Fatalf("names collide: %q", a)
	}
	if !strings.HasPrefix(a, "1760518800_") {
		t.Fatalf("name not time-prefixed: %q", a)
	}
}
