package clock

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

func TestHourBucketElapsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if HourBucketElapsed(now, now.Add(-59*time.Minute)) {
		t.Error("expected bucket not yet elapsed at 59 minutes")
	}
	if !HourBucketElapsed(now, now.Add(-61*time.Minute)) {
		t.Error("expected bucket elapsed at 61 minutes")
	}
	if !HourBucketElapsed(now, now.Add(-time.Hour)) {
		t.Error("expected bucket elapsed at exactly 1 hour")
	}
}

func TestWindowStartFor(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	ws := WindowStartFor(now, 24)
	if now.Sub(ws) >= 24*time.Hour {
		t.Errorf("window start %v too far from now %v", ws, now)
	}
	if ws != ws.Truncate(time.Hour) {
		t.Error("expected window start truncated to the hour")
	}
}

func TestBucketKey(t *testing.T) {
	now := time.Now()
	if BucketKey(now, 24) != Bucket24h {
		t.Error("expected 24h bucket")
	}
	if BucketKey(now, 24*7) != Bucket7d {
		t.Error("expected 7d bucket")
	}
	if BucketKey(now, 24*30) != Bucket30d {
		t.Error("expected 30d bucket")
	}
}
