package memstats

import "testing"

type fixedSource uint64

func (f fixedSource) ProcessBytes() uint64 { return uint64(f) }

func TestOverThreshold(t *testing.T) {
	tr := NewTracker(fixedSource(100), 1000)
	if tr.OverThreshold(100, 100) {
		t.Fatal("300 of 1000 should be under the 80% threshold")
	}
	if !tr.OverThreshold(500, 200) {
		t.Fatal("800 of 1000 should trip the 80% threshold")
	}
}

func TestNoLimitNeverTriggers(t *testing.T) {
	tr := NewTracker(fixedSource(1 << 40), 0)
	if tr.OverThreshold(1<<40, 1<<40) {
		t.Fatal("unlimited tracker must never trigger cleanup")
	}
}

func TestSnapshotFields(t *testing.T) {
	tr := NewTracker(fixedSource(42), 500)
	s := tr.Snapshot(10, 20)
	if s.ModelBytes != 10 || s.CacheBytes != 20 || s.RuntimeBytes != 42 || s.LimitBytes != 500 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}
