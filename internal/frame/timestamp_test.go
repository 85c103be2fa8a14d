package frame

import "testing"

type fakeQueryPool struct {
	writes    []struct{ slot int; query uint32 }
	begin     uint64
	end       uint64
	available bool
	resets    int
}

func (p *fakeQueryPool) WriteTimestamp(_ CommandBuffer, slot int, query uint32) error {
	p.writes = append(p.writes, struct {
		slot  int
		query uint32
	}{slot, query})
	return nil
}

func (p *fakeQueryPool) FetchResults(int) (uint64, uint64, bool, error) {
	return p.begin, p.end, p.available, nil
}

func (p *fakeQueryPool) Reset(int) error {
	p.resets++
	return nil
}

func TestTrackerComputesDurationFromTimestampPeriod(t *testing.T) {
	pool := &fakeQueryPool{begin: 1000, end: 1500, available: true}
	tracker := NewTracker(pool, 2.0) // 2ns per tick

	tracker.Register("raymarch")
	if err := tracker.WriteBegin(nil, 0, "raymarch", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tracker.WriteEnd(nil, 0, "raymarch", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	samples := tracker.Collect(0)
	if len(samples) != 1 {
		t.Fatalf("Collect returned %d samples, want 1", len(samples))
	}
	s := samples[0]
	if s.NodeName != "raymarch" || s.FrameIndex != 7 {
		t.Fatalf("sample = %+v, want node=raymarch frame=7", s)
	}
	wantNs := float64(1500-1000) * 2.0
	if s.DurationNs != wantNs {
		t.Fatalf("DurationNs = %v, want %v", s.DurationNs, wantNs)
	}
	if pool.resets != 1 {
		t.Fatalf("pool reset %d times, want 1", pool.resets)
	}

	latest, ok := tracker.Latest("raymarch")
	if !ok || latest.DurationNs != wantNs {
		t.Fatalf("Latest(raymarch) = %+v, %v; want duration %v", latest, ok, wantNs)
	}
}

func TestTrackerCollectSkipsUnavailableResults(t *testing.T) {
	pool := &fakeQueryPool{available: false}
	tracker := NewTracker(pool, 1.0)
	tracker.Register("n")
	_ = tracker.WriteBegin(nil, 0, "n", 1)
	_ = tracker.WriteEnd(nil, 0, "n", 1)

	samples := tracker.Collect(0)
	if len(samples) != 0 {
		t.Fatalf("expected no samples when results unavailable, got %d", len(samples))
	}
}

func TestTrackerSeparateNodesGetDistinctQueryIndices(t *testing.T) {
	pool := &fakeQueryPool{}
	tracker := NewTracker(pool, 1.0)
	tracker.Register("a")
	tracker.Register("b")
	if tracker.nodeQueries["a"] == tracker.nodeQueries["b"] {
		t.Fatalf("two distinct nodes got the same base query index %d", tracker.nodeQueries["a"])
	}
}
