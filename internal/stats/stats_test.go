package stats

import "testing"

func TestRecordAcceptedAccumulates(t *testing.T) {
	s := New(nil, 250)
	s.RecordAccepted(5, 0, false)
	s.RecordAccepted(5, 1, true)

	w := s.Window(1)
	if w.Accepted != 2 {
		t.Fatalf("Accepted = %d, want 2", w.Accepted)
	}
	if w.BySource[5] != 2 {
		t.Fatalf("BySource[5] = %d, want 2", w.BySource[5])
	}
	if w.StrongSignal != 1 {
		t.Fatalf("StrongSignal = %d, want 1", w.StrongSignal)
	}

	all := s.AllTime()
	if all.Accepted != 2 {
		t.Fatalf("AllTime Accepted = %d, want 2", all.Accepted)
	}
}

func TestAdvanceRotatesBucket(t *testing.T) {
	s := New(nil, 250)
	s.RecordAccepted(5, 0, false)
	s.Advance()
	s.RecordAccepted(5, 0, false)

	w1 := s.Window(1)
	if w1.Accepted != 1 {
		t.Fatalf("most recent bucket Accepted = %d, want 1", w1.Accepted)
	}
	w2 := s.Window(2)
	if w2.Accepted != 2 {
		t.Fatalf("2-bucket window Accepted = %d, want 2", w2.Accepted)
	}
}

func TestRangeHistogram(t *testing.T) {
	s := New(nil, 250)
	s.RecordRange(125) // half of max range
	w := s.Window(1)
	total := int64(0)
	for _, v := range w.RangeHistogram {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected exactly one range sample recorded")
	}
}
