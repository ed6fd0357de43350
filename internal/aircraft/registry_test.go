package aircraft

import "testing"

func TestGetOrCreate(t *testing.T) {
	r := New()
	a, created := r.GetOrCreate(0xA835AF, 1000)
	if !created {
		t.Fatal("expected first GetOrCreate to create")
	}
	if a.ICAO != 0xA835AF {
		t.Fatalf("ICAO = %#x", a.ICAO)
	}

	b, created := r.GetOrCreate(0xA835AF, 2000)
	if created {
		t.Fatal("expected second GetOrCreate to find existing")
	}
	if b != a {
		t.Fatal("expected same aircraft pointer")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
}

func TestDestroyAndReuse(t *testing.T) {
	r := New()
	r.GetOrCreate(0x111111, 0)
	r.GetOrCreate(0x222222, 0)
	r.Destroy(0x111111)
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after destroy", r.Count())
	}
	if r.Get(0x111111) != nil {
		t.Fatal("destroyed aircraft should not be found")
	}
	if r.Get(0x222222) == nil {
		t.Fatal("remaining aircraft should still be found")
	}

	a, created := r.GetOrCreate(0x333333, 0)
	if !created || a.ICAO != 0x333333 {
		t.Fatal("expected fresh aircraft to reuse the freed slot cleanly")
	}
}

func TestForEach(t *testing.T) {
	r := New()
	addrs := []uint32{0x1, 0x2, 0x3}
	for _, a := range addrs {
		r.GetOrCreate(a, 0)
	}
	seen := map[uint32]bool{}
	r.ForEach(func(a *Aircraft) { seen[a.ICAO] = true })
	if len(seen) != len(addrs) {
		t.Fatalf("ForEach visited %d aircraft, want %d", len(seen), len(addrs))
	}
}
