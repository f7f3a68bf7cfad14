package qf

import "testing"

func TestReadySetHighestPrioritySelection(t *testing.T) {
	r := newReadySet()
	r.insert(3)
	r.insert(7)
	r.insert(1)

	prio, ok := r.highest()
	if !ok || prio != 7 {
		t.Fatalf("expected highest priority 7, got %d (ok=%v)", prio, ok)
	}
}

func TestReadySetRemoveAndEmpty(t *testing.T) {
	r := newReadySet()
	if !r.isEmpty() {
		t.Fatalf("expected new readySet to be empty")
	}

	r.insert(5)
	if r.isEmpty() {
		t.Fatalf("expected readySet to be non-empty after insert")
	}

	removed := r.remove(5)
	if !removed {
		t.Fatalf("expected remove to report the bit was previously set")
	}
	if !r.isEmpty() {
		t.Fatalf("expected readySet to be empty after removing its only bit")
	}

	if r.remove(5) {
		t.Fatalf("expected a second remove of the same bit to report false")
	}
}

func TestHighestBitHelper(t *testing.T) {
	cases := []struct {
		bitmap uint64
		want   uint8
		ok     bool
	}{
		{0, 0, false},
		{1, 1, true},
		{0b1010, 4, true},
		{uint64(1) << 63, 64, true},
	}
	for _, c := range cases {
		got, ok := highestBit(c.bitmap)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("highestBit(%b) = (%d, %v), want (%d, %v)", c.bitmap, got, ok, c.want, c.ok)
		}
	}
}

func TestReadySetSnapshotIsPointInTime(t *testing.T) {
	r := newReadySet()
	r.insert(2)
	snap := r.snapshot()
	r.insert(9)

	if snap&(uint64(1)<<8) != 0 {
		t.Fatalf("snapshot should not reflect inserts made after it was taken")
	}
}
