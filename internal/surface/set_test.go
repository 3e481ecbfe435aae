package surface

import (
	"math/rand/v2"
	"testing"
)

func TestSampleSetRandomizedStability(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var set SampleSet
	live := map[SampleIndex]int{}
	var stopped []SampleIndex

	next := 0
	for step := 0; step < 2000; step++ {
		if len(live) == 0 || rng.IntN(3) > 0 {
			h := set.Add(SamplePoint{VertexIndex: next})
			if _, dup := live[h]; dup {
				t.Fatalf("step %d: handle %v issued twice", step, h)
			}
			live[h] = next
			next++
		} else {
			var victim SampleIndex
			k := rng.IntN(len(live))
			for h := range live {
				if k == 0 {
					victim = h
					break
				}
				k--
			}
			if _, ok := set.Remove(victim); !ok {
				t.Fatalf("step %d: remove of live handle failed", step)
			}
			delete(live, victim)
			stopped = append(stopped, victim)
		}

		if set.Len() != len(live) {
			t.Fatalf("step %d: Len = %d, want %d", step, set.Len(), len(live))
		}
		for h, v := range live {
			p, ok := set.Get(h)
			if !ok || p.VertexIndex != v {
				t.Fatalf("step %d: handle for vertex %d resolved to %+v (ok=%v)", step, v, p.VertexIndex, ok)
			}
		}
	}

	for _, h := range stopped {
		if set.Contains(h) {
			t.Fatalf("stopped handle %v still resolves", h)
		}
	}
}

func TestSampleSetSlotReuseRejectsStaleHandle(t *testing.T) {
	var set SampleSet
	a := set.Add(SamplePoint{VertexIndex: 10})
	if _, ok := set.Remove(a); !ok {
		t.Fatal("remove failed")
	}
	b := set.Add(SamplePoint{VertexIndex: 11})

	if b.slot != a.slot {
		t.Fatalf("expected slot reuse, got %d and %d", a.slot, b.slot)
	}
	if set.Contains(a) {
		t.Error("stale handle resolves after slot reuse")
	}
	if _, ok := set.Remove(a); ok {
		t.Error("removing a stale handle should fail")
	}
	if p, ok := set.Get(b); !ok || p.VertexIndex != 11 {
		t.Errorf("new handle resolved to %+v", p)
	}
}

func TestSampleSetZeroHandle(t *testing.T) {
	var set SampleSet
	set.Add(SamplePoint{VertexIndex: 1})
	var zero SampleIndex
	if !zero.IsZero() || set.Contains(zero) {
		t.Error("zero handle must never resolve")
	}
	if _, ok := set.Find(2); ok {
		t.Error("Find of untracked vertex succeeded")
	}
}
