package registry

import (
	"math"
	"math/rand"
	"testing"
)

func walk[V any](r *Registry[V]) []uint64 {
	var ids []uint64
	for id := r.First(); id != 0; id = r.Next(id) {
		ids = append(ids, id)
	}
	return ids
}

func TestGenerateAppendsInOrder(t *testing.T) {
	r := New[string]()
	if r.First() != 0 {
		t.Fatalf("expected empty registry to report 0 head")
	}
	for i := 0; i < 3; i++ {
		id, err := r.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if id != uint64(i+1) {
			t.Fatalf("expected id %d, got %d", i+1, id)
		}
	}
	got := walk(r)
	want := []uint64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if r.Next(3) != 0 {
		t.Fatalf("expected tail successor to be 0")
	}
}

func TestRemoveHeadMiddleTail(t *testing.T) {
	r := New[int]()
	for i := 0; i < 5; i++ {
		if _, err := r.Insert(i * 10); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for _, id := range []uint64{1, 3, 5} {
		if !r.Remove(id) {
			t.Fatalf("expected remove of %d to succeed", id)
		}
	}
	got := walk(r)
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("unexpected chain after removal: %v", got)
	}
	if r.Len() != 2 {
		t.Fatalf("expected len 2, got %d", r.Len())
	}
	if r.First() != 2 || r.Last() != 4 {
		t.Fatalf("unexpected head/tail %d/%d", r.First(), r.Last())
	}
	if v, ok := r.Get(4); !ok || v != 30 {
		t.Fatalf("expected value 30 for id 4, got %d (%v)", v, ok)
	}
}

func TestRemoveAbsentIsRejected(t *testing.T) {
	r := New[int]()
	id, _ := r.Insert(1)
	if r.Remove(0) {
		t.Fatalf("removing the sentinel must fail")
	}
	if r.Remove(id + 1) {
		t.Fatalf("removing an unknown id must fail")
	}
	if !r.Remove(id) {
		t.Fatalf("expected first removal to succeed")
	}
	if r.Remove(id) {
		t.Fatalf("expected second removal to fail")
	}
	if r.Len() != 0 || r.First() != 0 || r.Last() != 0 {
		t.Fatalf("expected empty registry after removal")
	}
}

func TestIDsNeverReused(t *testing.T) {
	r := New[struct{}]()
	first, _ := r.Generate()
	r.Remove(first)
	second, _ := r.Generate()
	if second == first {
		t.Fatalf("id %d was reused", first)
	}
	if r.LastIssued() != second {
		t.Fatalf("expected last issued %d, got %d", second, r.LastIssued())
	}
}

func TestGenerateExhaustion(t *testing.T) {
	r := New[int]()
	r.lastID = math.MaxUint64 - 1
	id, err := r.Generate()
	if err != nil || id != math.MaxUint64 {
		t.Fatalf("expected final id, got %d (%v)", id, err)
	}
	if _, err := r.Generate(); err != ErrIDSpaceExhausted {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("failed generate must not change length")
	}
}

func TestLenMatchesTraversalUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := New[int]()
	live := make(map[uint64]struct{})
	for step := 0; step < 5000; step++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			id, err := r.Generate()
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			live[id] = struct{}{}
		} else {
			ids := r.IDs()
			victim := ids[rng.Intn(len(ids))]
			if !r.Remove(victim) {
				t.Fatalf("step %d: remove %d failed", step, victim)
			}
			delete(live, victim)
		}
		if step%97 == 0 {
			seen := walk(r)
			if len(seen) != r.Len() || len(seen) != len(live) {
				t.Fatalf("step %d: len %d, walk %d, live %d", step, r.Len(), len(seen), len(live))
			}
			for i := 1; i < len(seen); i++ {
				if seen[i] <= seen[i-1] {
					t.Fatalf("traversal out of insertion order: %v", seen)
				}
			}
		}
	}
}

func TestRoundTripVisibility(t *testing.T) {
	r := New[int]()
	ids := make([]uint64, 0, 4)
	for i := 0; i < 4; i++ {
		id, _ := r.Generate()
		ids = append(ids, id)
	}
	for _, target := range ids {
		count := 0
		for _, id := range walk(r) {
			if id == target {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("id %d appeared %d times", target, count)
		}
	}
	r.Remove(ids[2])
	for _, id := range walk(r) {
		if id == ids[2] {
			t.Fatalf("removed id %d still reachable", id)
		}
	}
}

func TestAllToleratesRemovingCurrent(t *testing.T) {
	r := New[int]()
	for i := 0; i < 6; i++ {
		r.Insert(i)
	}
	for id, v := range r.All() {
		if v%2 == 0 {
			r.Remove(id)
		}
	}
	got := walk(r)
	if len(got) != 3 || got[0] != 2 || got[1] != 4 || got[2] != 6 {
		t.Fatalf("unexpected survivors %v", got)
	}
}

func TestSetRequiresLiveID(t *testing.T) {
	r := New[string]()
	id, _ := r.Generate()
	if !r.Set(id, "a") {
		t.Fatalf("expected set on live id to succeed")
	}
	if r.Set(id+1, "b") {
		t.Fatalf("expected set on unknown id to fail")
	}
	if v, _ := r.Get(id); v != "a" {
		t.Fatalf("expected stored value, got %q", v)
	}
}
