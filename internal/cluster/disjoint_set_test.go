package cluster

import "testing"

func TestDisjointSetSingletons(t *testing.T) {
	ds := NewDisjointSet(5)
	for i := range 5 {
		if got := ds.Find(i); got != i {
			t.Errorf("Find(%d) = %d; want %d", i, got, i)
		}
	}
}

func TestDisjointSetUnionKeepsFirstRoot(t *testing.T) {
	ds := NewDisjointSet(4)
	ds.Union(2, 3)
	if root := ds.Find(3); root != 2 {
		t.Errorf("Find(3) = %d; want 2", root)
	}
	ds.Union(0, 3)
	if root := ds.Find(2); root != 0 {
		t.Errorf("Find(2) = %d; want 0", root)
	}
	if ds.Find(1) != 1 {
		t.Error("untouched element should stay a singleton")
	}
}

func TestDisjointSetPathCompression(t *testing.T) {
	const n = 10000
	ds := NewDisjointSet(n)
	// Build one long chain: n-1 -> n-2 -> ... -> 0.
	for i := 1; i < n; i++ {
		ds.parent[i] = i - 1
	}

	if root := ds.Find(n - 1); root != 0 {
		t.Fatalf("Find(n-1) = %d; want 0", root)
	}
	for i := range n {
		if ds.parent[i] != 0 {
			t.Fatalf("parent[%d] = %d after compression; want 0", i, ds.parent[i])
		}
	}
}

func TestDisjointSetUnionIdempotent(t *testing.T) {
	ds := NewDisjointSet(3)
	ds.Union(0, 1)
	ds.Union(1, 0)
	ds.Union(0, 1)
	if ds.Find(0) != ds.Find(1) {
		t.Error("0 and 1 should share a set")
	}
	if ds.Find(2) == ds.Find(0) {
		t.Error("2 should not be merged")
	}
}
