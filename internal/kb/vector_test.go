package kb

import "testing"

func TestVectorIndex(t *testing.T) {
	if _, err := newVectorIndex(0); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
	v, err := newVectorIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Add("bad", []float32{1}); err == nil {
		t.Error("expected dimension mismatch")
	}
	v.Add("x", []float32{1, 0})
	v.Add("y", []float32{0, 1})
	v.Add("z", []float32{0.6, 0.8})

	hits, err := v.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != "x" || hits[1].ID != "z" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[1].Score < 0.599 || hits[1].Score > 0.601 {
		t.Errorf("score = %v, want 0.6", hits[1].Score)
	}

	v.Add("x", []float32{0, 1})
	if v.Size() != 3 {
		t.Errorf("Size after replace = %d, want 3", v.Size())
	}

	v.Remove("x")
	v.Remove("missing")
	if v.Size() != 2 {
		t.Errorf("Size after remove = %d, want 2", v.Size())
	}
	all, _ := v.Search([]float32{0, 1}, 0)
	if len(all) != 2 || all[0].ID != "y" || all[1].ID != "z" {
		t.Fatalf("all = %+v", all)
	}

	if _, err := v.Search([]float32{1}, 1); err == nil {
		t.Error("expected query dimension mismatch")
	}
}

func TestCosineClamped(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("cosine = %v, want 0", got)
	}
	if got := cosine([]float32{1}, []float32{1, 0}); got != 0 {
		t.Errorf("length mismatch = %v, want 0", got)
	}
}
