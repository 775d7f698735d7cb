package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestEmbeddingCache_GetRefreshesRecency(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a")
	c.Set("c", []float32{3}) // evicts b, not a
	if _, ok := c.Get("a"); !ok {
		t.Error("a was recently used and should remain")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b should be evicted")
	}
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := NewMockEmbedder(16)
	c := NewCachedEmbedder(inner, 10)

	first, err := c.Embed(ctx, "cats and dogs")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Embed(ctx, "cats and dogs"); err != nil {
		t.Fatal(err)
	}
	if inner.Calls() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.Calls())
	}

	batch, err := c.EmbedBatch(ctx, []string{"cats and dogs", "birds"})
	if err != nil {
		t.Fatal(err)
	}
	if inner.Calls() != 2 {
		t.Errorf("inner calls after batch = %d, want 2", inner.Calls())
	}
	if len(batch) != 2 || batch[0][0] != first[0] {
		t.Errorf("batch result mismatch")
	}
	if c.Dimensions() != 16 {
		t.Errorf("Dimensions() = %d", c.Dimensions())
	}
}
