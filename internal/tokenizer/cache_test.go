package tokenizer

import (
	"context"
	"testing"
)

type countingCounter struct {
	calls int
}

func (c *countingCounter) Count(_ context.Context, p Payload) (int, error) {
	c.calls++
	return len(p.Content), nil
}

func TestCachedCounterMemoizes(t *testing.T) {
	inner := &countingCounter{}
	cached := NewCachedCounter(inner)

	p := Payload{Role: "user", Content: "hello"}
	for i := 0; i < 5; i++ {
		n, err := cached.Count(context.Background(), p)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != 5 {
			t.Fatalf("Count = %d, want 5", n)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner counter called %d times, want 1", inner.calls)
	}
	if cached.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", cached.Size())
	}
}

func TestCachedCounterDistinguishesPayloads(t *testing.T) {
	inner := &countingCounter{}
	cached := NewCachedCounter(inner)

	if _, err := cached.Count(context.Background(), Payload{Role: "user", Content: "a"}); err != nil {
		t.Fatalf("Count: %v", err)
	}
	if _, err := cached.Count(context.Background(), Payload{Role: "system", Content: "a"}); err != nil {
		t.Fatalf("Count: %v", err)
	}
	if _, err := cached.Count(context.Background(), Payload{Role: "user", Content: "a", Name: "n"}); err != nil {
		t.Fatalf("Count: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("inner counter called %d times, want 3", inner.calls)
	}
	if cached.Size() != 3 {
		t.Fatalf("cache size = %d, want 3", cached.Size())
	}
}
