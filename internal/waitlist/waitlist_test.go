package waitlist

import (
	"sync"
	"testing"
)

func TestWaitlist_FIFO(t *testing.T) {
	t.Parallel()

	w := New()
	for i := int64(1); i <= 5; i++ {
		if pos := w.Enqueue("conf", i); pos != int(i) {
			t.Fatalf("expected position %d, got %d", i, pos)
		}
	}

	for want := int64(1); want <= 5; want++ {
		id, ok := w.DequeueHead("conf")
		if !ok {
			t.Fatalf("expected entry %d, queue empty", want)
		}
		if id != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}
	if _, ok := w.DequeueHead("conf"); ok {
		t.Fatal("expected empty queue")
	}
}

func TestWaitlist_RemovePreservesOrder(t *testing.T) {
	t.Parallel()

	w := New()
	for i := int64(1); i <= 4; i++ {
		w.Enqueue("conf", i)
	}

	if !w.Remove("conf", 2) {
		t.Fatal("expected remove to report presence")
	}
	if w.Remove("conf", 2) {
		t.Fatal("expected second remove to report absence")
	}

	want := []int64{1, 3, 4}
	for _, expect := range want {
		id, ok := w.DequeueHead("conf")
		if !ok || id != expect {
			t.Fatalf("expected %d, got %d (ok=%v)", expect, id, ok)
		}
	}
}

func TestWaitlist_Position(t *testing.T) {
	t.Parallel()

	w := New()
	w.Enqueue("conf", 10)
	w.Enqueue("conf", 20)

	if pos := w.Position("conf", 20); pos != 2 {
		t.Fatalf("expected position 2, got %d", pos)
	}
	if pos := w.Position("conf", 99); pos != 0 {
		t.Fatalf("expected 0 for absent id, got %d", pos)
	}
}

func TestWaitlist_Clear(t *testing.T) {
	t.Parallel()

	w := New()
	w.Enqueue("conf", 1)
	w.Enqueue("conf", 2)

	removed := w.Clear("conf")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(removed))
	}
	if w.Len("conf") != 0 {
		t.Fatalf("expected empty queue, got %d", w.Len("conf"))
	}
	if removed := w.Clear("conf"); len(removed) != 0 {
		t.Fatalf("expected idempotent clear, got %d entries", len(removed))
	}
}

func TestWaitlist_IndependentConferences(t *testing.T) {
	t.Parallel()

	w := New()
	w.Enqueue("a", 1)
	w.Enqueue("b", 2)

	if id, ok := w.DequeueHead("a"); !ok || id != 1 {
		t.Fatalf("conference a: got %d (ok=%v)", id, ok)
	}
	if w.Len("b") != 1 {
		t.Fatalf("conference b should be untouched, len=%d", w.Len("b"))
	}
}

func TestWaitlist_ConcurrentEnqueue(t *testing.T) {
	t.Parallel()

	w := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			w.Enqueue("conf", id)
		}(int64(i))
	}
	wg.Wait()

	if w.Len("conf") != 100 {
		t.Fatalf("expected 100 queued, got %d", w.Len("conf"))
	}
	seen := make(map[int64]bool)
	for {
		id, ok := w.DequeueHead("conf")
		if !ok {
			break
		}
		if seen[id] {
			t.Fatalf("duplicate id %d in queue", id)
		}
		seen[id] = true
	}
	if len(seen) != 100 {
		t.Fatalf("expected 100 distinct ids, got %d", len(seen))
	}
}
