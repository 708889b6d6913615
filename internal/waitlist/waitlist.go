// Package waitlist maintains per-conference FIFO queues of booking ids.
// Each conference has its own mutex, so queues for independent conferences
// never contend with one another.
package waitlist

import "sync"

type queue struct {
	mu  sync.Mutex
	ids []int64
}

// Waitlist is the set of per-conference FIFO queues.
type Waitlist struct {
	mu     sync.Mutex
	queues map[string]*queue
}

// New constructs an empty waitlist.
func New() *Waitlist {
	return &Waitlist{queues: make(map[string]*queue)}
}

func (w *Waitlist) get(conference string) *queue {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.queues[conference]
	if !ok {
		q = &queue{}
		w.queues[conference] = q
	}
	return q
}

// Enqueue appends a booking id and returns its 1-based queue position.
func (w *Waitlist) Enqueue(conference string, id int64) int {
	q := w.get(conference)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return len(q.ids)
}

// DequeueHead removes and returns the earliest-enqueued id, or false if the
// queue is empty.
func (w *Waitlist) DequeueHead(conference string) (int64, bool) {
	q := w.get(conference)
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

// Remove deletes an arbitrary entry without disturbing the relative order
// of the rest. It reports whether the id was present.
func (w *Waitlist) Remove(conference string, id int64) bool {
	q := w.get(conference)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the current queue length.
func (w *Waitlist) Len(conference string) int {
	q := w.get(conference)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Position returns the 1-based position of id in the queue, or 0 if absent.
func (w *Waitlist) Position(conference string, id int64) int {
	q := w.get(conference)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, v := range q.ids {
		if v == id {
			return i + 1
		}
	}
	return 0
}

// Clear empties the queue and returns the ids that were removed.
func (w *Waitlist) Clear(conference string) []int64 {
	q := w.get(conference)
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := q.ids
	q.ids = nil
	return removed
}
