package slot

import "time"

// BuildQueue returns up to window slots that start strictly after now, ascending by start.
// When nothing is upcoming it falls back to the last window slots so an idle or offline
// catalog still yields a deterministic, non-empty queue.
func BuildQueue(all []Slot, now time.Time, window int) []Slot {
	if window <= 0 || len(all) == 0 {
		return nil
	}
	sorted := append([]Slot(nil), all...)
	Sort(sorted)

	upcoming := make([]Slot, 0, window)
	for _, s := range sorted {
		if s.Start.After(now) {
			upcoming = append(upcoming, s)
		}
	}
	if len(upcoming) == 0 {
		if len(sorted) > window {
			sorted = sorted[len(sorted)-window:]
		}
		return sorted
	}
	if len(upcoming) > window {
		upcoming = upcoming[:window]
	}
	return upcoming
}

// Queue is a FIFO of slots waiting for activation. It is not safe for concurrent use.
type Queue struct {
	items []Slot
}

// NewQueue wraps the slots in order.
func NewQueue(slots []Slot) *Queue {
	return &Queue{items: append([]Slot(nil), slots...)}
}

// Len returns the number of queued slots.
func (q *Queue) Len() int { return len(q.items) }

// Push appends slots to the back of the queue.
func (q *Queue) Push(slots ...Slot) { q.items = append(q.items, slots...) }

// Pop removes and returns the front slot.
func (q *Queue) Pop() (Slot, bool) {
	if len(q.items) == 0 {
		return Slot{}, false
	}
	next := q.items[0]
	q.items[0] = Slot{}
	q.items = q.items[1:]
	return next, true
}

// Labels returns the queued labels in order.
func (q *Queue) Labels() []string {
	out := make([]string, len(q.items))
	for i, s := range q.items {
		out[i] = s.Label
	}
	return out
}
