package gps

import "sort"

// DefaultHistoryCap bounds the rolling position history of a session.
const DefaultHistoryCap = 50

// History is a bounded, timestamp-ordered buffer of fixes for one session.
// It is not safe for concurrent use; the owning classifier serialises access.
type History struct {
	capacity int
	points   []Fix
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &History{capacity: capacity, points: make([]Fix, 0, capacity)}
}

// Add inserts f keeping timestamps non-decreasing and evicts the oldest
// entries once the cap is exceeded. Out-of-order fixes land in their sorted
// position; equal timestamps keep arrival order.
func (h *History) Add(f Fix) {
	n := len(h.points)
	if n == 0 || h.points[n-1].Timestamp <= f.Timestamp {
		h.points = append(h.points, f)
	} else {
		i := sort.Search(n, func(i int) bool { return h.points[i].Timestamp > f.Timestamp })
		h.points = append(h.points, Fix{})
		copy(h.points[i+1:], h.points[i:])
		h.points[i] = f
	}
	if over := len(h.points) - h.capacity; over > 0 {
		h.points = append(h.points[:0], h.points[over:]...)
	}
}

// Points returns a copy of the stored fixes, oldest first.
func (h *History) Points() []Fix {
	out := make([]Fix, len(h.points))
	copy(out, h.points)
	return out
}

// Latest returns the newest fix by timestamp.
func (h *History) Latest() (Fix, bool) {
	if len(h.points) == 0 {
		return Fix{}, false
	}
	return h.points[len(h.points)-1], true
}

func (h *History) Len() int { return len(h.points) }

// Reset discards all stored fixes.
func (h *History) Reset() { h.points = h.points[:0] }
