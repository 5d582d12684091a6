package notify

import "sync"

const DefaultRecorderCapacity = 50

// Recorder keeps the most recent notices in a bounded ring, so clients
// that were not connected can still fetch what happened.
type Recorder struct {
	mu       sync.Mutex
	notices  []Notice
	next     int
	full     bool
	capacity int
}

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{
		notices:  make([]Notice, capacity),
		capacity: capacity,
	}
}

func (r *Recorder) Notify(notice Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notices[r.next] = notice
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the recorded notices, oldest first.
func (r *Recorder) Recent() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Notice, r.next)
		copy(out, r.notices[:r.next])
		return out
	}

	out := make([]Notice, 0, r.capacity)
	out = append(out, r.notices[r.next:]...)
	out = append(out, r.notices[:r.next]...)
	return out
}

// Last returns the newest notice, if any.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full && r.next == 0 {
		return Notice{}, false
	}
	idx := (r.next - 1 + r.capacity) % r.capacity
	return r.notices[idx], true
}
