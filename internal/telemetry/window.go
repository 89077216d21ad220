package telemetry

// DefaultWindowCapacity keeps roughly 24 hours of readings at 15-minute
// spacing, less under faster polling.
const DefaultWindowCapacity = 96

// Window is a bounded, insertion-ordered buffer of the most recent
// Readings. Oldest entries are evicted once capacity is exceeded.
// Not safe for concurrent use — the poller owns it.
type Window struct {
	readings []Reading
	capacity int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &Window{
		readings: make([]Reading, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a reading, evicting the oldest one when full.
func (w *Window) Append(r Reading) {
	w.readings = append(w.readings, r)
	if len(w.readings) > w.capacity {
		w.readings = w.readings[1:]
	}
}

// Readings returns a copy, oldest first.
func (w *Window) Readings() []Reading {
	out := make([]Reading, len(w.readings))
	copy(out, w.readings)
	return out
}

// Latest returns the most recent reading.
func (w *Window) Latest() (Reading, bool) {
	if len(w.readings) == 0 {
		return Reading{}, false
	}
	return w.readings[len(w.readings)-1], true
}

func (w *Window) Len() int {
	return len(w.readings)
}

func (w *Window) Capacity() int {
	return w.capacity
}
