package provision

import "sync"

// latch holds at most one value. It is written from host stack callbacks and
// drained from the poll loop.
type latch[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	gen   uint64 // bumped on every store
}

// offer stores v unless a value is already held and reports whether it did.
func (l *latch[T]) offer(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return false
	}
	l.value, l.set = v, true
	l.gen++
	return true
}

// put stores v, replacing any held value.
func (l *latch[T]) put(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value, l.set = v, true
	l.gen++
}

// current returns the held value and its generation without clearing it.
func (l *latch[T]) current() (T, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.gen, l.set
}

// clearIf clears the held value only if it is still the one stored at gen.
func (l *latch[T]) clearIf(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set || l.gen != gen {
		return false
	}
	var zero T
	l.value, l.set = zero, false
	return true
}

// take returns and clears the held value.
func (l *latch[T]) take() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.value, l.set
	var zero T
	l.value, l.set = zero, false
	return v, ok
}
