package election

import "sync"

// termRegister is a monotonic term counter, safe under concurrent access.
// UpdateTo and Next serialize on the same mutex so no reader ever observes
// a decrease (§4.1).
type termRegister struct {
	mu      sync.Mutex
	current Term
}

// Current returns the current term.
func (t *termRegister) Current() Term {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Next atomically increments and returns the new term.
func (t *termRegister) Next() Term {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current++
	return t.current
}

// UpdateTo sets current to newTerm if newTerm is higher; idempotent
// otherwise. Returns true if the term was raised.
func (t *termRegister) UpdateTo(newTerm Term) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if newTerm > t.current {
		t.current = newTerm
		return true
	}
	return false
}

// IsBefore reports whether the current term is strictly less than other.
func (t *termRegister) IsBefore(other Term) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current < other
}
