package paper

import "sync"

const defaultLedgerSize = 64

// Ledger keeps the most recent close results in a fixed-size ring.
type Ledger struct {
	mu      sync.Mutex
	results []CloseResult
	next    int
	full    bool
}

// NewLedger creates an empty ledger holding at most capacity results.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = defaultLedgerSize
	}
	return &Ledger{results: make([]CloseResult, capacity)}
}

// Record stores a result, evicting the oldest once the ring is full.
func (l *Ledger) Record(result CloseResult) {
	l.mu.Lock()
	l.results[l.next] = result
	l.next = (l.next + 1) % len(l.results)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

// Len reports how many results are held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lenLocked()
}

// Last returns up to n most recent results, oldest first.
func (l *Ledger) Last(n int) []CloseResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := l.lenLocked()
	if n <= 0 || size == 0 {
		return nil
	}
	if n > size {
		n = size
	}
	out := make([]CloseResult, n)
	start := l.next - n
	for i := range out {
		out[i] = l.results[(start+i+len(l.results))%len(l.results)]
	}
	return out
}

func (l *Ledger) lenLocked() int {
	if l.full {
		return len(l.results)
	}
	return l.next
}

// MultiRecorder fans a result out to several recorders.
type MultiRecorder []ResultRecorder

// Record forwards the result to every non-nil recorder.
func (m MultiRecorder) Record(result CloseResult) {
	for _, r := range m {
		if r != nil {
			r.Record(result)
		}
	}
}
