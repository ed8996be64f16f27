// Package transfer implements the transfer engine: work orders, uploads,
// downloads, the registry, and the shared worker pools that drain them.
package transfer

import (
	"encoding/json"
	"sync"
	"time"
)

// Progress tracks a done/total pair with a derived ratio. Work orders and
// transfers each own one; workers mutate both in lockstep while streaming.
type Progress struct {
	mu    sync.Mutex
	done  int64
	total int64
	value float64
}

// NewProgress returns an empty progress counter.
func NewProgress() *Progress {
	return &Progress{}
}

func (p *Progress) recompute() {
	if p.total > 0 {
		p.value = float64(p.done) / float64(p.total)
	}
}

// SetDone replaces the done counter.
func (p *Progress) SetDone(done int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	p.recompute()
}

// IncreaseDone advances the done counter.
func (p *Progress) IncreaseDone(by int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += by
	p.recompute()
}

// DecreaseDone rewinds the done counter, used when a failed attempt's
// streamed bytes are taken back before a retry.
func (p *Progress) DecreaseDone(by int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done -= by
	p.recompute()
}

// SetTotal replaces the total.
func (p *Progress) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.recompute()
}

// SetDoneTotal replaces both counters at once.
func (p *Progress) SetDoneTotal(done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	p.total = total
	p.recompute()
}

// SetValue overrides the ratio directly, deriving done from it.
func (p *Progress) SetValue(value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = value
	p.done = int64(value * float64(p.total))
}

// Done returns the done counter.
func (p *Progress) Done() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Total returns the total.
func (p *Progress) Total() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Value returns the derived ratio.
func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Snapshot returns a consistent copy for serialization.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressSnapshot{Value: p.value, Done: p.done, Total: p.total}
}

// ProgressSnapshot is the JSON shape the UI consumes. Done and total are
// omitted until a total is known, matching what the panel expects.
type ProgressSnapshot struct {
	Value float64
	Done  int64
	Total int64
}

// MarshalJSON emits {"value": v} and adds done/total once total is set.
func (s ProgressSnapshot) MarshalJSON() ([]byte, error) {
	m := map[string]any{"value": s.Value}
	if s.Total > 0 {
		m["done"] = s.Done
		m["total"] = s.Total
	}
	return json.Marshal(m)
}

// speedEntry is one throughput sample.
type speedEntry struct {
	at    time.Time
	bytes int64
}

// TransferSpeed reports bytes/sec over a sliding window of samples. It is
// UI reporting only; nothing in the engine keys off it.
type TransferSpeed struct {
	mu       sync.Mutex
	entries  []speedEntry
	capacity int
	value    float64
}

// NewTransferSpeed returns a speed tracker keeping the last capacity samples.
func NewTransferSpeed(capacity int) *TransferSpeed {
	return &TransferSpeed{capacity: capacity}
}

// Update appends a sample and recomputes the windowed rate. With fewer
// than two samples there is no window, so the rate reads zero.
func (s *TransferSpeed) Update(transferredSinceLastUpdate int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, speedEntry{at: time.Now(), bytes: transferredSinceLastUpdate})
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}

	if len(s.entries) < 2 {
		s.value = 0
		return
	}

	window := s.entries[len(s.entries)-1].at.Sub(s.entries[0].at).Seconds()
	if window <= 0 {
		s.value = 0
		return
	}

	var total int64
	for _, e := range s.entries {
		total += e.bytes
	}
	s.value = float64(total) / window
}

// Value returns the current windowed rate in bytes/sec.
func (s *TransferSpeed) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}
