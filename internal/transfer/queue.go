package transfer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/metrics"
)

// Queue schedules work orders of one kind onto a pool of workers. It holds
// no orders itself: workers scan the registered transfers in insertion
// order and claim the first created order of a running transfer, so a
// stalled transfer never blocks the ones behind it.
type Queue struct {
	kind Kind
	deps Deps
	log  zerolog.Logger

	// source yields the current transfers, insertion-ordered.
	source func() []Transfer

	// ctx outlives individual workers; finalizers run on it so killing a
	// worker during ramp-down cannot cancel a multipart completion.
	ctx context.Context

	initialWorkers int
	maxWorkers     int
	// scaling queues ramp up on success and shed a worker on retry, so a
	// flaky link converges on however many streams it can actually carry.
	scaling bool

	mu      sync.Mutex
	paused  bool
	workers []*Worker
	wg      sync.WaitGroup
}

func newQueue(ctx context.Context, kind Kind, deps Deps, source func() []Transfer, initial, max int, scaling bool) *Queue {
	return &Queue{
		kind:           kind,
		deps:           deps,
		log:            deps.Log.With().Str("queue", string(kind)).Logger(),
		source:         source,
		ctx:            ctx,
		initialWorkers: initial,
		maxWorkers:     max,
		scaling:        scaling,
	}
}

// Start spins up the initial worker pool.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < q.initialWorkers; i++ {
		q.addWorkerLocked()
	}
}

// Pause stops handing out new work orders. In-flight orders finish.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume re-enables scheduling.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
}

// NextWorkOrder claims the first created order of a running transfer of
// this queue's kind, or returns nils when nothing is claimable.
func (q *Queue) NextWorkOrder() (Transfer, *WorkOrder) {
	q.mu.Lock()
	paused := q.paused
	q.mu.Unlock()
	if paused {
		return nil, nil
	}

	for _, t := range q.source() {
		if t.Kind() != q.kind || t.Status() != StatusRunning {
			continue
		}
		for _, wo := range t.WorkOrders() {
			if wo.Claim() {
				return t, wo
			}
		}
	}
	return nil, nil
}

func (q *Queue) addWorkerLocked() {
	w := newWorker(q)
	q.workers = append(q.workers, w)
	metrics.QueueWorkers.WithLabelValues(string(q.kind)).Set(float64(len(q.workers)))
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		w.run()
		q.removeWorker(w)
	}()
}

func (q *Queue) removeWorker(w *Worker) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, other := range q.workers {
		if other == w {
			q.workers = append(q.workers[:i], q.workers[i+1:]...)
			break
		}
	}
	metrics.QueueWorkers.WithLabelValues(string(q.kind)).Set(float64(len(q.workers)))
}

// hasPendingWork reports whether any running transfer of this kind still
// has an unclaimed order.
func (q *Queue) hasPendingWork() bool {
	for _, t := range q.source() {
		if t.Kind() != q.kind || t.Status() != StatusRunning {
			continue
		}
		for _, wo := range t.WorkOrders() {
			if wo.Status() == StatusCreated {
				return true
			}
		}
	}
	return false
}

// NotifySuccess is called by a worker after a work order succeeds. Scaling
// queues take it as a sign the link has headroom and add a worker, up to
// the cap and only while unclaimed work remains to feed it.
func (q *Queue) NotifySuccess() {
	if !q.scaling || !q.hasPendingWork() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.workers) < q.maxWorkers {
		q.log.Debug().Int("workers", len(q.workers)+1).Msg("scaling up")
		q.addWorkerLocked()
	}
}

// NotifyRetry is called by a worker whose attempt failed. Scaling queues
// shed one other worker: too many parallel streams on a saturated link
// starve each other, so failure backs the pool off. The reporting worker
// is never the victim; it keeps retrying its own order.
func (q *Queue) NotifyRetry(reporter *Worker) {
	metrics.WorkOrderRetries.WithLabelValues(string(q.kind)).Inc()
	if !q.scaling {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, w := range q.workers {
		if w != reporter {
			q.log.Debug().Int("workers", len(q.workers)-1).Msg("scaling down")
			w.kill()
			return
		}
	}
}

// WorkerSpeeds reports each live worker's current transfer rate in bytes
// per second.
func (q *Queue) WorkerSpeeds() []float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	speeds := make([]float64, 0, len(q.workers))
	for _, w := range q.workers {
		speeds = append(speeds, w.speed.Value())
	}
	return speeds
}

// Shutdown kills all workers and waits for them to exit.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	for _, w := range q.workers {
		w.kill()
	}
	q.mu.Unlock()
	q.wg.Wait()
}
