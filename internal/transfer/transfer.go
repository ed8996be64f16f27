package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/api"
)

// Transfer is one user-visible job: an upload of a packaged archive or a
// download of a job's outputs. Implementations own their work orders; the
// queues only borrow them.
type Transfer interface {
	ID() string
	Kind() Kind
	Status() Status
	StatusText() string

	// Initialize allocates the work orders. It runs once, before the
	// transfer is started; the order list is fixed afterwards.
	Initialize(ctx context.Context) error

	// Start, Pause and Stop drive the status machine. They never touch
	// the worker pool; workers observe status between operations.
	Start()
	Pause()
	Stop()

	// Fail force-fails the transfer with a reason, regardless of current
	// status. Used when Initialize errors before any order ran.
	Fail(reason string)

	// WorkOrders returns the full, fixed order list.
	WorkOrders() []*WorkOrder

	// Update is called by a worker after each work order ends. It
	// recomputes aggregate progress and runs the end-of-transfer
	// finalizer exactly once.
	Update(ctx context.Context)

	Progress() *Progress
	UserData() api.UserData

	// Snapshot serializes the transfer for the control plane. Work-order
	// summaries are included only when withOrders is set; the list view
	// stays small.
	Snapshot(withOrders bool) any
}

// Deps are the collaborators transfers need to execute and finalize.
type Deps struct {
	R2  *api.R2Client
	QM  *api.QueueManagerClient
	Log zerolog.Logger
}

// Summary is the common wire shape of every transfer.
type Summary struct {
	ID         string           `json:"id"`
	Type       Kind             `json:"type"`
	Progress   ProgressSnapshot `json:"progress"`
	Status     Status           `json:"status"`
	StatusText string           `json:"status_text"`
	Created    float64          `json:"created"`
	Age        float64          `json:"age"`
	FinishedAt float64          `json:"finished_at"`
	Metadata   map[string]any   `json:"metadata"`
}

// base carries the state shared by uploads and downloads.
type base struct {
	id       string
	kind     Kind
	metadata map[string]any
	userData api.UserData
	progress *Progress
	created  time.Time

	mu         sync.Mutex
	status     Status
	statusText string
	finishedAt time.Time
}

func newBase(id string, kind Kind, userData api.UserData, metadata map[string]any) base {
	return base{
		id:       id,
		kind:     kind,
		metadata: metadata,
		userData: userData,
		progress: NewProgress(),
		created:  time.Now(),
		status:   StatusCreated,
	}
}

func (b *base) ID() string             { return b.id }
func (b *base) Kind() Kind             { return b.kind }
func (b *base) Progress() *Progress    { return b.progress }
func (b *base) UserData() api.UserData { return b.userData }

func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *base) StatusText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusText
}

// Start moves created/paused to running.
func (b *base) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusCreated || b.status == StatusPaused {
		b.status = StatusRunning
	}
}

// Pause suspends a running transfer.
func (b *base) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusRunning {
		b.status = StatusPaused
	}
}

// Stop cancels the transfer. Stopping before it ever started is rejected;
// a created transfer has nothing in flight to cancel.
func (b *base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusCreated && !b.status.Terminal() {
		b.status = StatusFailure
	}
}

// Fail force-fails the transfer, recording the reason for the UI.
func (b *base) Fail(reason string) {
	b.setStatus(StatusFailure, reason)
}

// setStatus forces a status, recording finish time on terminal entry.
func (b *base) setStatus(s Status, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
	if text != "" {
		b.statusText = text
	}
	if s.Terminal() && b.finishedAt.IsZero() {
		b.finishedAt = time.Now()
	}
}

func (b *base) summary() Summary {
	b.mu.Lock()
	status := b.status
	statusText := b.statusText
	finishedAt := b.finishedAt
	b.mu.Unlock()

	finished := float64(0)
	if !finishedAt.IsZero() {
		finished = float64(finishedAt.UnixNano()) / float64(time.Second)
	}

	return Summary{
		ID:         b.id,
		Type:       b.kind,
		Progress:   b.progress.Snapshot(),
		Status:     status,
		StatusText: statusText,
		Created:    float64(b.created.UnixNano()) / float64(time.Second),
		Age:        time.Since(b.created).Seconds(),
		FinishedAt: finished,
		Metadata:   b.metadata,
	}
}
