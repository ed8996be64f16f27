package transfer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/constants"
)

// Manager is the registry of all transfers plus the two worker queues.
// Transfers are kept in insertion order; the queues scan them FIFO so
// earlier transfers drain first.
type Manager struct {
	deps Deps
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	transfers map[string]Transfer
	order     []string

	uploadQueue   *Queue
	downloadQueue *Queue
}

// NewManager creates the registry and its queues. Start must be called
// before any work is executed.
func NewManager(deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		deps:      deps,
		log:       deps.Log.With().Str("component", "manager").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		transfers: make(map[string]Transfer),
	}
	// Uploads start with a single stream and ramp up while the link keeps
	// delivering; downloads run a fixed pool.
	m.uploadQueue = newQueue(ctx, KindUpload, deps, m.List, 1, constants.MaxUploadWorkers, true)
	m.downloadQueue = newQueue(ctx, KindDownload, deps, m.List, constants.DownloadWorkers, constants.DownloadWorkers, false)
	return m
}

// Start spins up both worker pools.
func (m *Manager) Start() {
	m.uploadQueue.Start()
	m.downloadQueue.Start()
	m.log.Info().Msg("transfer queues started")
}

// Deps exposes the shared collaborators for transfer construction.
func (m *Manager) Deps() Deps { return m.deps }

// UploadQueue returns the upload worker pool.
func (m *Manager) UploadQueue() *Queue { return m.uploadQueue }

// DownloadQueue returns the download worker pool.
func (m *Manager) DownloadQueue() *Queue { return m.downloadQueue }

// Add registers a transfer. It is visible to the control plane right away
// but workers cannot claim from it until it is started.
func (m *Manager) Add(t Transfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.ID()] = t
	m.order = append(m.order, t.ID())
}

// Get looks a transfer up by id.
func (m *Manager) Get(id string) (Transfer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[id]
	return t, ok
}

// Remove stops and unregisters a transfer. Returns false when the id is
// unknown.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	t, ok := m.transfers[id]
	if ok {
		delete(m.transfers, id)
		for i, other := range m.order {
			if other == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	t.Stop()
	m.log.Info().Str("transfer", id).Msg("transfer removed")
	return true
}

// List returns the transfers in insertion order.
func (m *Manager) List() []Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transfer, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.transfers[id])
	}
	return out
}

// Snapshots serializes every transfer for the list view.
func (m *Manager) Snapshots() []any {
	transfers := m.List()
	out := make([]any, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, t.Snapshot(false))
	}
	return out
}

// Shutdown stops all transfers and waits for the worker pools to drain.
func (m *Manager) Shutdown() {
	for _, t := range m.List() {
		t.Stop()
	}
	m.cancel()
	m.uploadQueue.Shutdown()
	m.downloadQueue.Shutdown()
	m.log.Info().Msg("transfer manager stopped")
}
