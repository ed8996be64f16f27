package transfer

import "sync"

// WorkOrder is the smallest retryable unit a worker executes: one byte
// range of an upload, or one output file of a download. The payload fields
// are populated per kind; the envelope (status, progress, history) is
// shared.
type WorkOrder struct {
	// Number is the stable ordinal within the owning transfer.
	Number int

	// Upload payload
	Offset         int64
	Size           int64
	PartNumber     int
	IsSingleUpload bool

	// Download payload
	URL       string
	LocalPath string
	RelPath   string

	// Progress is mutated by the executing worker while streaming.
	Progress *Progress

	mu         sync.Mutex
	status     Status
	statusText string
	history    []string
}

// newUploadWorkOrder creates a work order for one byte range of an upload.
func newUploadWorkOrder(number int, offset, size int64, partNumber int, single bool) *WorkOrder {
	return &WorkOrder{
		Number:         number,
		Offset:         offset,
		Size:           size,
		PartNumber:     partNumber,
		IsSingleUpload: single,
		Progress:       NewProgress(),
		status:         StatusCreated,
	}
}

// newDownloadWorkOrder creates a work order for one expected output file.
func newDownloadWorkOrder(number int, url, localPath, relPath string) *WorkOrder {
	return &WorkOrder{
		Number:    number,
		URL:       url,
		LocalPath: localPath,
		RelPath:   relPath,
		Progress:  NewProgress(),
		status:    StatusCreated,
	}
}

// Claim atomically transitions created → running. Exactly one worker wins;
// losers keep scanning.
func (wo *WorkOrder) Claim() bool {
	wo.mu.Lock()
	defer wo.mu.Unlock()
	if wo.status != StatusCreated {
		return false
	}
	wo.status = StatusRunning
	return true
}

// Release puts a running order back to created so another worker can pick
// it up. Used when a worker is killed during ramp-down mid-execution.
func (wo *WorkOrder) Release() {
	wo.mu.Lock()
	defer wo.mu.Unlock()
	if wo.status == StatusRunning {
		wo.status = StatusCreated
	}
}

// Status returns the current status.
func (wo *WorkOrder) Status() Status {
	wo.mu.Lock()
	defer wo.mu.Unlock()
	return wo.status
}

// SetStatus replaces the status.
func (wo *WorkOrder) SetStatus(s Status) {
	wo.mu.Lock()
	defer wo.mu.Unlock()
	wo.status = s
}

// SetStatusText replaces the human-readable status line.
func (wo *WorkOrder) SetStatusText(text string) {
	wo.mu.Lock()
	defer wo.mu.Unlock()
	wo.statusText = text
}

// AppendHistory records one retry narrative. The list is served to the UI
// so users can see why a part keeps failing.
func (wo *WorkOrder) AppendHistory(entry string) {
	wo.mu.Lock()
	defer wo.mu.Unlock()
	wo.history = append(wo.history, entry)
	wo.statusText = entry
}

// History returns a copy of the retry narratives.
func (wo *WorkOrder) History() []string {
	wo.mu.Lock()
	defer wo.mu.Unlock()
	out := make([]string, len(wo.history))
	copy(out, wo.history)
	return out
}

// UploadOrderSummary is the wire shape for an upload work order.
type UploadOrderSummary struct {
	Offset     int64    `json:"offset"`
	Size       int64    `json:"size"`
	PartNumber int      `json:"part_number"`
	Done       int64    `json:"done"`
	Total      int64    `json:"total"`
	Status     Status   `json:"status"`
	History    []string `json:"status_history"`
}

// DownloadOrderSummary is the wire shape for a download work order.
type DownloadOrderSummary struct {
	RelPath string   `json:"rel_path"`
	Done    int64    `json:"done"`
	Total   int64    `json:"total"`
	Status  Status   `json:"status"`
	History []string `json:"status_history"`
}

// UploadSummary snapshots the order for the control plane.
func (wo *WorkOrder) UploadSummary() UploadOrderSummary {
	snap := wo.Progress.Snapshot()
	wo.mu.Lock()
	defer wo.mu.Unlock()
	history := make([]string, len(wo.history))
	copy(history, wo.history)
	return UploadOrderSummary{
		Offset:     wo.Offset,
		Size:       wo.Size,
		PartNumber: wo.PartNumber,
		Done:       snap.Done,
		Total:      snap.Total,
		Status:     wo.status,
		History:    history,
	}
}

// DownloadSummary snapshots the order for the control plane.
func (wo *WorkOrder) DownloadSummary() DownloadOrderSummary {
	snap := wo.Progress.Snapshot()
	wo.mu.Lock()
	defer wo.mu.Unlock()
	history := make([]string, len(wo.history))
	copy(history, wo.history)
	return DownloadOrderSummary{
		RelPath: wo.RelPath,
		Done:    snap.Done,
		Total:   snap.Total,
		Status:  wo.status,
		History: history,
	}
}
