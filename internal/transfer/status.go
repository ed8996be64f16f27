package transfer

// Status is the lifecycle state shared by transfers and work orders.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Kind tags a transfer as an upload or a download. Queues are per-kind;
// workers are parameterized by the queue's kind, not by transfer type.
type Kind string

const (
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
)
