package constants

import (
	"time"
)

// Transfer sizing
const (
	// UploadPartSize - size of one multipart part (25 MiB).
	// The R2 worker rejects multipart uploads with parts under 5 MiB,
	// so files smaller than one part go through single-shot upload instead.
	UploadPartSize = 25 * 1024 * 1024

	// UploadChunkSize - granularity of the upload body stream (1 MiB).
	// Each chunk boundary is a pause/cancel checkpoint and a progress update.
	UploadChunkSize = 1 * 1024 * 1024

	// DownloadCopySize - buffer size for streaming download bodies to disk (256 KiB)
	DownloadCopySize = 256 * 1024

	// HashReadSize - read size when computing the archive MD5 (16 MiB)
	HashReadSize = 16 * 1024 * 1024
)

// Worker pools
const (
	// MaxUploadWorkers - ceiling for the upload queue's ramp-up
	MaxUploadWorkers = 6

	// DownloadWorkers - fixed worker count for the download queue
	DownloadWorkers = 4

	// SpeedWindowEntries - samples kept per worker for throughput reporting
	SpeedWindowEntries = 20

	// IdlePollInterval - sleep when a worker finds no claimable work order
	IdlePollInterval = 1 * time.Second

	// PausePollInterval - sleep while a queue or transfer is paused
	PausePollInterval = 1 * time.Second
)

// Retry behavior
const (
	// DownloadRetryInterval - flat delay between download attempts.
	// Downloads retry forever; only cancellation ends the loop.
	DownloadRetryInterval = 5 * time.Second

	// UploadRetryBaseDelay - base delay for the upload retry backoff
	UploadRetryBaseDelay = 3 * time.Second

	// UploadRetryMaxDelay - cap for the jittered upload retry backoff
	UploadRetryMaxDelay = 30 * time.Second

	// ControlRetryMax - retries for short control-plane RPCs
	// (mpu-create, mpu-abort, uber_api calls)
	ControlRetryMax = 3

	// CompleteRetryMax - retries for multipart completion. Losing a
	// completion call wastes the whole upload, so it gets a longer leash.
	CompleteRetryMax = 20

	// ControlRetryWaitMin / ControlRetryWaitMax - backoff bounds for
	// control-plane retries
	ControlRetryWaitMin = 1 * time.Second
	ControlRetryWaitMax = 10 * time.Second
)

// HTTP timeouts
const (
	// HTTPDialTimeout - timeout for establishing a connection (15 seconds)
	HTTPDialTimeout = 15 * time.Second

	// HTTPResponseHeaderTimeout - time to first response byte for
	// control-plane calls (15 seconds). Data-plane streams have no total
	// deadline; progress is the liveness signal.
	HTTPResponseHeaderTimeout = 15 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake
	HTTPTLSHandshakeTimeout = 15 * time.Second

	// HTTPIdleConnTimeout - how long to keep idle connections open
	HTTPIdleConnTimeout = 90 * time.Second
)

// Control plane
const (
	// DefaultListenHost - loopback only; the control plane is unauthenticated
	DefaultListenHost = "127.0.0.1"

	// DefaultListenPort - fixed port the host application probes
	DefaultListenPort = 7780

	// LogTailBytes - how much of the rolling log GET /api/logs returns
	LogTailBytes = 256 * 1024
)

// Frame output naming
const (
	// FrameNumberWidth - zero padding width for output frame files (0001.png)
	FrameNumberWidth = 4
)
