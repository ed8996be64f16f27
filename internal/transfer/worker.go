package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/api"
	"github.com/octa-computer/transfer-manager/internal/constants"
	"github.com/octa-computer/transfer-manager/internal/metrics"
)

var workerSeq atomic.Int64

// errTransferEnded aborts an in-flight stream whose transfer was
// cancelled mid-chunk.
var errTransferEnded = errors.New("transfer ended")

// Worker executes work orders from one queue until killed. Each worker
// keeps its own rolling speed window so the control plane can show
// per-stream throughput.
type Worker struct {
	queue  *Queue
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	speed  *TransferSpeed
}

func newWorker(q *Queue) *Worker {
	ctx, cancel := context.WithCancel(q.ctx)
	return &Worker{
		queue:  q,
		log:    q.log.With().Int64("worker", workerSeq.Add(1)).Logger(),
		ctx:    ctx,
		cancel: cancel,
		speed:  NewTransferSpeed(constants.SpeedWindowEntries),
	}
}

// kill cancels the worker. Any in-flight request aborts and the current
// work order is released for another worker.
func (w *Worker) kill() { w.cancel() }

func (w *Worker) run() {
	w.log.Info().Msg("worker starting")
	defer w.log.Info().Msg("worker exiting")

	for {
		if w.ctx.Err() != nil {
			return
		}

		t, wo := w.queue.NextWorkOrder()
		if wo == nil {
			if !w.sleep(constants.IdlePollInterval) {
				return
			}
			continue
		}

		switch w.queue.kind {
		case KindUpload:
			w.executeUpload(t.(*Upload), wo)
		case KindDownload:
			w.executeDownload(t.(*Download), wo)
		}

		// Finalizers run on the queue context: a worker killed during
		// ramp-down must not cancel a multipart completion.
		t.Update(w.queue.ctx)
	}
}

// sleep waits for d or until the worker is killed. Returns false when
// killed.
func (w *Worker) sleep(d time.Duration) bool {
	select {
	case <-w.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// release hands a claimed order back. Normally it returns to created for
// another worker; once the owning transfer is terminal nobody may claim it
// again, so it is failed instead and the finalizer can fire.
func (w *Worker) release(t Transfer, wo *WorkOrder) {
	if t.Status().Terminal() {
		wo.SetStatus(StatusFailure)
		metrics.WorkOrdersCompleted.WithLabelValues(string(t.Kind()), string(StatusFailure)).Inc()
		return
	}
	wo.Release()
}

// waitUnpaused blocks while the transfer is paused. Returns false when the
// worker is killed.
func (w *Worker) waitUnpaused(t Transfer) bool {
	for t.Status() == StatusPaused {
		if !w.sleep(constants.PausePollInterval) {
			return false
		}
	}
	return true
}

// backoffDelay returns a full-jitter exponential delay for the given
// attempt.
func backoffDelay(attempt int) time.Duration {
	delay := constants.UploadRetryBaseDelay << attempt
	if delay > constants.UploadRetryMaxDelay || delay <= 0 {
		delay = constants.UploadRetryMaxDelay
	}
	return rand.N(delay)
}

// executeUpload retries one byte range until it succeeds, the transfer
// ends, or the worker is killed.
func (w *Worker) executeUpload(u *Upload, wo *WorkOrder) {
	wo.Progress.SetTotal(wo.Size)

	for attempt := 0; ; attempt++ {
		if w.ctx.Err() != nil {
			w.release(u, wo)
			return
		}
		if u.Status().Terminal() {
			wo.SetStatus(StatusFailure)
			wo.SetStatusText("Transfer canceled")
			metrics.WorkOrdersCompleted.WithLabelValues(string(KindUpload), string(StatusFailure)).Inc()
			return
		}
		if !w.waitUnpaused(u) {
			w.release(u, wo)
			return
		}

		streamed, err := w.attemptUpload(u, wo)
		if err == nil {
			wo.SetStatus(StatusSuccess)
			metrics.WorkOrdersCompleted.WithLabelValues(string(KindUpload), string(StatusSuccess)).Inc()
			w.queue.NotifySuccess()
			return
		}

		// Roll back what this attempt streamed so aggregate progress
		// never double-counts a re-sent range.
		wo.Progress.SetDone(0)
		u.Progress().DecreaseDone(streamed)

		if w.ctx.Err() != nil {
			w.release(u, wo)
			return
		}
		if u.Status().Terminal() {
			// The cancel that aborted the stream; the loop top fails
			// the order without retry noise.
			continue
		}

		// A 4xx will not get better with retries: fail the order and
		// let the transfer finalize as failed.
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) && statusErr.Permanent() {
			wo.AppendHistory(fmt.Sprintf("part %d failed permanently: %v", wo.PartNumber, err))
			wo.SetStatus(StatusFailure)
			metrics.WorkOrdersCompleted.WithLabelValues(string(KindUpload), string(StatusFailure)).Inc()
			w.log.Error().Err(err).Int("part", wo.PartNumber).Msg("upload failed permanently")
			return
		}

		wo.AppendHistory(fmt.Sprintf("part %d attempt %d failed: %v", wo.PartNumber, attempt+1, err))
		w.log.Warn().Err(err).Int("part", wo.PartNumber).Int("attempt", attempt+1).Msg("upload attempt failed")
		w.queue.NotifyRetry(w)

		if !w.sleep(backoffDelay(attempt)) {
			w.release(u, wo)
			return
		}
	}
}

// attemptUpload streams the order's byte range once. It returns how many
// bytes went out so the caller can roll back progress on failure. The file
// is reopened per attempt; a handle that survived a failed request is not
// trusted to be seekable to a known state.
func (w *Worker) attemptUpload(u *Upload, wo *WorkOrder) (int64, error) {
	f, err := os.Open(u.LocalFilePath())
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(wo.Offset, io.SeekStart); err != nil {
		return 0, err
	}

	body := &chunkReader{
		worker: w,
		t:      u,
		wo:     wo,
		r:      io.LimitReader(f, wo.Size),
		kind:   KindUpload,
	}

	if wo.IsSingleUpload {
		err = w.queue.deps.R2.UploadSingle(w.ctx, u.UserData(), u.Key(), body, wo.Size)
		return body.streamed, err
	}

	uploadID, err := u.UploadID(w.ctx)
	if err != nil {
		return 0, err
	}
	part, err := w.queue.deps.R2.UploadPart(w.ctx, u.UserData(), u.Key(), uploadID, wo.PartNumber, body, wo.Size)
	if err != nil {
		return body.streamed, err
	}
	u.AddETag(part)
	return body.streamed, nil
}

// executeDownload retries one output file until it succeeds, the transfer
// ends, or the worker is killed. Render outputs appear in storage as nodes
// finish, so a 404 here usually means "not rendered yet" and the retry
// loop has no attempt limit.
func (w *Worker) executeDownload(d *Download, wo *WorkOrder) {
	for {
		if w.ctx.Err() != nil {
			w.release(d, wo)
			return
		}
		if d.Status().Terminal() {
			wo.SetStatus(StatusFailure)
			wo.SetStatusText("Transfer canceled")
			metrics.WorkOrdersCompleted.WithLabelValues(string(KindDownload), string(StatusFailure)).Inc()
			return
		}
		if !w.waitUnpaused(d) {
			w.release(d, wo)
			return
		}

		wo.SetStatusText("Initiating Download")
		err := w.attemptDownload(d, wo)
		if err == nil {
			wo.SetStatus(StatusSuccess)
			metrics.WorkOrdersCompleted.WithLabelValues(string(KindDownload), string(StatusSuccess)).Inc()
			return
		}

		wo.Progress.SetDone(0)

		if w.ctx.Err() != nil {
			w.release(d, wo)
			return
		}
		if d.Status().Terminal() {
			continue
		}

		wo.AppendHistory(fmt.Sprintf("download of %s failed: %v", wo.RelPath, err))
		w.log.Warn().Err(err).Str("file", wo.RelPath).Msg("download attempt failed")
		w.queue.NotifyRetry(w)

		if !w.sleep(constants.DownloadRetryInterval) {
			w.release(d, wo)
			return
		}
	}
}

// attemptDownload fetches the order's file once, truncating any partial
// file from an earlier attempt.
func (w *Worker) attemptDownload(d *Download, wo *WorkOrder) error {
	resp, err := w.queue.deps.R2.Get(w.ctx, d.UserData(), wo.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	wo.Progress.SetDoneTotal(0, total)
	wo.SetStatusText("Downloading")

	f, err := os.Create(wo.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	body := &chunkReader{
		worker: w,
		t:      d,
		wo:     wo,
		r:      resp.Body,
		kind:   KindDownload,
	}
	buf := make([]byte, constants.DownloadCopySize)
	if _, err := io.CopyBuffer(f, body, buf); err != nil {
		return err
	}
	return f.Close()
}

// chunkReader wraps a transfer payload stream. Each Read observes worker
// kill, transfer cancellation and pause, caps the chunk size, and feeds
// the progress counters. Cancellation errors the stream, aborting the
// in-flight request; pausing blocks inside Read, stalling the connection
// until resumed.
type chunkReader struct {
	worker   *Worker
	t        Transfer
	wo       *WorkOrder
	r        io.Reader
	kind     Kind
	streamed int64
}

func (cr *chunkReader) Read(p []byte) (int, error) {
	if err := cr.worker.ctx.Err(); err != nil {
		return 0, err
	}
	if cr.t.Status().Terminal() {
		return 0, errTransferEnded
	}
	for cr.t.Status() == StatusPaused {
		if !cr.worker.sleep(constants.PausePollInterval) {
			return 0, cr.worker.ctx.Err()
		}
	}

	if len(p) > constants.UploadChunkSize {
		p = p[:constants.UploadChunkSize]
	}
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.streamed += int64(n)
		cr.wo.Progress.IncreaseDone(int64(n))
		if cr.kind == KindUpload {
			// Download progress counts files, not bytes; only uploads
			// feed bytes into the transfer aggregate.
			cr.t.Progress().IncreaseDone(int64(n))
		}
		cr.worker.speed.Update(int64(n))
		metrics.BytesTransferred.WithLabelValues(string(cr.kind)).Add(float64(n))
	}
	return n, err
}
