package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/api"
	"github.com/octa-computer/transfer-manager/internal/constants"
	"github.com/octa-computer/transfer-manager/internal/jobspec"
	"github.com/octa-computer/transfer-manager/internal/util/hashing"
	"github.com/octa-computer/transfer-manager/internal/version"
)

// JobInformation is the job description the UI submits alongside the
// packaged archive. It is forwarded to the queue manager on completion.
type JobInformation struct {
	FrameStart       int64                     `json:"frame_start"`
	FrameEnd         int64                     `json:"frame_end"`
	FrameStep        int64                     `json:"frame_step"`
	BatchSize        int64                     `json:"batch_size"`
	Name             string                    `json:"name"`
	RenderPasses     map[string]api.RenderPass `json:"render_passes"`
	RenderFormat     string                    `json:"render_format"`
	RenderEngine     string                    `json:"render_engine"`
	BlenderVersion   string                    `json:"blender_version"`
	BlendName        string                    `json:"blend_name"`
	MaxThumbnailSize int                       `json:"max_thumbnail_size"`
}

// Validate normalizes defaults and rejects unusable frame ranges before a
// transfer is created.
func (ji *JobInformation) Validate() error {
	if ji.FrameStep <= 0 {
		ji.FrameStep = 1
	}
	if ji.BatchSize <= 0 {
		ji.BatchSize = 1
	}
	if ji.FrameEnd < ji.FrameStart {
		return fmt.Errorf("invalid frame range %d..%d", ji.FrameStart, ji.FrameEnd)
	}
	return nil
}

// FrameRangeEnd derives the job's effective end frame the way the queue
// manager expects it: batched jobs submit one task per batch, stepped jobs
// one task per rendered frame.
func (ji *JobInformation) FrameRangeEnd() int64 {
	totalFrames := ji.FrameEnd - ji.FrameStart + 1
	switch {
	case ji.BatchSize != 1:
		return ji.FrameStart + totalFrames/ji.BatchSize - 1
	case ji.FrameStep > 1:
		return (ji.FrameEnd-ji.FrameStart)/ji.FrameStep + ji.FrameStart
	default:
		return ji.FrameEnd
	}
}

// Upload transfers a packaged job archive to object storage and, on
// success, posts the job-creation record to the queue manager.
type Upload struct {
	base

	deps          Deps
	log           zerolog.Logger
	localFilePath string
	jobInfo       JobInformation

	jobID    string
	key      string
	fileSize int64
	fileHash string

	workOrders []*WorkOrder

	// uploadID is allocated lazily by the first worker that needs it.
	uploadIDMu sync.Mutex
	uploadID   string

	// etags is append-only from many workers; appends are serialized here
	// and the completion call sorts by part number.
	etagMu sync.Mutex
	etags  []api.PartETag

	// ended guards the finalizer: concurrent Update calls from workers
	// race to it, exactly one runs it.
	ended atomic.Bool
}

// NewUpload creates an upload transfer. Initialize must run before it is
// started.
func NewUpload(deps Deps, userData api.UserData, localFilePath string, jobInfo JobInformation, metadata map[string]any) (*Upload, error) {
	if err := jobInfo.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(localFilePath)
	if err != nil {
		return nil, fmt.Errorf("bad archive path %s: %w", localFilePath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("archive not found at %s: %w", abs, err)
	}

	id := uuid.NewString()
	jobID := uuid.NewString()
	u := &Upload{
		base:          newBase(id, KindUpload, userData, metadata),
		deps:          deps,
		localFilePath: abs,
		jobInfo:       jobInfo,
		jobID:         jobID,
		key:           jobID + "/input/package.zip",
	}
	u.log = deps.Log.With().Str("transfer", id).Str("job", jobID).Logger()
	return u, nil
}

// Initialize hashes and measures the archive and allocates the work
// orders: one single-shot order below the part size, ceil(size/part)
// multipart orders otherwise, the last one sized to the remainder.
func (u *Upload) Initialize(ctx context.Context) error {
	hash, err := hashing.MD5File(u.localFilePath)
	if err != nil {
		return err
	}
	u.fileHash = hash

	info, err := os.Stat(u.localFilePath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", u.localFilePath, err)
	}
	u.fileSize = info.Size()
	u.progress.SetTotal(u.fileSize)

	if u.fileSize < constants.UploadPartSize {
		u.workOrders = []*WorkOrder{newUploadWorkOrder(0, 0, u.fileSize, 1, true)}
		return nil
	}

	partCount := int((u.fileSize + constants.UploadPartSize - 1) / constants.UploadPartSize)
	u.log.Info().
		Int("part_count", partCount).
		Int64("file_size", u.fileSize).
		Msg("splitting archive into multipart work orders")

	for i := 0; i < partCount-1; i++ {
		offset := int64(i) * constants.UploadPartSize
		u.workOrders = append(u.workOrders, newUploadWorkOrder(i, offset, constants.UploadPartSize, i+1, false))
	}
	lastOffset := int64(partCount-1) * constants.UploadPartSize
	u.workOrders = append(u.workOrders, newUploadWorkOrder(partCount-1, lastOffset, u.fileSize-lastOffset, partCount, false))
	return nil
}

// WorkOrders returns the fixed order list.
func (u *Upload) WorkOrders() []*WorkOrder { return u.workOrders }

// JobID returns the job id minted for this upload.
func (u *Upload) JobID() string { return u.jobID }

// Key returns the object key the archive is uploaded to.
func (u *Upload) Key() string { return u.key }

// LocalFilePath returns the archive path.
func (u *Upload) LocalFilePath() string { return u.localFilePath }

// FileSize returns the measured archive size.
func (u *Upload) FileSize() int64 { return u.fileSize }

// multipart reports whether this upload uses the three-phase lifecycle.
func (u *Upload) multipart() bool {
	return len(u.workOrders) != 1 || !u.workOrders[0].IsSingleUpload
}

// UploadID returns the multipart upload id, creating it on first use.
// The first worker that needs it pays for the round trip; the rest reuse.
func (u *Upload) UploadID(ctx context.Context) (string, error) {
	u.uploadIDMu.Lock()
	defer u.uploadIDMu.Unlock()
	if u.uploadID == "" {
		id, err := u.deps.R2.CreateMultipartUpload(ctx, u.userData, u.key)
		if err != nil {
			return "", err
		}
		u.uploadID = id
	}
	return u.uploadID, nil
}

// AddETag records one part receipt.
func (u *Upload) AddETag(part api.PartETag) {
	u.etagMu.Lock()
	defer u.etagMu.Unlock()
	u.etags = append(u.etags, part)
}

func (u *Upload) etagSnapshot() []api.PartETag {
	u.etagMu.Lock()
	defer u.etagMu.Unlock()
	out := make([]api.PartETag, len(u.etags))
	copy(out, u.etags)
	return out
}

// Stop cancels the upload. Orders nobody claimed yet are failed here;
// claimed ones are failed by their worker at its next checkpoint. Once no
// order is left running the finalizer aborts the multipart upload and
/// skips job creation. The finalizer runs off the caller's goroutine: it
// makes retried HTTP calls and Stop sits on the control plane's request
// path.
func (u *Upload) Stop() {
	u.base.Stop()
	if !u.Status().Terminal() {
		return
	}
	for _, wo := range u.workOrders {
		if wo.Status() == StatusCreated {
			wo.SetStatus(StatusFailure)
		}
	}
	go u.Update(context.Background())
}

// Update recomputes completion state and runs the finalizer when the last
// order has terminated. The atomic guard keeps concurrent updates from
// completing (or aborting) the multipart upload twice.
func (u *Upload) Update(ctx context.Context) {
	successful := 0
	runningOrCreated := 0
	for _, wo := range u.workOrders {
		switch wo.Status() {
		case StatusSuccess:
			successful++
		case StatusRunning, StatusCreated:
			runningOrCreated++
		}
	}

	transferSuccess := successful >= len(u.workOrders)
	transferEnded := runningOrCreated == 0

	if transferEnded && u.ended.CompareAndSwap(false, true) {
		u.onTransferEnded(ctx, transferSuccess)
	}
}

func (u *Upload) onTransferEnded(ctx context.Context, transferSuccess bool) {
	if !transferSuccess {
		u.abort(ctx)
		u.cleanup()
		u.setStatus(StatusFailure, "Some parts could not be uploaded")
		return
	}

	if u.multipart() {
		uploadID, err := u.UploadID(ctx)
		if err == nil {
			err = u.deps.R2.CompleteMultipartUpload(ctx, u.userData, u.key, uploadID, u.etagSnapshot())
		}
		if err != nil {
			u.log.Error().Err(err).Msg("could not complete multipart upload")
			u.setStatus(StatusFailure, "Could not complete upload due to cloudflare error")
			return
		}
	}

	if err := u.createJob(ctx); err != nil {
		u.log.Error().Err(err).Msg("job creation failed")
		u.setStatus(StatusFailure, "Could not create render job")
		return
	}

	u.cleanup()
	u.setStatus(StatusSuccess, "")
	u.log.Info().Msg("upload finished")
}

// abort best-effort discards the multipart upload. It only acts when an
// upload id was ever allocated; aborting would otherwise have to create
// the very upload it is discarding.
func (u *Upload) abort(ctx context.Context) {
	u.uploadIDMu.Lock()
	uploadID := u.uploadID
	u.uploadIDMu.Unlock()
	if uploadID == "" {
		return
	}
	if err := u.deps.R2.AbortMultipartUpload(ctx, u.userData, u.key, uploadID); err != nil {
		u.log.Warn().Err(err).Msg("could not abort multipart upload")
	}
}

// createJob posts the job record plus the node operations list.
func (u *Upload) createJob(ctx context.Context) error {
	job := map[string]any{
		"job_data": map[string]any{
			"id":              u.jobID,
			"name":            u.jobInfo.Name,
			"status":          "queued",
			"start":           u.jobInfo.FrameStart,
			"batch_size":      u.jobInfo.BatchSize,
			"end":             u.jobInfo.FrameRangeEnd(),
			"frame_step":      u.jobInfo.FrameStep,
			"render_passes":   u.jobInfo.RenderPasses,
			"render_format":   u.jobInfo.RenderFormat,
			"version":         version.Version,
			"render_engine":   u.jobInfo.RenderEngine,
			"blender_version": u.jobInfo.BlenderVersion,
			"archive_size":    u.fileSize,
		},
		"operations": jobspec.Operations(jobspec.Params{
			BlendFileName:    filepath.Base(u.jobInfo.BlendName),
			RenderFormat:     u.jobInfo.RenderFormat,
			MaxThumbnailSize: u.jobInfo.MaxThumbnailSize,
			ArchiveHash:      u.fileHash,
			FrameStep:        u.jobInfo.FrameStep,
			APIToken:         u.userData.APIToken,
			R2Endpoint:       u.deps.R2.Endpoint(),
		}),
	}
	return u.deps.QM.CreateNodeJob(ctx, u.userData, job)
}

// cleanup removes the temp packing directory holding the archive.
func (u *Upload) cleanup() {
	dir := filepath.Dir(u.localFilePath)
	if err := os.RemoveAll(dir); err != nil {
		u.log.Warn().Err(err).Str("dir", dir).Msg("could not remove packing directory")
	}
}

// UploadSnapshot is the wire shape of an upload transfer.
type UploadSnapshot struct {
	Summary
	LocalFilePath string               `json:"local_file_path"`
	JobID         string               `json:"job_id"`
	JobInfo       JobInformation       `json:"job_info"`
	ETags         []api.PartETag       `json:"etags"`
	WorkOrders    []UploadOrderSummary `json:"work_orders,omitempty"`
}

// Snapshot serializes the upload for the control plane.
func (u *Upload) Snapshot(withOrders bool) any {
	snap := UploadSnapshot{
		Summary:       u.summary(),
		LocalFilePath: u.localFilePath,
		JobID:         u.jobID,
		JobInfo:       u.jobInfo,
		ETags:         u.etagSnapshot(),
	}
	if withOrders {
		for _, wo := range u.workOrders {
			snap.WorkOrders = append(snap.WorkOrders, wo.UploadSummary())
		}
	}
	return snap
}
