package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/api"
	"github.com/octa-computer/transfer-manager/internal/constants"
)

// Download fetches all rendered outputs of a finished job into a local
// directory tree mirroring the job's layout in object storage.
type Download struct {
	base

	deps Deps
	log  zerolog.Logger

	localDirPath string
	jobID        string

	workOrders []*WorkOrder
}

// NewDownload creates a download transfer. Initialize must run before it
// is started.
func NewDownload(deps Deps, userData api.UserData, localDirPath, jobID string, metadata map[string]any) (*Download, error) {
	abs, err := filepath.Abs(localDirPath)
	if err != nil {
		return nil, fmt.Errorf("bad target directory %s: %w", localDirPath, err)
	}

	id := uuid.NewString()
	d := &Download{
		base:         newBase(id, KindDownload, userData, metadata),
		deps:         deps,
		localDirPath: abs,
		jobID:        jobID,
	}
	d.log = deps.Log.With().Str("transfer", id).Str("job", jobID).Logger()
	return d, nil
}

// Initialize asks the queue manager for the job's shape and enumerates
// every expected output file as a work order. Batched jobs store one task
// per batch; the frame range is widened back to per-frame before
// enumeration.
func (d *Download) Initialize(ctx context.Context) error {
	job, err := d.deps.QM.GetJobDetails(ctx, d.userData, d.jobID)
	if err != nil {
		return err
	}

	frameStart := job.Start
	frameEnd := job.End
	if job.BatchSize > 1 {
		totalBatches := frameEnd - frameStart + 1
		frameEnd = frameStart + job.BatchSize*totalBatches - 1
	}

	outputDir := filepath.Join(d.localDirPath, d.jobID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("could not create output directory %s: %w", outputDir, err)
	}

	addOrder := func(url, localPath, relPath string) {
		d.workOrders = append(d.workOrders, newDownloadWorkOrder(len(d.workOrders), url, localPath, relPath))
	}

	// Map iteration order is randomized; sort so the order list (and the
	// UI that renders it) is stable across restarts.
	passNames := make([]string, 0, len(job.RenderPasses))
	for name := range job.RenderPasses {
		passNames = append(passNames, name)
	}
	sort.Strings(passNames)

	for _, passName := range passNames {
		pass := job.RenderPasses[passName]
		outputNames := make([]string, 0, len(pass.Files))
		for name := range pass.Files {
			outputNames = append(outputNames, name)
		}
		sort.Strings(outputNames)

		for _, outputName := range outputNames {
			ext := pass.Files[outputName]
			if err := os.MkdirAll(filepath.Join(outputDir, outputName), 0o755); err != nil {
				return fmt.Errorf("could not create pass directory %s: %w", outputName, err)
			}
			for t := frameStart; t <= frameEnd; t++ {
				fileName := fmt.Sprintf("%0*d.%s", constants.FrameNumberWidth, t, ext)
				addOrder(
					d.deps.R2.ObjectURL(fmt.Sprintf("%s/output/%s/%s", d.jobID, outputName, fileName)),
					filepath.Join(outputDir, outputName, fileName),
					outputName+"/"+fileName,
				)
			}
		}
	}

	// Composited frames live at the output root. Jobs without a render
	// format produce pass outputs only.
	if job.RenderFormat != "" {
		ext := compositeExtension(job.RenderFormat)
		for t := frameStart; t <= frameEnd; t++ {
			fileName := fmt.Sprintf("%0*d.%s", constants.FrameNumberWidth, t, ext)
			addOrder(
				d.deps.R2.ObjectURL(fmt.Sprintf("%s/output/%s", d.jobID, fileName)),
				filepath.Join(outputDir, fileName),
				fileName,
			)
		}
	}

	d.progress.SetTotal(int64(len(d.workOrders)))
	d.log.Info().Int("files", len(d.workOrders)).Msg("enumerated job outputs")
	return nil
}

// WorkOrders returns the fixed order list.
func (d *Download) WorkOrders() []*WorkOrder { return d.workOrders }

// JobID returns the job whose outputs are fetched.
func (d *Download) JobID() string { return d.jobID }

// LocalDirPath returns the download target directory.
func (d *Download) LocalDirPath() string { return d.localDirPath }

// Stop cancels the download, failing any order nobody claimed yet.
func (d *Download) Stop() {
	d.base.Stop()
	if !d.Status().Terminal() {
		return
	}
	for _, wo := range d.workOrders {
		if wo.Status() == StatusCreated {
			wo.SetStatus(StatusFailure)
		}
	}
}

// Update recounts finished files. Progress is file-granular here: done is
// the number of completed orders, not bytes. The transfer fails only when
// nothing claimable remains and at least one file failed.
func (d *Download) Update(ctx context.Context) {
	finished := 0
	runningOrCreated := 0
	for _, wo := range d.workOrders {
		switch wo.Status() {
		case StatusSuccess:
			finished++
		case StatusRunning, StatusCreated:
			runningOrCreated++
		}
	}
	d.progress.SetDone(int64(finished))

	if finished >= len(d.workOrders) {
		d.setStatus(StatusSuccess, "")
		d.log.Info().Msg("download finished")
	} else if runningOrCreated == 0 {
		d.setStatus(StatusFailure, "Some files could not be downloaded")
	}
}

// DownloadSnapshot is the wire shape of a download transfer.
type DownloadSnapshot struct {
	Summary
	LocalDirPath string                 `json:"local_dir_path"`
	JobID        string                 `json:"job_id"`
	Files        []DownloadOrderSummary `json:"files,omitempty"`
}

// Snapshot serializes the download for the control plane.
func (d *Download) Snapshot(withOrders bool) any {
	snap := DownloadSnapshot{
		Summary:      d.summary(),
		LocalDirPath: d.localDirPath,
		JobID:        d.jobID,
	}
	if withOrders {
		for _, wo := range d.workOrders {
			snap.Files = append(snap.Files, wo.DownloadSummary())
		}
	}
	return snap
}
