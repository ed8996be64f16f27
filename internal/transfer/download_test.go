package transfer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octa-computer/transfer-manager/internal/api"
)

// fakeFarm serves job_details for a single job.
func fakeFarm(t *testing.T, details map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/qm/uber_api", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"job_details": map[string]any{"status": "success", "body": details},
		})
	}))
}

func TestDownloadInitializeExpandsBatchedFrames(t *testing.T) {
	farm := fakeFarm(t, map[string]any{
		"start":      1,
		"end":        3,
		"batch_size": 2,
		"render_passes": map[string]any{
			"beauty": map[string]any{"files": map[string]any{"beauty": "png"}},
		},
		"render_format": "",
	})
	defer farm.Close()

	deps := testDeps("http://r2.example")
	ud := api.UserData{FarmHost: farm.URL}
	dir := t.TempDir()

	d, err := NewDownload(deps, ud, dir, "job-1", nil)
	require.NoError(t, err)
	require.NoError(t, d.Initialize(context.Background()))

	orders := d.WorkOrders()
	require.Len(t, orders, 6)
	assert.Equal(t, int64(6), d.Progress().Total())

	assert.Equal(t, "beauty/0001.png", orders[0].RelPath)
	assert.Equal(t, "beauty/0006.png", orders[5].RelPath)
	assert.Equal(t, "http://r2.example/job-1/output/beauty/0001.png", orders[0].URL)
	assert.Equal(t, filepath.Join(dir, "job-1", "beauty", "0001.png"), orders[0].LocalPath)

	// The per-pass directory is created up front.
	assert.DirExists(t, filepath.Join(dir, "job-1", "beauty"))
}

func TestDownloadInitializeAddsCompositeFrames(t *testing.T) {
	farm := fakeFarm(t, map[string]any{
		"start":         1,
		"end":           2,
		"batch_size":    1,
		"render_passes": map[string]any{},
		"render_format": "OPEN_EXR",
	})
	defer farm.Close()

	d, err := NewDownload(testDeps("http://r2.example"), api.UserData{FarmHost: farm.URL}, t.TempDir(), "job-2", nil)
	require.NoError(t, err)
	require.NoError(t, d.Initialize(context.Background()))

	orders := d.WorkOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, "0001.exr", orders[0].RelPath)
	assert.Equal(t, "0002.exr", orders[1].RelPath)
	assert.Equal(t, "http://r2.example/job-2/output/0002.exr", orders[1].URL)
}

func TestDownloadInitializeUnknownFormatExtension(t *testing.T) {
	farm := fakeFarm(t, map[string]any{
		"start":         1,
		"end":           1,
		"batch_size":    1,
		"render_passes": map[string]any{},
		"render_format": "AVI_JPEG",
	})
	defer farm.Close()

	d, err := NewDownload(testDeps("http://r2.example"), api.UserData{FarmHost: farm.URL}, t.TempDir(), "job-3", nil)
	require.NoError(t, err)
	require.NoError(t, d.Initialize(context.Background()))

	require.Len(t, d.WorkOrders(), 1)
	assert.Equal(t, "0001.unknown", d.WorkOrders()[0].RelPath)
}

func TestDownloadUpdateCountsFiles(t *testing.T) {
	farm := fakeFarm(t, map[string]any{
		"start":         1,
		"end":           2,
		"batch_size":    1,
		"render_passes": map[string]any{},
		"render_format": "PNG",
	})
	defer farm.Close()

	d, err := NewDownload(testDeps("http://r2.example"), api.UserData{FarmHost: farm.URL}, t.TempDir(), "job-4", nil)
	require.NoError(t, err)
	require.NoError(t, d.Initialize(context.Background()))
	d.Start()

	d.WorkOrders()[0].SetStatus(StatusSuccess)
	d.Update(context.Background())
	assert.Equal(t, StatusRunning, d.Status())
	assert.Equal(t, int64(1), d.Progress().Done())

	d.WorkOrders()[1].SetStatus(StatusSuccess)
	d.Update(context.Background())
	assert.Equal(t, StatusSuccess, d.Status())
}

func TestDownloadUpdateFailsWhenNothingClaimable(t *testing.T) {
	farm := fakeFarm(t, map[string]any{
		"start":         1,
		"end":           2,
		"batch_size":    1,
		"render_passes": map[string]any{},
		"render_format": "PNG",
	})
	defer farm.Close()

	d, err := NewDownload(testDeps("http://r2.example"), api.UserData{FarmHost: farm.URL}, t.TempDir(), "job-5", nil)
	require.NoError(t, err)
	require.NoError(t, d.Initialize(context.Background()))
	d.Start()

	d.WorkOrders()[0].SetStatus(StatusSuccess)
	d.WorkOrders()[1].SetStatus(StatusFailure)
	d.Update(context.Background())

	assert.Equal(t, StatusFailure, d.Status())
	assert.Equal(t, "Some files could not be downloaded", d.StatusText())
}

func TestDownloadSnapshotShape(t *testing.T) {
	farm := fakeFarm(t, map[string]any{
		"start":         1,
		"end":           1,
		"batch_size":    1,
		"render_passes": map[string]any{},
		"render_format": "PNG",
	})
	defer farm.Close()

	dir := t.TempDir()
	d, err := NewDownload(testDeps("http://r2.example"), api.UserData{FarmHost: farm.URL}, dir, "job-6", nil)
	require.NoError(t, err)
	require.NoError(t, d.Initialize(context.Background()))

	data, err := json.Marshal(d.Snapshot(true))
	require.NoError(t, err)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "download", snap["type"])
	assert.Equal(t, "job-6", snap["job_id"])
	assert.Equal(t, dir, snap["local_dir_path"])
	assert.Len(t, snap["files"], 1)
}
