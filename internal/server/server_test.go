package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octa-computer/transfer-manager/internal/api"
	"github.com/octa-computer/transfer-manager/internal/config"
	"github.com/octa-computer/transfer-manager/internal/transfer"
	"github.com/octa-computer/transfer-manager/internal/version"
)

// newTestServer builds the control plane over a manager whose queues are
// not started, so transfers stay inspectable instead of being executed.
func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *transfer.Manager) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{
			ListenHost: "127.0.0.1",
			ListenPort: 7780,
			FarmHost:   "https://farm.example",
		}
	}
	m := transfer.NewManager(transfer.Deps{
		R2:  api.NewR2Client("http://127.0.0.1:1", zerolog.Nop()),
		QM:  api.NewQueueManagerClient(zerolog.Nop()),
		Log: zerolog.Nop(),
	})
	srv := httptest.NewServer(New(cfg, m, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv, m
}

func doJSON(t *testing.T, method, url string, payload any, headers map[string]string) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestIndexAndCORS(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	assert.Equal(t, "transfer manager", string(buf[:n]))

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/transfers", nil)
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	preflight.Body.Close()
	assert.Equal(t, http.StatusOK, preflight.StatusCode)
	assert.Contains(t, preflight.Header.Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestVersionGate(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/transfers", nil,
		map[string]string{"Transfer-Manager-Version": "v0.0.1"})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Contains(t, body["error"], version.Version)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/transfers", nil,
		map[string]string{"Transfer-Manager-Version": version.Version})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransferManagerInfo(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/transfer_manager_info")
	require.NoError(t, err)
	info := decodeBody[map[string]any](t, resp)

	assert.Equal(t, "transfer_manager", info["service"])
	assert.Equal(t, version.Version, info["version"])
	assert.Equal(t, float64(os.Getpid()), info["process_id"])
}

func TestQueuesEndpointShape(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/queues")
	require.NoError(t, err)
	queues := decodeBody[map[string][]float64](t, resp)

	assert.Contains(t, queues, "upload")
	assert.Contains(t, queues, "download")
}

func TestCreateUploadRejectsMissingArchive(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/upload", map[string]any{
		"local_file_path": filepath.Join(t.TempDir(), "missing.zip"),
		"job_information": map[string]any{"frame_start": 1, "frame_end": 2},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.NotEmpty(t, body["error"])
}

func TestCreateDownloadRequiresTargetDirectory(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/download", map[string]any{
		"job_id": "job-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateDownloadFallsBackToConfiguredDirectory(t *testing.T) {
	farm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"job_details": map[string]any{
				"status": "success",
				"body": map[string]any{
					"start": 1, "end": 1, "batch_size": 1,
					"render_passes": map[string]any{},
					"render_format": "PNG",
				},
			},
		})
	}))
	defer farm.Close()

	downloadDir := t.TempDir()
	srv, m := newTestServer(t, &config.Config{
		ListenHost:  "127.0.0.1",
		ListenPort:  7780,
		FarmHost:    "https://farm.example",
		DownloadDir: downloadDir,
	})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/download", map[string]any{
		"job_id": "job-1",
	}, map[string]string{"farm_host": farm.URL})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := decodeBody[string](t, resp)

	tr, ok := m.Get(id)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return tr.Status() == transfer.StatusRunning
	}, 5*time.Second, 20*time.Millisecond)
	assert.DirExists(t, filepath.Join(downloadDir, "job-1"))
}

func TestUploadLifecycle(t *testing.T) {
	srv, m := newTestServer(t, nil)

	dir := filepath.Join(t.TempDir(), "pack")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	archive := filepath.Join(dir, "package.zip")
	require.NoError(t, os.WriteFile(archive, bytes.Repeat([]byte("a"), 2048), 0o644))

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/upload", map[string]any{
		"local_file_path": archive,
		"job_information": map[string]any{
			"frame_start": 1, "frame_end": 10, "name": "scene",
		},
		"metadata": map[string]any{"origin": "test"},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := decodeBody[string](t, resp)
	require.NotEmpty(t, id)

	tr, ok := m.Get(id)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return tr.Status() == transfer.StatusRunning
	}, 5*time.Second, 20*time.Millisecond)

	// List view
	listResp, err := http.Get(srv.URL + "/api/transfers")
	require.NoError(t, err)
	list := decodeBody[[]map[string]any](t, listResp)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])
	assert.Equal(t, "upload", list[0]["type"])
	_, hasOrders := list[0]["work_orders"]
	assert.False(t, hasOrders)

	// Detail view includes work orders
	detailResp, err := http.Get(srv.URL + "/api/transfers/" + id)
	require.NoError(t, err)
	detail := decodeBody[map[string]any](t, detailResp)
	assert.NotEmpty(t, detail["work_orders"])

	// Pause, then resume
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/transfers/"+id+"/status",
		map[string]string{"status": "paused"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, transfer.StatusPaused, tr.Status())

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/transfers/"+id+"/status",
		map[string]string{"status": "running"}, nil)
	resp.Body.Close()
	assert.Equal(t, transfer.StatusRunning, tr.Status())

	// Unsupported status
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/transfers/"+id+"/status",
		map[string]string{"status": "sideways"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Delete
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/transfers/"+id, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[bool](t, resp))

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/transfers/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/api/transfers/" + id)
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestGetUnknownTransfer(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/transfers/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
