package server

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/octa-computer/transfer-manager/internal/constants"
	"github.com/octa-computer/transfer-manager/internal/logging"
	"github.com/octa-computer/transfer-manager/internal/transfer"
	"github.com/octa-computer/transfer-manager/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("transfer manager"))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":    version.ServiceName,
		"version":    version.Version,
		"process_id": os.Getpid(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	path := s.cfg.LogFile
	if path == "" {
		path = logging.DefaultLogPath()
	}
	data, err := logging.Tail(path, constants.LogTailBytes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(data))
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]float64{
		"download": s.manager.DownloadQueue().WorkerSpeeds(),
		"upload":   s.manager.UploadQueue().WorkerSpeeds(),
	})
}

type createUploadRequest struct {
	LocalFilePath  string                  `json:"local_file_path"`
	JobInformation transfer.JobInformation `json:"job_information"`
	Metadata       map[string]any          `json:"metadata"`
}

func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var req createUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.LocalFilePath == "" {
		writeError(w, http.StatusBadRequest, "local_file_path is required")
		return
	}

	u, err := transfer.NewUpload(s.manager.Deps(), userDataFrom(r), req.LocalFilePath, req.JobInformation, req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.manager.Add(u)
	s.startAsync(u)
	writeJSON(w, http.StatusOK, u.ID())
}

type createDownloadRequest struct {
	LocalDirPath string         `json:"local_dir_path"`
	JobID        string         `json:"job_id"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	var req createDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	dirPath := req.LocalDirPath
	if dirPath == "" {
		dirPath = s.cfg.DownloadDir
	}
	if dirPath == "" {
		writeError(w, http.StatusBadRequest, "local_dir_path is required and no download directory is configured")
		return
	}

	d, err := transfer.NewDownload(s.manager.Deps(), userDataFrom(r), dirPath, req.JobID, req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.manager.Add(d)
	s.startAsync(d)
	writeJSON(w, http.StatusOK, d.ID())
}

// startAsync initializes the transfer off the request path, then starts
// it. The transfer is already registered, so the UI can poll it while the
// archive is still being hashed; workers cannot claim from it until Start.
func (s *Server) startAsync(t transfer.Transfer) {
	go func() {
		if err := t.Initialize(s.baseCtx); err != nil {
			s.log.Error().Err(err).Str("transfer", t.ID()).Msg("transfer initialization failed")
			t.Fail(err.Error())
			return
		}
		t.Start()
	}()
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshots())
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	t, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "transfer not found")
		return
	}
	writeJSON(w, http.StatusOK, t.Snapshot(true))
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	if !s.manager.Remove(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, false)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

type setStatusRequest struct {
	Status transfer.Status `json:"status"`
}

func (s *Server) handleSetTransferStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	t, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, false)
		return
	}

	switch req.Status {
	case transfer.StatusPaused:
		t.Pause()
	case transfer.StatusRunning:
		t.Start()
	case transfer.StatusFailure:
		t.Stop()
	default:
		writeError(w, http.StatusBadRequest, "unsupported status "+string(req.Status))
		return
	}
	writeJSON(w, http.StatusOK, true)
}
