package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/carverlabs/scribe/internal/importer"
	"github.com/carverlabs/scribe/internal/storage"
)

// ImportHandlers exposes the JSONL staging import over HTTP. Imports run as
// background jobs; callers get a job id back and poll for progress.
type ImportHandlers struct {
	jobs *importer.StagingImporter
}

// NewImportHandlers wires the import endpoints to a store.
func NewImportHandlers(store storage.Store) *ImportHandlers {
	return &ImportHandlers{jobs: importer.NewStagingImporter(store)}
}

// importJobResponse acknowledges an accepted import job.
type importJobResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// importStatusResponse reports a settled job: final progress plus the tally.
type importStatusResponse struct {
	Progress importer.ImportProgress `json:"progress"`
	Result   *importer.ImportResult  `json:"result,omitempty"`
}

// PostStagingImport handles POST /api/import/staging. The body names a JSONL
// dump on the server's filesystem; each line becomes a pending staging row
// that rides the normal routing pipeline. Responds 202 with a job id.
func (h *ImportHandlers) PostStagingImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		respondError(w, http.StatusBadRequest, "path is required", nil)
		return
	}

	dump, err := absoluteDumpPath(req.Path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cannot resolve path", err)
		return
	}

	// StartImport checks the file is readable before the job goes async, so
	// a bad path fails here rather than in a job nobody is watching yet.
	jobID, err := h.jobs.StartImport(r.Context(), dump)
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot start import", err)
		return
	}

	respondJSON(w, http.StatusAccepted, importJobResponse{
		JobID:   jobID,
		Message: fmt.Sprintf("importing %s", req.Path),
	})
}

// GetImportStatus handles GET /api/import/status/{job_id}. While the job
// runs it returns progress alone; once settled the result comes with it.
func (h *ImportHandlers) GetImportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "job_id is required", nil)
		return
	}

	progress, ok := h.jobs.GetJobProgress(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "import job not found", nil)
		return
	}

	switch progress.Status {
	case "complete", "failed":
		respondJSON(w, http.StatusOK, importStatusResponse{
			Progress: progress,
			Result:   h.jobs.GetJobResult(jobID),
		})
	default:
		respondJSON(w, http.StatusOK, progress)
	}
}

// absoluteDumpPath anchors relative paths at the server's working directory.
func absoluteDumpPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, path), nil
}
