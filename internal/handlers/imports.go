package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/logger"
	"github.com/rumor-ml/commons.systems/pjledger/internal/pipeline"
)

const maxUploadSize = 32 << 20

// FileOutcome is the result of importing one uploaded file.
type FileOutcome struct {
	FileName string                 `json:"fileName"`
	Result   *pipeline.ImportResult `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Status   int                    `json:"status"`
}

// ImportResponse lists the outcome of every uploaded file in upload order.
type ImportResponse struct {
	Files []FileOutcome `json:"files"`
}

// Import handles POST /api/imports. The multipart form carries the statement
// files in "files" and an optional "account" to pin the destination account.
// Files are imported one by one; a failed file does not stop the others.
func (h *APIHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		badRequest(w, r, "failed to parse form: %v", err)
		return
	}
	client, ok := clientID(w, r)
	if !ok {
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		badRequest(w, r, "no files uploaded")
		return
	}
	account := strings.TrimSpace(r.FormValue("account"))

	log := logger.FromContext(r.Context())
	resp := ImportResponse{Files: make([]FileOutcome, 0, len(files))}
	failed := 0
	for _, fh := range files {
		name := h.sanitize(filepath.Base(fh.Filename))
		outcome := FileOutcome{FileName: name, Status: http.StatusOK}

		f, err := fh.Open()
		if err != nil {
			outcome.Status = http.StatusBadRequest
			outcome.Error = "failed to open uploaded file"
			resp.Files = append(resp.Files, outcome)
			failed++
			continue
		}
		result, err := h.importer.ImportFile(r.Context(), client, account, name, f)
		f.Close()
		if err != nil {
			outcome.Status = statusFor(err)
			outcome.Error = err.Error()
			if outcome.Status == http.StatusInternalServerError {
				log.Error().Err(err).Str("file", name).Msg("import failed")
				outcome.Error = "internal error"
			}
			failed++
		}
		outcome.Result = result
		resp.Files = append(resp.Files, outcome)
	}

	status := http.StatusOK
	switch {
	case failed == len(files):
		status = resp.Files[0].Status
	case failed > 0:
		status = http.StatusMultiStatus
	}
	writeJSON(w, r, status, resp)
}

// Reclassify handles PUT /api/transactions/{id}/classification
func (h *APIHandler) Reclassify(w http.ResponseWriter, r *http.Request) {
	client, ok := clientID(w, r)
	if !ok {
		return
	}
	txID := r.PathValue("id")

	var target domain.Target
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		badRequest(w, r, "invalid classification body: %v", err)
		return
	}
	target.SubcategoryLabel = h.sanitize(target.SubcategoryLabel)

	txn, err := h.importer.Reclassify(r.Context(), client, txID, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, txn)
}
