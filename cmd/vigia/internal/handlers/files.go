package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/vigia-lab/vigia/internal/assistant"
	"github.com/vigia-lab/vigia/internal/metrics"
)

// FileStore exposes the remote file inventory for administrative sweeps.
type FileStore interface {
	ListFiles(ctx context.Context) ([]assistant.FileObject, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// FilesHandler serves the administrative file-store endpoints.
type FilesHandler struct {
	files  FileStore
	logger *zap.Logger
}

// NewFilesHandler wires the handler.
func NewFilesHandler(files FileStore, logger *zap.Logger) *FilesHandler {
	return &FilesHandler{files: files, logger: logger}
}

// SweepFiles handles DELETE /vigia/files: lists every file left in the
// remote store and deletes them one by one. A failed deletion is logged
// and skipped so the sweep keeps going.
func (h *FilesHandler) SweepFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.ListFiles(r.Context())
	if err != nil {
		h.logger.Error("Failed to list remote files", zap.Error(err))
		sendError(w, http.StatusBadGateway, "could not list remote files")
		return
	}
	h.logger.Info("Remote files found", zap.Int("count", len(files)))

	deleted := 0
	for _, f := range files {
		if f.ID == "" {
			continue
		}
		if err := h.files.DeleteFile(r.Context(), f.ID); err != nil {
			h.logger.Warn("Failed to delete remote file",
				zap.String("file_id", f.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.FilesDeleted.Inc()
		deleted++
	}

	sendJSON(w, http.StatusOK, map[string]int{
		"found":   len(files),
		"deleted": deleted,
	})
}
