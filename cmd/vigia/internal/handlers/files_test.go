package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vigia-lab/vigia/internal/assistant"
)

type fakeFileStore struct {
	files   []assistant.FileObject
	listErr error
	failOn  string
	deleted []string
}

func (f *fakeFileStore) ListFiles(ctx context.Context) ([]assistant.FileObject, error) {
	return f.files, f.listErr
}

func (f *fakeFileStore) DeleteFile(ctx context.Context, fileID string) error {
	if fileID == f.failOn {
		return fmt.Errorf("delete refused")
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

func sweepRequest(t *testing.T, h *FilesHandler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodDelete, "/vigia/files", nil)
	rec := httptest.NewRecorder()
	h.SweepFiles(rec, req)
	return rec
}

func TestSweepFilesDeletesEveryRemoteFile(t *testing.T) {
	files := &fakeFileStore{files: []assistant.FileObject{
		{ID: "file_1", Filename: "anexo1.pdf"},
		{ID: "file_2", Filename: "anexo2.pdf"},
		{ID: "file_3", Filename: "anexo3.pdf"},
	}}
	h := NewFilesHandler(files, zaptest.NewLogger(t))

	rec := sweepRequest(t, h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"file_1", "file_2", "file_3"}, files.deleted)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body["found"])
	assert.Equal(t, 3, body["deleted"])
}

func TestSweepFilesSkipsFailedDeletions(t *testing.T) {
	files := &fakeFileStore{
		files: []assistant.FileObject{
			{ID: "file_1"},
			{ID: "file_2"},
			{ID: "file_3"},
		},
		failOn: "file_2",
	}
	h := NewFilesHandler(files, zaptest.NewLogger(t))

	rec := sweepRequest(t, h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"file_1", "file_3"}, files.deleted)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body["found"])
	assert.Equal(t, 2, body["deleted"])
}

func TestSweepFilesListFailure(t *testing.T) {
	files := &fakeFileStore{listErr: fmt.Errorf("remote unavailable")}
	h := NewFilesHandler(files, zaptest.NewLogger(t))

	rec := sweepRequest(t, h)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, files.deleted)
}
