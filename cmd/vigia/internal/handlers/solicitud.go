package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/vigia-lab/vigia/internal/db"
	"github.com/vigia-lab/vigia/internal/evaluation"
	"github.com/vigia-lab/vigia/internal/metrics"
	"github.com/vigia-lab/vigia/internal/questionnaire"
)

const maxUploadBytes = 64 << 20

// FileUploader pushes attachments to the remote file store.
type FileUploader interface {
	UploadFile(ctx context.Context, filename string, content io.Reader) (string, error)
}

// Store is the persistence surface the handlers need.
type Store interface {
	Insert(ctx context.Context, sol *db.Solicitud) error
	Get(ctx context.Context, solicitudID string) (*db.Solicitud, error)
	List(ctx context.Context) ([]*db.Solicitud, error)
	Update(ctx context.Context, sol *db.Solicitud) error
	Delete(ctx context.Context, solicitudID string) error
}

// Evaluations launches the background track evaluations.
type Evaluations interface {
	DispatchAll(solicitudID string) []*evaluation.Job
}

// SolicitudHandler serves the solicitud CRUD and submission endpoints.
type SolicitudHandler struct {
	store       Store
	uploader    FileUploader
	evaluations Evaluations
	logger      *zap.Logger
}

// NewSolicitudHandler wires the handler.
func NewSolicitudHandler(store Store, uploader FileUploader, evaluations Evaluations, logger *zap.Logger) *SolicitudHandler {
	return &SolicitudHandler{
		store:       store,
		uploader:    uploader,
		evaluations: evaluations,
		logger:      logger,
	}
}

// CreateSolicitud handles POST /vigia/solicitud: extracts the
// questionnaire from the workbook, uploads the attachments, persists the
// record and dispatches the three evaluations before returning.
func (h *SolicitudHandler) CreateSolicitud(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		sendError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	codigoProyecto := r.FormValue("CodigoProyecto")
	proveedorNombre := r.FormValue("ProveedorNombre")
	proveedorNIT := r.FormValue("ProveedorNIT")
	usuarioSolicitante := r.FormValue("UsuarioSolicitante")
	if codigoProyecto == "" || proveedorNombre == "" || proveedorNIT == "" || usuarioSolicitante == "" {
		sendError(w, http.StatusBadRequest, "CodigoProyecto, ProveedorNombre, ProveedorNIT and UsuarioSolicitante are required")
		return
	}

	excelFile, excelHeader, err := r.FormFile("excel_file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "excel_file is required")
		return
	}
	defer excelFile.Close()

	blocks, err := questionnaire.Extract(excelFile)
	if errors.Is(err, questionnaire.ErrSheetNotFound) {
		sendError(w, http.StatusBadRequest, "workbook has no Cuestionario sheet")
		return
	}
	if err != nil {
		h.logger.Error("Failed to extract questionnaire", zap.Error(err))
		sendError(w, http.StatusBadRequest, "could not read excel_file")
		return
	}

	sol := db.NewSolicitud(codigoProyecto, proveedorNombre, proveedorNIT, usuarioSolicitante)
	sol.FuenteExcelPath = excelHeader.Filename
	if err := h.fillCuestionarios(sol, blocks); err != nil {
		h.logger.Error("Failed to encode questionnaire", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	sol.Anexos = h.uploadAnexos(r)

	if err := h.store.Insert(r.Context(), sol); err != nil {
		h.logger.Error("Failed to insert solicitud", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "could not store solicitud")
		return
	}
	metrics.SolicitudesCreated.Inc()

	h.evaluations.DispatchAll(sol.SolicitudID)
	h.logger.Info("Solicitud created",
		zap.String("solicitud_id", sol.SolicitudID),
		zap.String("codigo_proyecto", sol.CodigoProyecto),
		zap.Int("anexos", len(sol.Anexos)),
	)

	sendJSON(w, http.StatusOK, sol)
}

func (h *SolicitudHandler) fillCuestionarios(sol *db.Solicitud, blocks []questionnaire.DimensionBlock) error {
	full, err := questionnaire.ToJSON(blocks)
	if err != nil {
		return err
	}
	ambiental, err := questionnaire.ToJSON(questionnaire.FilterDimension(blocks, "ambiental"))
	if err != nil {
		return err
	}
	social, err := questionnaire.ToJSON(questionnaire.FilterDimension(blocks, "social"))
	if err != nil {
		return err
	}
	economica, err := questionnaire.ToJSON(questionnaire.FilterDimension(blocks, "económica", "gobernanza"))
	if err != nil {
		return err
	}
	sol.Cuestionario = full
	sol.CuestionarioAmbiental = ambiental
	sol.CuestionarioSocial = social
	sol.CuestionarioEconomica = economica
	return nil
}

// uploadAnexos pushes each attachment to the remote store. A failed
// upload is logged and skipped so one bad file does not sink the
// submission.
func (h *SolicitudHandler) uploadAnexos(r *http.Request) db.AnexoList {
	anexos := db.AnexoList{}
	if r.MultipartForm == nil {
		return anexos
	}
	for _, header := range r.MultipartForm.File["anexos"] {
		file, err := header.Open()
		if err != nil {
			h.logger.Warn("Failed to open anexo", zap.String("filename", header.Filename), zap.Error(err))
			continue
		}
		fileID, err := h.uploader.UploadFile(r.Context(), header.Filename, file)
		file.Close()
		if err != nil {
			h.logger.Warn("Failed to upload anexo", zap.String("filename", header.Filename), zap.Error(err))
			continue
		}
		anexos = append(anexos, db.Anexo{FileID: fileID, Filename: header.Filename})
	}
	return anexos
}

// GetSolicitud handles GET /vigia/solicitud/{id}.
func (h *SolicitudHandler) GetSolicitud(w http.ResponseWriter, r *http.Request) {
	sol, err := h.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		sendError(w, http.StatusNotFound, "solicitud not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get solicitud", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	sendJSON(w, http.StatusOK, sol)
}

// ListSolicitudes handles GET /vigia/solicitudes.
func (h *SolicitudHandler) ListSolicitudes(w http.ResponseWriter, r *http.Request) {
	sols, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list solicitudes", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sols == nil {
		sols = []*db.Solicitud{}
	}
	sendJSON(w, http.StatusOK, sols)
}

// UpdateSolicitud handles PUT /vigia/solicitud/{id}: full-record replace.
func (h *SolicitudHandler) UpdateSolicitud(w http.ResponseWriter, r *http.Request) {
	var sol db.Solicitud
	if err := json.NewDecoder(r.Body).Decode(&sol); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sol.SolicitudID = r.PathValue("id")

	err := h.store.Update(r.Context(), &sol)
	if errors.Is(err, db.ErrNotFound) {
		sendError(w, http.StatusNotFound, "solicitud not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to update solicitud", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	sendJSON(w, http.StatusOK, &sol)
}

// DeleteSolicitud handles DELETE /vigia/solicitud/{id}.
func (h *SolicitudHandler) DeleteSolicitud(w http.ResponseWriter, r *http.Request) {
	err := h.store.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		sendError(w, http.StatusNotFound, "solicitud not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to delete solicitud", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	sendJSON(w, code, map[string]string{"error": message})
}
