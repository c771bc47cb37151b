package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Per-track status values.
const (
	TrackPending = "pending"
	TrackDone    = "done"
	TrackFailed  = "failed"
)

// Overall solicitud status values.
const (
	EstadoEnProgreso = "en_progreso"
	EstadoCompletado = "completado"
)

// Track keys inside the Estado map.
const (
	TrackAmbiental = "ambiental"
	TrackSocial    = "social"
	TrackEconomica = "economica"
)

// Anexo describes one uploaded attachment: the remote file identifier plus
// the original filename it was uploaded under.
type Anexo struct {
	FileID   string `json:"id"`
	Filename string `json:"filename"`
}

// AnexoList is stored as a JSONB column.
type AnexoList []Anexo

// FileIDs returns just the remote identifiers, in order.
func (a AnexoList) FileIDs() []string {
	ids := make([]string, 0, len(a))
	for _, anexo := range a {
		ids = append(ids, anexo.FileID)
	}
	return ids
}

func (a AnexoList) Value() (driver.Value, error) {
	if a == nil {
		a = AnexoList{}
	}
	return json.Marshal(a)
}

func (a *AnexoList) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// ActionLog holds the ordered raw evaluation entries appended during a
// track's run. Entries are kept as raw JSON so the remote payloads survive
// storage round trips untouched.
type ActionLog []json.RawMessage

func (l ActionLog) Value() (driver.Value, error) {
	if l == nil {
		l = ActionLog{}
	}
	return json.Marshal(l)
}

func (l *ActionLog) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// TrackStates maps a track key to its status.
type TrackStates map[string]string

func (t TrackStates) Value() (driver.Value, error) {
	if t == nil {
		t = TrackStates{}
	}
	return json.Marshal(t)
}

func (t *TrackStates) Scan(src interface{}) error {
	return scanJSON(src, t)
}

// NewTrackStates returns the initial pending state for all three tracks.
func NewTrackStates() TrackStates {
	return TrackStates{
		TrackAmbiental: TrackPending,
		TrackSocial:    TrackPending,
		TrackEconomica: TrackPending,
	}
}

// Solicitud is one supplier evaluation request: the static submission
// fields plus one slot per evaluation track (questionnaire subset, action
// log, final response) and the aggregate completion fields.
type Solicitud struct {
	SolicitudID        string      `db:"solicitud_id" json:"SolicitudID"`
	CodigoProyecto     string      `db:"codigo_proyecto" json:"CodigoProyecto"`
	ProveedorNombre    string      `db:"proveedor_nombre" json:"ProveedorNombre"`
	ProveedorNIT       string      `db:"proveedor_nit" json:"ProveedorNIT"`
	UsuarioSolicitante string      `db:"usuario_solicitante" json:"UsuarioSolicitante"`
	FechaCreacion      time.Time   `db:"fecha_creacion" json:"FechaCreacion"`
	EstadoGeneral      string      `db:"estado_general" json:"EstadoGeneral"`
	FuenteExcelPath    string      `db:"fuente_excel_path" json:"FuenteExcelPath"`
	Anexos             AnexoList   `db:"anexos" json:"Anexos"`
	Estado             TrackStates `db:"estado" json:"Estado"`

	Cuestionario          string `db:"cuestionario" json:"Cuestionario"`
	CuestionarioAmbiental string `db:"cuestionario_ambiental" json:"CuestionarioAmbiental"`
	CuestionarioSocial    string `db:"cuestionario_social" json:"CuestionarioSocial"`
	CuestionarioEconomica string `db:"cuestionario_economica" json:"CuestionarioEconomica"`

	EvaluacionAmbiental ActionLog `db:"evaluacion_ambiental" json:"EvaluacionAmbiental"`
	EvaluacionSocial    ActionLog `db:"evaluacion_social" json:"EvaluacionSocial"`
	EvaluacionEconomica ActionLog `db:"evaluacion_economica" json:"EvaluacionEconomica"`

	RespuestaAmbiental string `db:"respuesta_ambiental" json:"RespuestaAmbiental"`
	RespuestaSocial    string `db:"respuesta_social" json:"RespuestaSocial"`
	RespuestaEconomica string `db:"respuesta_economica" json:"RespuestaEconomica"`

	PuntajeConsolidado *float64   `db:"puntaje_consolidado" json:"PuntajeConsolidado,omitempty"`
	NivelGlobal        *string    `db:"nivel_global" json:"NivelGlobal,omitempty"`
	Analisis           *string    `db:"analisis" json:"Analisis,omitempty"`
	FechaFinalizacion  *time.Time `db:"fecha_finalizacion" json:"FechaFinalizacion,omitempty"`
}

// NewSolicitud creates a solicitud in its initial state: fresh identifier,
// in-progress overall status and all three tracks pending.
func NewSolicitud(codigoProyecto, proveedorNombre, proveedorNIT, usuarioSolicitante string) *Solicitud {
	return &Solicitud{
		SolicitudID:        uuid.New().String(),
		CodigoProyecto:     codigoProyecto,
		ProveedorNombre:    proveedorNombre,
		ProveedorNIT:       proveedorNIT,
		UsuarioSolicitante: usuarioSolicitante,
		FechaCreacion:      time.Now().UTC(),
		EstadoGeneral:      EstadoEnProgreso,
		Anexos:             AnexoList{},
		Estado:             NewTrackStates(),
	}
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("db: cannot scan %T", src)
	}
}
