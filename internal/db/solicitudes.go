package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no solicitud matches the given identifier.
var ErrNotFound = errors.New("solicitud not found")

const schema = `
CREATE TABLE IF NOT EXISTS solicitudes (
    solicitud_id           TEXT PRIMARY KEY,
    codigo_proyecto        TEXT NOT NULL,
    proveedor_nombre       TEXT NOT NULL,
    proveedor_nit          TEXT NOT NULL,
    usuario_solicitante    TEXT NOT NULL,
    fecha_creacion         TIMESTAMPTZ NOT NULL,
    estado_general         TEXT NOT NULL,
    fuente_excel_path      TEXT NOT NULL DEFAULT '',
    anexos                 JSONB NOT NULL DEFAULT '[]',
    estado                 JSONB NOT NULL DEFAULT '{}',
    cuestionario           TEXT NOT NULL DEFAULT '',
    cuestionario_ambiental TEXT NOT NULL DEFAULT '',
    cuestionario_social    TEXT NOT NULL DEFAULT '',
    cuestionario_economica TEXT NOT NULL DEFAULT '',
    evaluacion_ambiental   JSONB NOT NULL DEFAULT '[]',
    evaluacion_social      JSONB NOT NULL DEFAULT '[]',
    evaluacion_economica   JSONB NOT NULL DEFAULT '[]',
    respuesta_ambiental    TEXT NOT NULL DEFAULT '',
    respuesta_social       TEXT NOT NULL DEFAULT '',
    respuesta_economica    TEXT NOT NULL DEFAULT '',
    puntaje_consolidado    DOUBLE PRECISION,
    nivel_global           TEXT,
    analisis               TEXT,
    fecha_finalizacion     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_solicitudes_fecha ON solicitudes (fecha_creacion DESC);
`

// SolicitudStore persists solicitudes in Postgres.
type SolicitudStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSolicitudStore creates a store over the given pool.
func NewSolicitudStore(db *sqlx.DB, logger *zap.Logger) *SolicitudStore {
	return &SolicitudStore{db: db, logger: logger}
}

// EnsureSchema creates the solicitudes table if it does not exist yet.
func (s *SolicitudStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Insert stores a new solicitud.
func (s *SolicitudStore) Insert(ctx context.Context, sol *Solicitud) error {
	query := `
		INSERT INTO solicitudes (
			solicitud_id, codigo_proyecto, proveedor_nombre, proveedor_nit,
			usuario_solicitante, fecha_creacion, estado_general, fuente_excel_path,
			anexos, estado,
			cuestionario, cuestionario_ambiental, cuestionario_social, cuestionario_economica,
			evaluacion_ambiental, evaluacion_social, evaluacion_economica,
			respuesta_ambiental, respuesta_social, respuesta_economica
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := s.db.ExecContext(ctx, query,
		sol.SolicitudID, sol.CodigoProyecto, sol.ProveedorNombre, sol.ProveedorNIT,
		sol.UsuarioSolicitante, sol.FechaCreacion, sol.EstadoGeneral, sol.FuenteExcelPath,
		sol.Anexos, sol.Estado,
		sol.Cuestionario, sol.CuestionarioAmbiental, sol.CuestionarioSocial, sol.CuestionarioEconomica,
		sol.EvaluacionAmbiental, sol.EvaluacionSocial, sol.EvaluacionEconomica,
		sol.RespuestaAmbiental, sol.RespuestaSocial, sol.RespuestaEconomica,
	)
	if err != nil {
		return fmt.Errorf("failed to insert solicitud: %w", err)
	}

	s.logger.Debug("Solicitud inserted",
		zap.String("solicitud_id", sol.SolicitudID),
		zap.String("codigo_proyecto", sol.CodigoProyecto),
	)
	return nil
}

// Get loads a solicitud by identifier.
func (s *SolicitudStore) Get(ctx context.Context, solicitudID string) (*Solicitud, error) {
	var sol Solicitud
	err := s.db.GetContext(ctx, &sol,
		`SELECT * FROM solicitudes WHERE solicitud_id = $1`, solicitudID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get solicitud: %w", err)
	}
	return &sol, nil
}

// List returns all solicitudes, newest first.
func (s *SolicitudStore) List(ctx context.Context) ([]*Solicitud, error) {
	var sols []*Solicitud
	err := s.db.SelectContext(ctx, &sols,
		`SELECT * FROM solicitudes ORDER BY fecha_creacion DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list solicitudes: %w", err)
	}
	return sols, nil
}

// Update writes the full mutable row back.
func (s *SolicitudStore) Update(ctx context.Context, sol *Solicitud) error {
	query := `
		UPDATE solicitudes SET
			codigo_proyecto = $2, proveedor_nombre = $3, proveedor_nit = $4,
			usuario_solicitante = $5, estado_general = $6, fuente_excel_path = $7,
			anexos = $8, estado = $9,
			cuestionario = $10, cuestionario_ambiental = $11, cuestionario_social = $12, cuestionario_economica = $13,
			evaluacion_ambiental = $14, evaluacion_social = $15, evaluacion_economica = $16,
			respuesta_ambiental = $17, respuesta_social = $18, respuesta_economica = $19,
			puntaje_consolidado = $20, nivel_global = $21, analisis = $22, fecha_finalizacion = $23
		WHERE solicitud_id = $1`

	result, err := s.db.ExecContext(ctx, query,
		sol.SolicitudID,
		sol.CodigoProyecto, sol.ProveedorNombre, sol.ProveedorNIT,
		sol.UsuarioSolicitante, sol.EstadoGeneral, sol.FuenteExcelPath,
		sol.Anexos, sol.Estado,
		sol.Cuestionario, sol.CuestionarioAmbiental, sol.CuestionarioSocial, sol.CuestionarioEconomica,
		sol.EvaluacionAmbiental, sol.EvaluacionSocial, sol.EvaluacionEconomica,
		sol.RespuestaAmbiental, sol.RespuestaSocial, sol.RespuestaEconomica,
		sol.PuntajeConsolidado, sol.NivelGlobal, sol.Analisis, sol.FechaFinalizacion,
	)
	if err != nil {
		return fmt.Errorf("failed to update solicitud: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a solicitud.
func (s *SolicitudStore) Delete(ctx context.Context, solicitudID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM solicitudes WHERE solicitud_id = $1`, solicitudID)
	if err != nil {
		return fmt.Errorf("failed to delete solicitud: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted transitions a solicitud to completado exactly once. It
// returns true only for the call that performed the transition; a second
// caller finds the row already completed and gets false.
func (s *SolicitudStore) MarkCompleted(ctx context.Context, solicitudID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE solicitudes SET estado_general = $2, fecha_finalizacion = $3
		 WHERE solicitud_id = $1 AND estado_general <> $2`,
		solicitudID, EstadoCompletado, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark solicitud completed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check completion result: %w", err)
	}
	return rows > 0, nil
}

// SetAnalisis stores the cross-track analysis text.
func (s *SolicitudStore) SetAnalisis(ctx context.Context, solicitudID, analisis string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE solicitudes SET analisis = $2 WHERE solicitud_id = $1`,
		solicitudID, analisis)
	if err != nil {
		return fmt.Errorf("failed to set analisis: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check analisis result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
