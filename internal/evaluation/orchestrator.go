package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vigia-lab/vigia/internal/assistant"
	"github.com/vigia-lab/vigia/internal/db"
	"github.com/vigia-lab/vigia/internal/metrics"
)

const (
	maxAttempts           = 3
	fileReviewInstruction = "Estos son los archivos que debes revisar"
	retryMessageSuffix    = "\n\nPor favor, responde ejecutando la función configurada en el assistant. Intento %d."
)

// Assistant is the remote evaluation surface one track talks to.
type Assistant interface {
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID, content string) (string, error)
	SendFileReviewMessages(ctx context.Context, threadID, instruction string, fileIDs []string) (string, error)
	CreateRun(ctx context.Context, threadID string) (string, error)
	WaitForRun(ctx context.Context, threadID, runID string) (*assistant.RunResult, error)
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	Get(ctx context.Context, solicitudID string) (*db.Solicitud, error)
	Update(ctx context.Context, sol *db.Solicitud) error
	MarkCompleted(ctx context.Context, solicitudID string, at time.Time) (bool, error)
	SetAnalisis(ctx context.Context, solicitudID, analisis string) error
}

// Orchestrator runs one evaluation track end to end: prompts the track's
// assistant, retries runs that finish without the expected tool call,
// persists the outcome and hands the record to the convergence gate.
type Orchestrator struct {
	store  Store
	gate   *ConvergenceGate
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator over the given store and gate.
func NewOrchestrator(store Store, gate *ConvergenceGate, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{store: store, gate: gate, logger: logger}
}

// Evaluate executes the track for the given solicitud. The assistant gets
// up to maxAttempts runs, each on a fresh thread; an attempt counts only
// when it captures a required action. The track lands in done when the log
// is non-empty and failed otherwise, and the record is persisted either way.
func (o *Orchestrator) Evaluate(ctx context.Context, track Track, client Assistant, solicitudID string) error {
	sol, err := o.store.Get(ctx, solicitudID)
	if err != nil {
		return fmt.Errorf("failed to load solicitud for %s evaluation: %w", track, err)
	}

	metrics.EvaluationsStarted.WithLabelValues(track.String()).Inc()

	message := buildInstruction(sol, track)
	fileIDs := sol.Anexos.FileIDs()

	var log []json.RawMessage
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current := message
		if attempt > 1 {
			current = message + fmt.Sprintf(retryMessageSuffix, attempt)
		}

		result, err := o.runAttempt(ctx, client, current, fileIDs)
		if err != nil {
			o.logger.Warn("Evaluation attempt failed",
				zap.String("solicitud_id", solicitudID),
				zap.String("track", track.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		if result == nil || result.RequiredAction == nil {
			continue
		}

		entry, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode run result: %w", err)
		}
		log = append(log, entry)
		break
	}

	respuesta := firstResponse(log)
	estado := db.TrackFailed
	if len(log) > 0 {
		estado = db.TrackDone
	}

	// Re-read before mutating so slots written by sibling tracks in the
	// meantime are not clobbered.
	sol, err = o.store.Get(ctx, solicitudID)
	if err != nil {
		return fmt.Errorf("failed to reload solicitud for %s evaluation: %w", track, err)
	}
	track.Apply(sol, log, respuesta, estado)
	if err := o.store.Update(ctx, sol); err != nil {
		return fmt.Errorf("failed to persist %s evaluation: %w", track, err)
	}

	metrics.EvaluationsCompleted.WithLabelValues(track.String(), estado).Inc()
	o.logger.Info("Evaluation track finished",
		zap.String("solicitud_id", solicitudID),
		zap.String("track", track.String()),
		zap.String("estado", estado),
		zap.Int("log_entries", len(log)),
	)

	if o.gate != nil {
		if err := o.gate.Check(ctx, solicitudID); err != nil {
			o.logger.Warn("Convergence check failed",
				zap.String("solicitud_id", solicitudID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// runAttempt drives one full flow: thread, file review messages,
// instruction message, run, and the wait for its outcome.
func (o *Orchestrator) runAttempt(ctx context.Context, client Assistant, message string, fileIDs []string) (*assistant.RunResult, error) {
	threadID, err := client.CreateThread(ctx)
	if err != nil {
		return nil, err
	}
	if len(fileIDs) > 0 {
		if _, err := client.SendFileReviewMessages(ctx, threadID, fileReviewInstruction, fileIDs); err != nil {
			return nil, err
		}
	}
	if _, err := client.CreateMessage(ctx, threadID, message); err != nil {
		return nil, err
	}
	runID, err := client.CreateRun(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return client.WaitForRun(ctx, threadID, runID)
}

func buildInstruction(sol *db.Solicitud, track Track) string {
	anexosStr := "Ninguno"
	if len(sol.Anexos) > 0 {
		parts := make([]string, 0, len(sol.Anexos))
		for _, a := range sol.Anexos {
			parts = append(parts, fmt.Sprintf("%s (ID: %s)", a.Filename, a.FileID))
		}
		anexosStr = strings.Join(parts, ", ")
	}

	cuestionario := track.Cuestionario(sol)
	if cuestionario == "" {
		cuestionario = "No hay datos de formulario."
	}

	return fmt.Sprintf(
		"Solicitud creada para el proyecto %s.\n"+
			"Proveedor: %s (NIT: %s).\n"+
			"Anexos: %s.\n"+
			"Por favor, realiza la evaluación %s correspondiente y responde con las observaciones y recomendaciones."+
			"Datos del formulario: %s\n",
		sol.CodigoProyecto, sol.ProveedorNombre, sol.ProveedorNIT,
		anexosStr, track, cuestionario,
	)
}

// firstResponse returns the first non-empty assistant response in the log.
func firstResponse(log []json.RawMessage) string {
	for _, entry := range log {
		var result assistant.RunResult
		if err := json.Unmarshal(entry, &result); err != nil {
			continue
		}
		if result.AssistantResponse != "" {
			return result.AssistantResponse
		}
	}
	return ""
}
