package evaluation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vigia-lab/vigia/internal/db"
	"github.com/vigia-lab/vigia/internal/metrics"
)

// FileCleaner removes remote files once a solicitud no longer needs them.
type FileCleaner interface {
	DeleteFile(ctx context.Context, fileID string) error
}

// Analyzer produces the optional consolidated analysis after completion.
type Analyzer interface {
	AnalyzeSolicitud(ctx context.Context, sol *db.Solicitud) (string, error)
}

// ConvergenceGate decides whether a solicitud is finished. Every track
// runs it after persisting its outcome; only the caller that observes all
// three responses present and wins the lock performs the completion side
// effects, so finalization happens exactly once.
type ConvergenceGate struct {
	store    Store
	files    FileCleaner
	lock     *FinalizeLock
	analyzer Analyzer
	logger   *zap.Logger
}

// NewConvergenceGate wires the gate. analyzer may be nil to skip the
// consolidated analysis.
func NewConvergenceGate(store Store, files FileCleaner, lock *FinalizeLock, analyzer Analyzer, logger *zap.Logger) *ConvergenceGate {
	return &ConvergenceGate{
		store:    store,
		files:    files,
		lock:     lock,
		analyzer: analyzer,
		logger:   logger,
	}
}

// Check re-reads the record and finalizes it when all three tracks have
// produced a response.
func (g *ConvergenceGate) Check(ctx context.Context, solicitudID string) error {
	sol, err := g.store.Get(ctx, solicitudID)
	if err != nil {
		return fmt.Errorf("failed to load solicitud for convergence check: %w", err)
	}

	if sol.RespuestaAmbiental == "" || sol.RespuestaSocial == "" || sol.RespuestaEconomica == "" {
		return nil
	}

	won, err := g.lock.Acquire(ctx, solicitudID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	g.cleanupFiles(ctx, sol)

	completed, err := g.store.MarkCompleted(ctx, solicitudID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !completed {
		return nil
	}

	metrics.SolicitudesCompleted.Inc()
	g.logger.Info("Solicitud completed",
		zap.String("solicitud_id", solicitudID),
		zap.Int("anexos_cleaned", len(sol.Anexos)),
	)

	if g.analyzer != nil {
		g.analyze(ctx, solicitudID)
	}
	return nil
}

// cleanupFiles deletes only the files this solicitud uploaded. Failures
// are logged and skipped so a stray file never blocks completion.
func (g *ConvergenceGate) cleanupFiles(ctx context.Context, sol *db.Solicitud) {
	if g.files == nil {
		return
	}
	for _, anexo := range sol.Anexos {
		if err := g.files.DeleteFile(ctx, anexo.FileID); err != nil {
			g.logger.Warn("Failed to delete remote file",
				zap.String("solicitud_id", sol.SolicitudID),
				zap.String("file_id", anexo.FileID),
				zap.Error(err),
			)
			continue
		}
		metrics.FilesDeleted.Inc()
	}
}

func (g *ConvergenceGate) analyze(ctx context.Context, solicitudID string) {
	sol, err := g.store.Get(ctx, solicitudID)
	if err != nil {
		g.logger.Warn("Failed to reload solicitud for analysis", zap.Error(err))
		return
	}
	analisis, err := g.analyzer.AnalyzeSolicitud(ctx, sol)
	if err != nil {
		g.logger.Warn("Consolidated analysis failed",
			zap.String("solicitud_id", solicitudID),
			zap.Error(err),
		)
		return
	}
	if err := g.store.SetAnalisis(ctx, solicitudID, analisis); err != nil {
		g.logger.Warn("Failed to store analysis",
			zap.String("solicitud_id", solicitudID),
			zap.Error(err),
		)
	}
}
