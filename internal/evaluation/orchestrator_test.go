package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vigia-lab/vigia/internal/assistant"
	"github.com/vigia-lab/vigia/internal/db"
)

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	mu   sync.Mutex
	sols map[string]*db.Solicitud

	markCalls int
	analisis  map[string]string
}

func newMemStore(sols ...*db.Solicitud) *memStore {
	s := &memStore{
		sols:     make(map[string]*db.Solicitud),
		analisis: make(map[string]string),
	}
	for _, sol := range sols {
		s.put(sol)
	}
	return s
}

func (s *memStore) put(sol *db.Solicitud) {
	clone := *sol
	s.sols[sol.SolicitudID] = &clone
}

func (s *memStore) Get(ctx context.Context, id string) (*db.Solicitud, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sol, ok := s.sols[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	clone := *sol
	clone.Estado = db.TrackStates{}
	for k, v := range sol.Estado {
		clone.Estado[k] = v
	}
	return &clone, nil
}

func (s *memStore) Update(ctx context.Context, sol *db.Solicitud) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sols[sol.SolicitudID]; !ok {
		return db.ErrNotFound
	}
	s.put(sol)
	return nil
}

func (s *memStore) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sol, ok := s.sols[id]
	if !ok {
		return false, db.ErrNotFound
	}
	s.markCalls++
	if sol.EstadoGeneral == db.EstadoCompletado {
		return false, nil
	}
	sol.EstadoGeneral = db.EstadoCompletado
	sol.FechaFinalizacion = &at
	return true, nil
}

func (s *memStore) SetAnalisis(ctx context.Context, id, analisis string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analisis[id] = analisis
	return nil
}

// scriptedAssistant returns one scripted RunResult (or error) per attempt.
type scriptedAssistant struct {
	mu       sync.Mutex
	results  []*assistant.RunResult
	errs     []error
	attempt  int
	messages []string
	threads  int
}

func (a *scriptedAssistant) CreateThread(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.threads++
	return fmt.Sprintf("thread_%d", a.threads), nil
}

func (a *scriptedAssistant) CreateMessage(ctx context.Context, threadID, content string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, content)
	return "msg", nil
}

func (a *scriptedAssistant) SendFileReviewMessages(ctx context.Context, threadID, instruction string, fileIDs []string) (string, error) {
	return "msg", nil
}

func (a *scriptedAssistant) CreateRun(ctx context.Context, threadID string) (string, error) {
	return "run", nil
}

func (a *scriptedAssistant) WaitForRun(ctx context.Context, threadID, runID string) (*assistant.RunResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.attempt
	a.attempt++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if i < len(a.results) {
		return a.results[i], nil
	}
	return nil, nil
}

func capturedResult(response string) *assistant.RunResult {
	return &assistant.RunResult{
		RequiredAction:    &assistant.RequiredAction{Type: "submit_tool_outputs"},
		AssistantResponse: response,
	}
}

func testSolicitud() *db.Solicitud {
	sol := db.NewSolicitud("PRJ-001", "Acme SAS", "900123456", "jramirez")
	sol.CuestionarioAmbiental = `[{"dimension":"Ambiental"}]`
	return sol
}

func newTestOrchestrator(t *testing.T, store Store) *Orchestrator {
	t.Helper()
	return NewOrchestrator(store, nil, zaptest.NewLogger(t))
}

func TestEvaluateCapturesActionOnFirstAttempt(t *testing.T) {
	sol := testSolicitud()
	store := newMemStore(sol)
	client := &scriptedAssistant{results: []*assistant.RunResult{capturedResult("Observaciones.")}}

	orch := newTestOrchestrator(t, store)
	require.NoError(t, orch.Evaluate(context.Background(), TrackAmbiental, client, sol.SolicitudID))

	got, err := store.Get(context.Background(), sol.SolicitudID)
	require.NoError(t, err)
	assert.Equal(t, db.TrackDone, got.Estado[db.TrackAmbiental])
	assert.Equal(t, "Observaciones.", got.RespuestaAmbiental)
	require.Len(t, got.EvaluacionAmbiental, 1)
	assert.Equal(t, 1, client.attempt)
	assert.Equal(t, 1, client.threads)
}

func TestEvaluateRetriesAddAttemptSuffix(t *testing.T) {
	sol := testSolicitud()
	store := newMemStore(sol)
	client := &scriptedAssistant{results: []*assistant.RunResult{
		{AssistantResponse: "sin acción"},
		capturedResult("Ahora sí."),
	}}

	orch := newTestOrchestrator(t, store)
	require.NoError(t, orch.Evaluate(context.Background(), TrackAmbiental, client, sol.SolicitudID))

	// One instruction message per attempt, each on a fresh thread.
	require.Len(t, client.messages, 2)
	assert.NotContains(t, client.messages[0], "Intento")
	assert.Contains(t, client.messages[1], "Intento 2.")
	assert.Equal(t, 2, client.threads)

	got, _ := store.Get(context.Background(), sol.SolicitudID)
	assert.Equal(t, db.TrackDone, got.Estado[db.TrackAmbiental])
}

func TestEvaluateAllAttemptsWithoutActionFails(t *testing.T) {
	sol := testSolicitud()
	store := newMemStore(sol)
	client := &scriptedAssistant{results: []*assistant.RunResult{
		{AssistantResponse: "uno"},
		{AssistantResponse: "dos"},
		{AssistantResponse: "tres"},
	}}

	orch := newTestOrchestrator(t, store)
	require.NoError(t, orch.Evaluate(context.Background(), TrackAmbiental, client, sol.SolicitudID))

	got, _ := store.Get(context.Background(), sol.SolicitudID)
	assert.Equal(t, db.TrackFailed, got.Estado[db.TrackAmbiental])
	assert.Empty(t, got.RespuestaAmbiental)
	assert.Empty(t, got.EvaluacionAmbiental)
	assert.Equal(t, 3, client.attempt)
}

func TestEvaluateRecoversAfterAttemptError(t *testing.T) {
	sol := testSolicitud()
	store := newMemStore(sol)
	client := &scriptedAssistant{
		errs:    []error{errors.New("transient"), nil},
		results: []*assistant.RunResult{nil, capturedResult("Recuperado.")},
	}

	orch := newTestOrchestrator(t, store)
	require.NoError(t, orch.Evaluate(context.Background(), TrackAmbiental, client, sol.SolicitudID))

	got, _ := store.Get(context.Background(), sol.SolicitudID)
	assert.Equal(t, db.TrackDone, got.Estado[db.TrackAmbiental])
	assert.Equal(t, "Recuperado.", got.RespuestaAmbiental)
}

func TestEvaluateTerminalStatusStoredAsResponse(t *testing.T) {
	sol := testSolicitud()
	store := newMemStore(sol)
	client := &scriptedAssistant{results: []*assistant.RunResult{
		{RequiredAction: &assistant.RequiredAction{Type: "submit_tool_outputs"}, AssistantResponse: "failed"},
	}}

	orch := newTestOrchestrator(t, store)
	require.NoError(t, orch.Evaluate(context.Background(), TrackAmbiental, client, sol.SolicitudID))

	got, _ := store.Get(context.Background(), sol.SolicitudID)
	assert.Equal(t, db.TrackDone, got.Estado[db.TrackAmbiental])
	assert.Equal(t, "failed", got.RespuestaAmbiental)
}

func TestEvaluateDoesNotClobberSiblingTracks(t *testing.T) {
	sol := testSolicitud()
	store := newMemStore(sol)
	client := &scriptedAssistant{results: []*assistant.RunResult{capturedResult("ambiental ok")}}

	// A sibling track finishes while this track's attempts run.
	sibling, err := store.Get(context.Background(), sol.SolicitudID)
	require.NoError(t, err)
	TrackSocial.Apply(sibling, []json.RawMessage{json.RawMessage(`{}`)}, "social ok", db.TrackDone)
	require.NoError(t, store.Update(context.Background(), sibling))

	orch := newTestOrchestrator(t, store)
	require.NoError(t, orch.Evaluate(context.Background(), TrackAmbiental, client, sol.SolicitudID))

	got, _ := store.Get(context.Background(), sol.SolicitudID)
	assert.Equal(t, "social ok", got.RespuestaSocial)
	assert.Equal(t, db.TrackDone, got.Estado[db.TrackSocial])
	assert.Equal(t, "ambiental ok", got.RespuestaAmbiental)
}

func TestBuildInstruction(t *testing.T) {
	sol := testSolicitud()
	sol.Anexos = db.AnexoList{
		{FileID: "file_1", Filename: "certificado.pdf"},
		{FileID: "file_2", Filename: "informe.xlsx"},
	}

	msg := buildInstruction(sol, TrackAmbiental)
	assert.Contains(t, msg, "Solicitud creada para el proyecto PRJ-001.")
	assert.Contains(t, msg, "Proveedor: Acme SAS (NIT: 900123456).")
	assert.Contains(t, msg, "Anexos: certificado.pdf (ID: file_1), informe.xlsx (ID: file_2).")
	assert.Contains(t, msg, "la evaluación ambiental correspondiente")
	assert.Contains(t, msg, `Datos del formulario: [{"dimension":"Ambiental"}]`)
}

func TestBuildInstructionWithoutAnexosOrCuestionario(t *testing.T) {
	sol := db.NewSolicitud("PRJ-002", "Beta Ltda", "800987654", "mgomez")

	msg := buildInstruction(sol, TrackSocial)
	assert.Contains(t, msg, "Anexos: Ninguno.")
	assert.Contains(t, msg, "Datos del formulario: No hay datos de formulario.")
}
