package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRunAPI scripts a sequence of run status snapshots and records every
// call the poller makes.
type fakeRunAPI struct {
	mu         sync.Mutex
	statuses   []*RunStatus
	statusErrs []error
	idx        int

	submitted  [][]ToolOutput
	messages   []string
	runsMade   int
	threadMsgs []Message
}

func (f *fakeRunAPI) GetRunStatus(ctx context.Context, threadID, runID string) (*RunStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.idx
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	} else {
		f.idx++
	}
	if i < len(f.statusErrs) && f.statusErrs[i] != nil {
		return nil, f.statusErrs[i]
	}
	return f.statuses[i], nil
}

func (f *fakeRunAPI) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, outputs)
	return nil
}

func (f *fakeRunAPI) CreateMessage(ctx context.Context, threadID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return fmt.Sprintf("msg_%d", len(f.messages)), nil
}

func (f *fakeRunAPI) CreateRun(ctx context.Context, threadID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runsMade++
	return fmt.Sprintf("run_%d", f.runsMade), nil
}

func (f *fakeRunAPI) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadMsgs, nil
}

func requiresActionStatus(callIDs ...string) *RunStatus {
	action := &RequiredAction{Type: "submit_tool_outputs"}
	for _, id := range callIDs {
		var call ToolCall
		call.ID = id
		call.Type = "function"
		call.Function.Name = "registrar_evaluacion"
		action.SubmitToolOutputs.ToolCalls = append(action.SubmitToolOutputs.ToolCalls, call)
	}
	return &RunStatus{Status: StatusRequiresAction, RequiredAction: action}
}

func assistantTextMessage(value string) Message {
	var block ContentBlock
	block.Type = "text"
	block.Text.Value = value
	return Message{Role: "assistant", Content: []ContentBlock{block}}
}

func fastPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:         time.Millisecond,
		Timeout:          time.Second,
		StatusRetries:    2,
		StatusRetryDelay: time.Millisecond,
		MaxRunRestarts:   10,
	}
}

func TestWaitForRunAcknowledgesRequiredAction(t *testing.T) {
	api := &fakeRunAPI{
		statuses: []*RunStatus{
			{Status: StatusInProgress},
			requiresActionStatus("call_1", "call_2"),
			{Status: StatusCompleted},
		},
		threadMsgs: []Message{assistantTextMessage("Observaciones registradas.")},
	}
	poller := NewPoller(api, fastPollerConfig(), zaptest.NewLogger(t))

	result, err := poller.WaitForRun(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	require.NotNil(t, result.RequiredAction)
	assert.Equal(t, "Observaciones registradas.", result.AssistantResponse)

	require.Len(t, api.submitted, 1)
	require.Len(t, api.submitted[0], 2)
	for _, output := range api.submitted[0] {
		assert.Equal(t, "Ok, función ejecutada correctamente.", output.Output)
	}
	assert.Equal(t, "call_1", api.submitted[0][0].ToolCallID)
}

func TestWaitForRunRestartsOnCompletionWithoutAction(t *testing.T) {
	api := &fakeRunAPI{
		statuses: []*RunStatus{
			{Status: StatusCompleted},
			requiresActionStatus("call_1"),
			{Status: StatusCompleted},
		},
		threadMsgs: []Message{assistantTextMessage("Resultado tras reintento.")},
	}
	poller := NewPoller(api, fastPollerConfig(), zaptest.NewLogger(t))

	result, err := poller.WaitForRun(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	require.NotNil(t, result.RequiredAction)

	// One retry message and one fresh run, nothing more.
	require.Len(t, api.messages, 1)
	assert.Contains(t, api.messages[0], "ejecuta la función configurada")
	assert.Equal(t, 1, api.runsMade)
}

func TestWaitForRunRestartBudgetExhausted(t *testing.T) {
	cfg := fastPollerConfig()
	cfg.MaxRunRestarts = 2
	api := &fakeRunAPI{
		statuses: []*RunStatus{{Status: StatusCompleted}},
	}
	poller := NewPoller(api, cfg, zaptest.NewLogger(t))

	_, err := poller.WaitForRun(context.Background(), "thread_1", "run_1")
	require.ErrorIs(t, err, ErrRunRestartsExhausted)
	assert.Equal(t, 2, api.runsMade)
	assert.Len(t, api.messages, 2)
}

func TestWaitForRunTimesOut(t *testing.T) {
	cfg := fastPollerConfig()
	cfg.Timeout = 5 * time.Millisecond
	api := &fakeRunAPI{
		statuses: []*RunStatus{{Status: StatusInProgress}},
	}
	poller := NewPoller(api, cfg, zaptest.NewLogger(t))

	_, err := poller.WaitForRun(context.Background(), "thread_1", "run_1")
	require.ErrorIs(t, err, ErrPollTimeout)
}

func TestWaitForRunTimesOutOnEndlessRequiredAction(t *testing.T) {
	cfg := fastPollerConfig()
	cfg.Timeout = 5 * time.Millisecond
	// The scripted status never leaves requires_action, so the poller keeps
	// acknowledging the tool call until the ceiling hits.
	api := &fakeRunAPI{
		statuses: []*RunStatus{requiresActionStatus("call_1")},
	}
	poller := NewPoller(api, cfg, zaptest.NewLogger(t))

	_, err := poller.WaitForRun(context.Background(), "thread_1", "run_1")
	require.ErrorIs(t, err, ErrPollTimeout)
	assert.GreaterOrEqual(t, len(api.submitted), 2)
	for _, outputs := range api.submitted {
		require.Len(t, outputs, 1)
		assert.Equal(t, "call_1", outputs[0].ToolCallID)
	}
}

func TestWaitForRunTerminalFailureYieldsStatusName(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"failed", StatusFailed},
		{"cancelled", StatusCancelled},
		{"expired", StatusExpired},
		{"incomplete", StatusIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeRunAPI{
				statuses: []*RunStatus{{Status: tt.status}},
			}
			poller := NewPoller(api, fastPollerConfig(), zaptest.NewLogger(t))

			result, err := poller.WaitForRun(context.Background(), "thread_1", "run_1")
			require.NoError(t, err)
			assert.Nil(t, result.RequiredAction)
			assert.Equal(t, tt.status, result.AssistantResponse)
		})
	}
}

func TestWaitForRunTerminalFailureKeepsCapturedAction(t *testing.T) {
	api := &fakeRunAPI{
		statuses: []*RunStatus{
			requiresActionStatus("call_1"),
			{Status: StatusFailed},
		},
	}
	poller := NewPoller(api, fastPollerConfig(), zaptest.NewLogger(t))

	result, err := poller.WaitForRun(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	require.NotNil(t, result.RequiredAction)
	assert.Equal(t, StatusFailed, result.AssistantResponse)
}

func TestWaitForRunSurvivesTransientStatusFailures(t *testing.T) {
	api := &fakeRunAPI{
		statuses: []*RunStatus{
			nil,
			requiresActionStatus("call_1"),
			{Status: StatusCompleted},
		},
		statusErrs: []error{errors.New("gateway timeout")},
		threadMsgs: []Message{assistantTextMessage("ok")},
	}
	poller := NewPoller(api, fastPollerConfig(), zaptest.NewLogger(t))

	result, err := poller.WaitForRun(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	require.NotNil(t, result.RequiredAction)
}

func TestWaitForRunContextCancellation(t *testing.T) {
	cfg := fastPollerConfig()
	cfg.Interval = time.Minute
	api := &fakeRunAPI{
		statuses: []*RunStatus{{Status: StatusInProgress}},
	}
	poller := NewPoller(api, cfg, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := poller.WaitForRun(ctx, "thread_1", "run_1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompletedResponseJoinsAssistantBlocks(t *testing.T) {
	api := &fakeRunAPI{
		threadMsgs: []Message{
			assistantTextMessage("Primera parte."),
			{Role: "user", Content: []ContentBlock{}},
			assistantTextMessage("Segunda parte."),
		},
	}
	poller := NewPoller(api, fastPollerConfig(), zaptest.NewLogger(t))

	text, err := poller.completedResponse(context.Background(), "thread_1")
	require.NoError(t, err)
	assert.Equal(t, "Primera parte. Segunda parte.", text)
}
