package assistant

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vigia-lab/vigia/internal/metrics"
)

const (
	// toolOutputAck is the canned acknowledgment submitted for every
	// pending tool call. The requested function is never inspected or
	// executed; the run only needs the acknowledgment to proceed.
	toolOutputAck = "Ok, función ejecutada correctamente."

	// retryInstruction is posted when a run completes without ever asking
	// for a tool action, before a fresh run is started on the same thread.
	retryInstruction = "Por favor, ejecuta la función configurada en el assistant y entrega el resultado de la revisión."
)

// RunAPI is the subset of the remote client the poller drives.
type RunAPI interface {
	GetRunStatus(ctx context.Context, threadID, runID string) (*RunStatus, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error
	CreateMessage(ctx context.Context, threadID, content string) (string, error)
	CreateRun(ctx context.Context, threadID string) (string, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// PollerConfig tunes the run polling loop.
type PollerConfig struct {
	// Interval is the delay between status polls.
	Interval time.Duration
	// Timeout is the wall-clock ceiling per run. A restart resets the
	// elapsed budget.
	Timeout time.Duration
	// StatusRetries bounds the attempts for a single status fetch.
	StatusRetries int
	// StatusRetryDelay is the delay between status fetch attempts.
	StatusRetryDelay time.Duration
	// MaxRunRestarts bounds the completed-without-action restart chain.
	MaxRunRestarts int
}

func (c *PollerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10000 * time.Second
	}
	if c.StatusRetries <= 0 {
		c.StatusRetries = 5
	}
	if c.StatusRetryDelay <= 0 {
		c.StatusRetryDelay = 2 * time.Second
	}
	if c.MaxRunRestarts <= 0 {
		c.MaxRunRestarts = 10
	}
}

// Poller drives a single run from creation to a terminal state, handling
// the requires_action tool-call round trip and the completed-without-action
// recovery path.
type Poller struct {
	api    RunAPI
	cfg    PollerConfig
	logger *zap.Logger
}

// NewPoller creates a poller over the given run API.
func NewPoller(api RunAPI, cfg PollerConfig, logger *zap.Logger) *Poller {
	cfg.applyDefaults()
	return &Poller{api: api, cfg: cfg, logger: logger}
}

// WaitForRun polls the run until it completes or fails.
//
// A requires_action snapshot is acknowledged with a canned output for each
// pending tool call; re-observing the same snapshot resubmits, which the
// remote side treats as idempotent. A run that completes without ever
// asking for an action is restarted on the same thread with a fresh
// elapsed budget, up to MaxRunRestarts times. Terminal failure states
// yield a result whose response text is the status name itself.
func (p *Poller) WaitForRun(ctx context.Context, threadID, runID string) (*RunResult, error) {
	start := time.Now()
	defer func() {
		metrics.RunPollDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		elapsed    time.Duration
		actionSeen bool
		captured   *RequiredAction
		restarts   int
	)

	for {
		if elapsed >= p.cfg.Timeout {
			p.logger.Warn("Run poll timed out",
				zap.String("thread_id", threadID),
				zap.String("run_id", runID),
				zap.Duration("timeout", p.cfg.Timeout),
			)
			return nil, ErrPollTimeout
		}

		status := p.fetchStatus(ctx, threadID, runID)
		metrics.RunPolls.Inc()

		switch {
		case status.Status == StatusRequiresAction && status.RequiredAction != nil:
			actionSeen = true
			captured = status.RequiredAction
			outputs := ackOutputs(status.RequiredAction)
			if err := p.api.SubmitToolOutputs(ctx, threadID, runID, outputs); err != nil {
				return nil, err
			}
			metrics.ToolOutputsSubmitted.Add(float64(len(outputs)))
			p.logger.Info("Required action acknowledged",
				zap.String("run_id", runID),
				zap.Int("tool_calls", len(outputs)),
			)

		case status.Status == StatusCompleted:
			if !actionSeen {
				if restarts >= p.cfg.MaxRunRestarts {
					return nil, ErrRunRestartsExhausted
				}
				if _, err := p.api.CreateMessage(ctx, threadID, retryInstruction); err != nil {
					return nil, err
				}
				newRunID, err := p.api.CreateRun(ctx, threadID)
				if err != nil {
					return nil, err
				}
				p.logger.Info("Run completed without required action, restarting",
					zap.String("thread_id", threadID),
					zap.String("new_run_id", newRunID),
				)
				metrics.RunRestarts.Inc()
				runID = newRunID
				elapsed = 0
				restarts++
				continue
			}
			text, err := p.completedResponse(ctx, threadID)
			if err != nil {
				return nil, err
			}
			p.logger.Info("Run completed",
				zap.String("thread_id", threadID),
				zap.String("run_id", runID),
			)
			return &RunResult{RequiredAction: captured, AssistantResponse: text}, nil

		case isTerminalFailure(status.Status):
			p.logger.Warn("Run ended in terminal state",
				zap.String("run_id", runID),
				zap.String("status", status.Status),
			)
			return &RunResult{RequiredAction: captured, AssistantResponse: status.Status}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.Interval):
		}
		elapsed += p.cfg.Interval
	}
}

// fetchStatus retries a failing status fetch a bounded number of times.
// A transient failure here would otherwise abort an entire multi-minute
// run, so this is the one operation with built-in resilience. After the
// retries an empty snapshot is returned and the poll loop simply waits
// another interval.
func (p *Poller) fetchStatus(ctx context.Context, threadID, runID string) *RunStatus {
	var lastErr error
	for attempt := 0; attempt < p.cfg.StatusRetries; attempt++ {
		status, err := p.api.GetRunStatus(ctx, threadID, runID)
		if err == nil {
			return status
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return &RunStatus{}
		case <-time.After(p.cfg.StatusRetryDelay):
		}
	}
	metrics.RunStatusFetchFailures.Inc()
	p.logger.Warn("Run status fetch failed after retries",
		zap.String("run_id", runID),
		zap.Error(lastErr),
	)
	return &RunStatus{}
}

// completedResponse joins every assistant-authored text block across the
// thread's messages, in the API's returned order.
func (p *Poller) completedResponse(ctx context.Context, threadID string) (string, error) {
	msgs, err := p.api.ListMessages(ctx, threadID)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		for _, block := range m.Content {
			if block.Type == "text" && block.Text.Value != "" {
				parts = append(parts, block.Text.Value)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

func ackOutputs(action *RequiredAction) []ToolOutput {
	calls := action.SubmitToolOutputs.ToolCalls
	outputs := make([]ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, ToolOutput{ToolCallID: call.ID, Output: toolOutputAck})
	}
	return outputs
}

func isTerminalFailure(status string) bool {
	switch status {
	case StatusFailed, StatusCancelled, StatusCancelling, StatusIncomplete, StatusExpired:
		return true
	}
	return false
}
