package assistant

import (
	"context"

	"go.uber.org/zap"
)

// Evaluator bundles a client with its poller, giving callers the full
// thread, message, run and wait flow for one assistant binding.
type Evaluator struct {
	*Client
	poller *Poller
}

// NewEvaluator wraps a client with a poller configured for its runs.
func NewEvaluator(c *Client, cfg PollerConfig, logger *zap.Logger) *Evaluator {
	return &Evaluator{Client: c, poller: NewPoller(c, cfg, logger)}
}

// WaitForRun drives the run to a terminal state.
func (e *Evaluator) WaitForRun(ctx context.Context, threadID, runID string) (*RunResult, error) {
	return e.poller.WaitForRun(ctx, threadID, runID)
}
