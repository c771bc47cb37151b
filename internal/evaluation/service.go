package evaluation

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Service fans a solicitud out to the three track assistants.
type Service struct {
	orch       *Orchestrator
	assistants map[Track]Assistant
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewService validates that every track has an assistant and returns the
// dispatch service.
func NewService(orch *Orchestrator, assistants map[Track]Assistant, dispatcher *Dispatcher, logger *zap.Logger) (*Service, error) {
	for _, track := range Tracks() {
		if assistants[track] == nil {
			return nil, fmt.Errorf("missing assistant for track %s", track)
		}
	}
	return &Service{
		orch:       orch,
		assistants: assistants,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// DispatchAll launches the three evaluations in the background and
// returns their handles immediately.
func (s *Service) DispatchAll(solicitudID string) []*Job {
	jobs := make([]*Job, 0, len(s.assistants))
	for _, track := range Tracks() {
		track := track
		client := s.assistants[track]
		name := fmt.Sprintf("%s/%s", solicitudID, track)
		jobs = append(jobs, s.dispatcher.Dispatch(name, func(ctx context.Context) error {
			return s.orch.Evaluate(ctx, track, client, solicitudID)
		}))
	}
	s.logger.Info("Evaluations dispatched", zap.String("solicitud_id", solicitudID))
	return jobs
}
