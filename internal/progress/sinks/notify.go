package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-debouncer/internal/archive"
	"github.com/JakeFAU/archive-debouncer/internal/progress"
)

// NotifySink publishes an archive.Outcome for every terminal lifecycle event.
type NotifySink struct {
	publisher archive.Publisher
	topic     string
	logger    *zap.Logger
}

// NewNotifySink wires a publisher to the sink interface.
func NewNotifySink(publisher archive.Publisher, topic string, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes outcomes for STALE, ARCHIVED and FAILED events. Every
// event is attempted; the joined publish errors are returned.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if !evt.Stage.Terminal() {
			continue
		}
		outcome := archive.Outcome{
			SubmissionID: evt.SubmissionID,
			Target:       evt.Target,
			Status:       outcomeStatus(evt.Stage),
			AcceptedAt:   evt.AcceptedAt,
			FinishedAt:   evt.TS,
		}
		id, err := s.publisher.Publish(ctx, s.topic, outcome)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish outcome for %s: %w", evt.SubmissionID, err))
			continue
		}
		s.logger.Debug("outcome published",
			zap.String("message_id", id),
			zap.String("submission_id", evt.SubmissionID),
			zap.String("status", string(outcome.Status)),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}

func outcomeStatus(stage progress.Stage) archive.OutcomeStatus {
	switch stage {
	case progress.StageArchived:
		return archive.OutcomeArchived
	case progress.StageFailed:
		return archive.OutcomeFailed
	default:
		return archive.OutcomeStale
	}
}
