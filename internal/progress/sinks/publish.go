package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/progress"
)

// ObservationMessage is the payload published for each completed probe.
type ObservationMessage struct {
	RunID     string        `json:"run_id"`
	Plate     plates.Code   `json:"plate"`
	Status    plates.Status `json:"status"`
	Note      string        `json:"note,omitempty"`
	CheckedAt string        `json:"checked_at"`
	Remaining int           `json:"queue_remaining"`
}

// PublishSink forwards probe observations to a topic via a plates.Publisher.
// Lifecycle events are not published.
type PublishSink struct {
	publisher plates.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink constructs a PublishSink. A nil publisher or empty topic
// yields a sink that drops everything.
func NewPublishSink(publisher plates.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes one message per probe event and joins any publish errors.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil || s.topic == "" {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageProbeDone {
			continue
		}
		msg := ObservationMessage{
			RunID:     evt.RunUUID().String(),
			Plate:     evt.Code,
			Status:    evt.Status,
			Note:      evt.Note,
			CheckedAt: evt.TS.Format(time.RFC3339),
			Remaining: evt.Remaining,
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", evt.Code, err))
			continue
		}
		s.logger.Debug("observation published", zap.String("plate", string(evt.Code)), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
