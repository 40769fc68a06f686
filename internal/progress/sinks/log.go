package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Probe events log at debug, blocked probes and run
// errors at warn, lifecycle events at info.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("remaining", evt.Remaining),
			zap.Duration("dur", evt.Dur),
		}
		level := zapcore.InfoLevel
		switch evt.Stage {
		case progress.StageProbeDone:
			fields = append(fields,
				zap.String("plate", string(evt.Code)),
				zap.String("status", string(evt.Status)),
				zap.Duration("pause", evt.Pause),
			)
			level = zapcore.DebugLevel
			if evt.Status == plates.StatusBlocked {
				level = zapcore.WarnLevel
			}
		case progress.StageRunError:
			level = zapcore.WarnLevel
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if ce := s.logger.Check(level, "progress event"); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
