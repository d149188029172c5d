package main

import (
	"context"

	userkit "github.com/goliatone/go-userkit"
	"github.com/goliatone/go-userkit/activitymap"
	"go.uber.org/zap"
)

// zapLogger adapts a zap sugared logger to userkit.Logger
type zapLogger struct {
	sugar *zap.SugaredLogger
}

var _ userkit.Logger = zapLogger{}

func newLogger(debug bool) (zapLogger, func(), error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zapLogger{}, func() {}, err
	}
	return zapLogger{sugar: logger.Sugar()}, func() { _ = logger.Sync() }, nil
}

func (l zapLogger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l zapLogger) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l zapLogger) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l zapLogger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }

// auditSink writes normalized lifecycle events as structured log entries
func auditSink(l zapLogger) userkit.ActivitySink {
	base := l.sugar.Desugar().Named("audit")
	return userkit.ActivitySinkFunc(func(_ context.Context, event userkit.ActivityEvent) error {
		record := activitymap.Normalize(event)
		base.Info(record.Verb,
			zap.String("actor_id", record.ActorID),
			zap.String("object_id", record.ObjectID),
			zap.String("channel", record.Channel),
			zap.Any("metadata", record.Metadata),
			zap.Time("occurred_at", record.OccurredAt),
		)
		return nil
	})
}
