package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/drivefs/drivefs/internal/adapter"
	"github.com/drivefs/drivefs/pkg/health"
)

// remoteComponent names the listing source in health reports.
const remoteComponent = "remote"

func newRemoteHealth(backend string, logger *zap.Logger) *health.Tracker {
	tracker := health.NewTracker(health.DefaultConfig())
	tracker.RegisterComponent(remoteComponent)
	tracker.SetMetadata(remoteComponent, "backend", backend)
	tracker.OnStateChange(func(component string, oldState, newState health.State, err error) {
		fields := []zap.Field{
			zap.String("component", component),
			zap.Stringer("from", oldState),
			zap.Stringer("to", newState),
		}
		if err != nil {
			logger.Warn("health changed", append(fields, zap.Error(err))...)
			return
		}
		logger.Info("health changed", fields...)
	})
	return tracker
}

// syncHealth forwards measurements and feeds sync outcomes to the tracker.
type syncHealth struct {
	adapter.MetricsRecorder
	tracker *health.Tracker
}

func (s syncHealth) RecordSync(entries int, duration time.Duration, err error) {
	s.MetricsRecorder.RecordSync(entries, duration, err)
	if err != nil {
		s.tracker.RecordError(remoteComponent, err)
		return
	}
	s.tracker.RecordSuccess(remoteComponent)
}
