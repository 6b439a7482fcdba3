package core

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// FlowEvent is a best-effort record of one session state transition,
// intended for external sinks (logs, metrics).
//
// Phone is masked. Reason is the error code that caused the transition, if any.
type FlowEvent struct {
	OccurredAt time.Time
	FlowID     string
	Phone      string
	From       SessionState
	To         SessionState
	Reason     string
	Attempt    int
	IPAddr     *string
	UserAgent  *string
}

// FlowEventLogger records flow transitions. Implementations should be
// non-blocking and best-effort; errors are logged and otherwise ignored.
type FlowEventLogger interface {
	LogFlowEvent(ctx context.Context, e FlowEvent) error
}

// MultiFlowEventLogger fans out to every logger and joins their errors.
type MultiFlowEventLogger []FlowEventLogger

func (m MultiFlowEventLogger) LogFlowEvent(ctx context.Context, e FlowEvent) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.LogFlowEvent(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogrusFlowEventLogger writes transitions as structured log lines.
type LogrusFlowEventLogger struct {
	Logger logrus.FieldLogger
}

func (l LogrusFlowEventLogger) LogFlowEvent(_ context.Context, e FlowEvent) error {
	log := l.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithFields(logrus.Fields{
		"flow_id": e.FlowID,
		"phone":   e.Phone,
		"from":    e.From.String(),
		"to":      e.To.String(),
		"attempt": e.Attempt,
	})
	if e.IPAddr != nil {
		entry = entry.WithField("ip", *e.IPAddr)
	}
	if e.Reason != "" {
		entry.WithField("reason", e.Reason).Warn("verification flow transition")
		return nil
	}
	entry.Debug("verification flow transition")
	return nil
}
