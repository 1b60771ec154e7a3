// Package billing contains notifier implementations for completed processes.
// The billing business logic itself lives outside this system; the default
// notifier only records that the hand-off happened.
package billing

import (
	"context"
	"log/slog"

	"sensorgrid/internal/domain"
)

// LogNotifier implements domain.BillingNotifier by logging each reference.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

var _ domain.BillingNotifier = (*LogNotifier)(nil)

// Notify records the completed process reference.
func (n *LogNotifier) Notify(_ context.Context, ref domain.ResultRef) error {
	n.logger.Info("process completed",
		"process", ref.Process,
		"principal", ref.PrincipalID,
		"sensor", ref.SensorID,
		"at", ref.At,
	)
	return nil
}
