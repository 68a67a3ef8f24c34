package stats

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

// Notifier hands a detected event to the delivery layer
type Notifier interface {
	Notify(ctx context.Context, kind string, creator models.Creator, event models.DetectedEvent) error
}

// LogNotifier writes events to the log. Used when no delivery layer is configured.
type LogNotifier struct {
	log *logrus.Logger
}

// NewLogNotifier creates a notifier backed by the given logger
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the event at info level
func (n *LogNotifier) Notify(_ context.Context, kind string, creator models.Creator, event models.DetectedEvent) error {
	n.log.WithFields(logrus.Fields{
		"creator_id":   creator.ID,
		"creator_name": creator.Name,
		"kind":         kind,
		"type":         event.Type,
		"details":      event.Details,
	}).Info(event.Message)
	return nil
}
