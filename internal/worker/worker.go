package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/escalation"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/service"
)

// Background bundles the long-running collaborators started next to the API.
type Background struct {
	Notifications *service.NotificationService
	Escalations   *escalation.Scheduler
	Logger        *zap.Logger
}

// Start registers notification handlers and launches the escalation
// scheduler. The returned function stops the scheduler and waits for it.
func Start(ctx context.Context, bg Background) func() {
	if bg.Notifications != nil {
		bg.Notifications.RegisterHandlers()
	}
	if bg.Escalations == nil {
		return func() {}
	}
	bg.Escalations.Start(ctx)
	return func() {
		bg.Escalations.Stop()
		if bg.Logger != nil {
			bg.Logger.Info("background workers stopped")
		}
	}
}
