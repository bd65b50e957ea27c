package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-gateway/internal/events"
	"github.com/spec-kit/incident-gateway/internal/persistence"
)

// NotificationService fans workflow events out to the Redis event
// channel so dashboards and operators can follow the approval trail
// without polling the store. Publish failures are logged and dropped;
// the event stream is advisory, not the system of record.
type NotificationService struct {
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	channel    string
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, redis *persistence.Redis, channel string, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		redis:      redis,
		channel:    channel,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to the workflow lifecycle events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSubmissionReceived, n.handleEvent)
	n.dispatcher.Subscribe(events.EventSubmissionApproved, n.handleEvent)
	n.dispatcher.Subscribe(events.EventSubmissionRejected, n.handleEvent)
	n.dispatcher.Subscribe(events.EventIncidentCreated, n.handleEvent)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info("workflow event",
		zap.String("type", string(event.Type)),
		zap.String("submission_id", event.SubmissionID),
		zap.String("actor_id", event.Actor.ID),
		zap.String("actor_role", string(event.Actor.Role)))

	if n.redis == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.redis.Publish(ctx, n.channel, payload); err != nil {
		n.logger.Warn("event publish failed",
			zap.String("channel", n.channel),
			zap.Error(err))
	}
	return nil
}
