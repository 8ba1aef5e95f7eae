package pubsub

import (
	"context"
	"time"
)

// EventType identifies the type of event for type switches.
type EventType string

const (
	EventTypeCheckCompleted EventType = "check_completed"
	EventTypeTransition     EventType = "transition"
	EventTypeNotification   EventType = "notification"
)

// ItemEvent represents one completed check (a fused detector verdict).
type ItemEvent struct {
	Type       EventType `json:"type"`
	ItemID     string    `json:"item_id"`
	Verdict    string    `json:"verdict"` // model.Status value
	Confidence float64   `json:"confidence"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TransitionEvent represents a committed status transition.
type TransitionEvent struct {
	Type       EventType `json:"type"`
	ItemID     string    `json:"item_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotificationEvent represents one delivered notification.
type NotificationEvent struct {
	Type        EventType `json:"type"`
	ItemID      string    `json:"item_id"`
	RecipientID string    `json:"recipient_id"`
	Kind        string    `json:"kind"` // model.NotificationKind value
	Timestamp   time.Time `json:"timestamp"`
}

// PublishItemEvent announces one completed check on the item's topic. The
// caller need not know the topic naming convention; it lives here, next to
// the event type it publishes.
func PublishItemEvent(ctx context.Context, ps PubSub, evt ItemEvent) error {
	evt.Type = EventTypeCheckCompleted
	return ps.Publish(ctx, ItemTopic(evt.ItemID), evt)
}

// PublishTransitionEvent announces a committed status transition on the
// item's own transition topic and, when ownerID is set, on that owner's
// org-wide topic too, so a list view can update without a per-item
// subscription.
func PublishTransitionEvent(ctx context.Context, ps PubSub, evt TransitionEvent, ownerID string) error {
	evt.Type = EventTypeTransition
	if err := ps.Publish(ctx, TransitionTopic(evt.ItemID), evt); err != nil {
		return err
	}
	if ownerID == "" {
		return nil
	}
	return ps.Publish(ctx, OrgItemsTopic(ownerID), evt)
}

// PublishNotificationEvent announces one completed delivery on its
// recipient's notification topic.
func PublishNotificationEvent(ctx context.Context, ps PubSub, evt NotificationEvent) error {
	evt.Type = EventTypeNotification
	return ps.Publish(ctx, NotificationTopic(evt.RecipientID), evt)
}
