package pubsub

import "fmt"

// Topic constants and helper functions for subscription topics.
// Topics follow a hierarchical naming convention: {resource}:{id}

const (
	// Topic prefixes for entity-specific subscriptions
	prefixItem         = "item"
	prefixTransition   = "transition"
	prefixNotification = "notification"

	// Topic prefix for owner-level subscriptions (list views)
	prefixOrgItems = "org:items"
)

// ItemTopic returns the topic for check-completed events on one item.
// Subscribers receive ItemEvent messages.
func ItemTopic(itemID string) string {
	return fmt.Sprintf("%s:%s", prefixItem, itemID)
}

// TransitionTopic returns the topic for status transitions on one item.
// Subscribers receive TransitionEvent messages.
func TransitionTopic(itemID string) string {
	return fmt.Sprintf("%s:%s", prefixTransition, itemID)
}

// NotificationTopic returns the topic for deliveries addressed to one
// recipient. Subscribers receive NotificationEvent messages.
func NotificationTopic(ownerID string) string {
	return fmt.Sprintf("%s:%s", prefixNotification, ownerID)
}

// OrgItemsTopic returns the topic for every item change visible to ownerID,
// for list views that want updates without subscribing per item.
func OrgItemsTopic(ownerID string) string {
	return fmt.Sprintf("%s:%s", prefixOrgItems, ownerID)
}
