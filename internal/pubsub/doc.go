// Package pubsub provides a publish-subscribe interface for internal
// eventing between the scheduler, transition evaluator and notification
// manager, and anything external that wants to observe them (a bot
// front-end's websocket push, an admin dashboard).
//
// # Overview
//
// A single PubSub interface is implemented twice: an in-memory transport
// for single-instance deployments, and a Redis-backed transport (via
// redis/go-redis/v9) for the case where more than one process shares a
// store. Callers never branch on which transport is active.
//
// # Architecture
//
// ```
// ┌─────────────┐     ┌─────────────┐     ┌─────────────┐
// │  Scheduler  │     │   Memory/   │     │  Websocket  │
// │  (Publish)  │────▶│   Redis     │────▶│   Hub /     │
// └─────────────┘     │   Pub/Sub   │     │  Dashboard  │
//
//	│                    │                   │
//	│                    │                   │
//
// ┌─────────────┐     ┌─────────────┐     ┌─────────────┐
// │ Poller      │     │  Topic:     │     │ Subscription│
// │ Evaluator   │     │ item:{id}   │     │  Resolver   │
// │ Notifier    │     │ transition: │     │             │
// └─────────────┘     │ notif:{id}  │     └─────────────┘
//
//	└─────────────┘
//
// ```
//
// # Usage
//
// Initialize the pub/sub client:
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	ps := pubsub.NewRedisPubSub(redisClient)
//
// Publish an event through one of the typed helpers in events.go, which
// know each event's topic so callers don't have to:
//
//	err := pubsub.PublishItemEvent(ctx, ps, pubsub.ItemEvent{
//		ItemID:  itemID,
//		Verdict: "available",
//	})
//
// Subscribe to events:
//
//	ch, unsub := ps.Subscribe(ctx, pubsub.TransitionTopic(itemID))
//	defer unsub()
//	for msg := range ch {
//		var event pubsub.TransitionEvent
//		json.Unmarshal(msg, &event)
//		// Handle event
//	}
//
// # Topics
//
// Topics follow a hierarchical naming convention:
//   - item:{id} - a completed check on one item
//   - transition:{id} - a committed status transition on one item
//   - notification:{recipientID} - a delivery addressed to one recipient
//   - org:items:{ownerID} - every item change visible to one owner
//
// # Event Types
//
// Each topic has corresponding event types defined in events.go:
//   - ItemEvent - one completed check's fused verdict
//   - TransitionEvent - a committed status transition
//   - NotificationEvent - a delivered notification
package pubsub
