package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockwatch/internal/model"
	"stockwatch/internal/notify/channel"
	"stockwatch/internal/pubsub"
	"stockwatch/internal/store"
)

// digestLimit caps how many items one admin digest message lists; items
// past the cap are left out of the digest and its count (§4.8, "digest message ...
// listing up to N items").
const digestLimit = 25

// ChannelDispatcher implements Batcher's Dispatcher interface: it resolves
// recipients for a batch of transitions, consults the Ledger, renders
// templates, and fans out through the configured Sinks. Adapted from the
// teacher's alert.Dispatcher, generalised from rule-matched alerts to
// item-transition PendingEvents.
type ChannelDispatcher struct {
	store  *store.Store
	ledger *Ledger
	sinks  map[channel.SinkType]channel.Sink
	events pubsub.PubSub
	log    *zap.Logger
}

// NewChannelDispatcher wires a dispatcher to its sinks and the process-wide
// eventing bus. events may be nil in tests that don't care about published
// NotificationEvents.
func NewChannelDispatcher(s *store.Store, ledger *Ledger, sinks []channel.Sink, events pubsub.PubSub, log *zap.Logger) *ChannelDispatcher {
	byType := make(map[channel.SinkType]channel.Sink, len(sinks))
	for _, sink := range sinks {
		byType[sink.Type()] = sink
	}
	return &ChannelDispatcher{store: s, ledger: ledger, sinks: byType, events: events, log: log}
}

// SendBatch groups events by kind, resolves recipients for each item, and
// delivers a digest to admins plus individual messages to subscribed
// owners, each gated through the ledger (§4.8, §8 scenarios 1, 5, 6).
func (d *ChannelDispatcher) SendBatch(ctx context.Context, events []model.PendingEvent) error {
	if len(events) == 0 {
		return nil
	}

	byKind := make(map[model.NotificationKind][]model.PendingEvent)
	for _, e := range events {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	admins, err := d.store.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("notify: list admins: %w", err)
	}

	for kind, kindEvents := range byKind {
		views, err := d.resolveViews(ctx, kindEvents)
		if err != nil {
			d.log.Error("notify: resolve views failed", zap.Error(err))
			continue
		}
		if len(views) == 0 {
			continue
		}

		d.sendAdminDigest(ctx, kind, views, admins)
		d.sendOwnerMessages(ctx, kind, views)
	}
	return nil
}

func (d *ChannelDispatcher) resolveViews(ctx context.Context, events []model.PendingEvent) ([]EventView, error) {
	views := make([]EventView, 0, len(events))
	for _, e := range events {
		item, err := d.store.GetItem(ctx, e.ItemID)
		if err != nil {
			d.log.Warn("notify: item vanished before delivery", zap.String("item_id", e.ItemID.String()), zap.Error(err))
			continue
		}
		views = append(views, EventView{Item: item, Event: e})
	}
	return views, nil
}

func (d *ChannelDispatcher) sendAdminDigest(ctx context.Context, kind model.NotificationKind, views []EventView, admins []model.User) {
	if len(admins) == 0 {
		return
	}

	truncated := views
	if len(truncated) > digestLimit {
		truncated = truncated[:digestLimit]
	}

	var subject, body, htmlBody string
	switch kind {
	case model.KindRestock:
		subject, body, htmlBody = RestockTemplate(truncated)
	case model.KindOutage:
		subject, body, htmlBody = OutageTemplate(truncated)
	default:
		subject, body, htmlBody = AdminSummaryTemplate(truncated, views[0].Event.DetectedAt)
	}

	// The digest concerns multiple items; the ledger is keyed per (item,
	// recipient), so gate and record against each item it reports on.
	for _, admin := range admins {
		for _, v := range truncated {
			d.deliverGated(ctx, v.Event, admin, channel.Message{
				Subject:    subject,
				Body:       body,
				HTMLBody:   htmlBody,
				Recipients: []string{admin.UserID},
				Kind:       string(kind),
			})
		}
	}
}

func (d *ChannelDispatcher) sendOwnerMessages(ctx context.Context, kind model.NotificationKind, views []EventView) {
	for _, v := range views {
		if v.Item.OwnerID == "" || v.Item.OwnerID == model.SystemOwner {
			continue
		}
		owner, err := d.store.GetUser(ctx, v.Item.OwnerID)
		if err != nil {
			continue
		}
		if owner.IsBanned {
			continue
		}

		var subject, body, htmlBody string
		switch kind {
		case model.KindRestock:
			subject, body, htmlBody = RestockTemplate([]EventView{v})
		case model.KindOutage:
			subject, body, htmlBody = OutageTemplate([]EventView{v})
		default:
			continue
		}

		d.deliverGated(ctx, v.Event, owner, channel.Message{
			Subject:    subject,
			Body:       body,
			HTMLBody:   htmlBody,
			Recipients: []string{owner.UserID},
			Kind:       string(kind),
		})
	}
}

// deliverGated consults the ledger before sending and records each delivery
// and each stale drop, implementing the at-most-once-per-cooldown contract
// (§3, §4.8). A quiet-hours deferral means the event is not sent to this
// recipient on this flush; it is not re-queued, so no later flush sends it.
func (d *ChannelDispatcher) deliverGated(ctx context.Context, event model.PendingEvent, recipient model.User, msg channel.Message) {
	decision, err := d.ledger.Evaluate(ctx, event, recipient)
	if err != nil {
		d.log.Error("notify: ledger evaluation failed", zap.String("recipient", recipient.UserID), zap.Error(err))
		return
	}

	switch decision {
	case DecisionSkipCooldown, DecisionSkipDailyLimit, DecisionSkipDisabled:
		return
	case DecisionDeferQuietHours:
		d.log.Debug("notify: deferred for quiet hours", zap.String("recipient", recipient.UserID), zap.String("item_id", event.ItemID.String()))
		return
	case DecisionDropStale:
		if err := d.ledger.Record(ctx, event.ItemID, recipient.UserID, model.KindSkippedStale); err != nil {
			d.log.Error("notify: record stale drop failed", zap.Error(err))
		}
		return
	}

	sink, ok := d.sinks[channel.SinkTypeEmail]
	if !ok {
		d.log.Warn("notify: no email sink configured, dropping delivery")
		return
	}
	if err := sink.Send(ctx, msg); err != nil {
		d.log.Error("notify: delivery failed", zap.String("recipient", recipient.UserID), zap.Error(err))
		return
	}

	if ws, ok := d.sinks[channel.SinkTypeWebSocket]; ok {
		_ = ws.Send(ctx, msg)
	}

	if err := d.ledger.Record(ctx, event.ItemID, recipient.UserID, event.Kind); err != nil {
		d.log.Error("notify: record delivery failed", zap.Error(err))
	}
	d.publishNotification(ctx, event.ItemID.String(), recipient.UserID, event.Kind)
}

// publishNotification announces a completed delivery on the recipient's
// notification topic, for a dashboard or bot front-end subscribed to it.
// Best-effort: a publish failure never fails the delivery itself.
func (d *ChannelDispatcher) publishNotification(ctx context.Context, itemID, recipientID string, kind model.NotificationKind) {
	if d.events == nil {
		return
	}
	evt := pubsub.NotificationEvent{
		ItemID:      itemID,
		RecipientID: recipientID,
		Kind:        string(kind),
		Timestamp:   time.Now().UTC(),
	}
	if err := pubsub.PublishNotificationEvent(ctx, d.events, evt); err != nil {
		d.log.Warn("notify: publish notification event failed", zap.Error(err))
	}
}

// SendAdminHealth delivers an admin_health alert immediately, bypassing the
// batcher: a crossed error-threshold needs an operator's attention now, not
// at the next aggregation tick (§4.7, §4.8).
func (d *ChannelDispatcher) SendAdminHealth(ctx context.Context, item model.Item, consecutiveErrors int) error {
	admins, err := d.store.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("notify: list admins: %w", err)
	}
	subject, body, htmlBody := AdminHealthTemplate(item, consecutiveErrors)

	sink, ok := d.sinks[channel.SinkTypeEmail]
	if !ok {
		return nil
	}
	for _, admin := range admins {
		msg := channel.Message{
			Subject:    subject,
			Body:       body,
			HTMLBody:   htmlBody,
			Recipients: []string{admin.UserID},
			Kind:       string(model.KindAdminHealth),
		}
		if err := sink.Send(ctx, msg); err != nil {
			d.log.Error("notify: admin health delivery failed", zap.String("recipient", admin.UserID), zap.Error(err))
			continue
		}
		if err := d.ledger.Record(ctx, item.ItemID, admin.UserID, model.KindAdminHealth); err != nil {
			d.log.Error("notify: record admin health failed", zap.Error(err))
		}
		d.publishNotification(ctx, item.ItemID.String(), admin.UserID, model.KindAdminHealth)
	}
	return nil
}
