// Package channel holds the delivery Sink interface and its concrete
// implementations (email, websocket push), adapted from the teacher's
// alert/channel package (§4.8).
package channel

import "context"

// SinkType identifies a delivery mechanism.
type SinkType string

const (
	SinkTypeEmail     SinkType = "email"
	SinkTypeWebSocket SinkType = "websocket"
)

// Message is a notification ready for delivery, built by the dispatcher
// from a templated restock/outage/admin_summary/admin_health event.
type Message struct {
	Subject    string
	Body       string
	HTMLBody   string
	Recipients []string
	Kind       string
	Metadata   map[string]interface{}
}

// Sink delivers a Message through one channel. Test sends a throwaway
// message so an operator can confirm a recipient's channel is wired up
// correctly before relying on it.
type Sink interface {
	Type() SinkType
	Send(ctx context.Context, msg Message) error
	Test(ctx context.Context, recipient string) error
}
