package notification

import (
	"context"
)

// Kind identifies the template a notification is rendered with.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindCancellation Kind = "cancellation"
	KindReminder     Kind = "reminder"
	KindModification Kind = "modification"
)

// Payload keys shared by every producer.
const (
	FieldReservationID = "reservationId"
	FieldSpotID        = "spotId"
	FieldDate          = "date"
	FieldTimeSlot      = "timeSlot"
	FieldReason        = "reason"
	FieldCount         = "count"
)

// Message is one queued notification.
type Message struct {
	Kind      Kind
	Recipient string
	Payload   map[string]string
}

// Producer hands notifications to a delivery channel. Enqueue never blocks
// on delivery and never reports failure to the caller; implementations log
// what they could not deliver.
type Producer interface {
	Enqueue(ctx context.Context, kind Kind, recipient string, payload map[string]string)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Enqueue(context.Context, Kind, string, map[string]string) {}

// Fanout forwards each notification to every producer in order.
type Fanout []Producer

func (f Fanout) Enqueue(ctx context.Context, kind Kind, recipient string, payload map[string]string) {
	for _, p := range f {
		p.Enqueue(ctx, kind, recipient, payload)
	}
}
