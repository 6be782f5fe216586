package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"parking-reservation-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore is the part of the store the pool reads subscriptions from.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context, username string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// WorkerPool delivers notifications as web push messages to every
// subscription registered for the recipient.
type WorkerPool struct {
	size    int
	jobs    chan Message
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool with a queue of queueSize messages.
func NewWorkerPool(size, queueSize int, store SubscriptionStore, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Message, queueSize),
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case msg := <-wp.jobs:
			wp.deliver(ctx, msg)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Enqueue queues a message for delivery. A full queue drops the message.
func (wp *WorkerPool) Enqueue(_ context.Context, kind Kind, recipient string, payload map[string]string) {
	msg := Message{Kind: kind, Recipient: recipient, Payload: payload}
	select {
	case wp.jobs <- msg:
	default:
		log.Printf("Notification queue full, dropping %s for %s", kind, recipient)
	}
}

// pushBody is the JSON document the service worker on the client renders.
type pushBody struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Render builds the push payload for msg.
func Render(msg Message) ([]byte, error) {
	p := msg.Payload
	where := fmt.Sprintf("spot %s on %s (%s)", p[FieldSpotID], p[FieldDate], p[FieldTimeSlot])

	var b pushBody
	switch msg.Kind {
	case KindConfirmation:
		b.Title = "Reservation confirmed"
		b.Body = "Your reservation for " + where + " is confirmed."
	case KindCancellation:
		b.Title = "Reservation cancelled"
		b.Body = "Your reservation for " + where + " was cancelled."
		if reason := p[FieldReason]; reason != "" {
			b.Body += " Reason: " + reason
		}
	case KindReminder:
		b.Title = "Parking reminder"
		b.Body = "Remember to check in at " + where + "."
	case KindModification:
		b.Title = "Reservation updated"
		b.Body = "Your reservation now covers " + where + "."
	default:
		return nil, fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	b.Data = p
	return json.Marshal(b)
}

func (wp *WorkerPool) deliver(ctx context.Context, msg Message) {
	subscriptions, err := wp.store.ListSubscriptions(ctx, msg.Recipient)
	if err != nil {
		log.Printf("Error fetching subscriptions for %s: %v", msg.Recipient, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := Render(msg)
	if err != nil {
		log.Printf("Error rendering %s notification: %v", msg.Kind, err)
		return
	}

	log.Printf("Sending %d %s notifications to %s", len(subscriptions), msg.Kind, msg.Recipient)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
