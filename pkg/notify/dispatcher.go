package notify

import (
	"context"
	"fmt"
	"strings"

	"tripchat-be/internal/pkg/logger"
	"tripchat-be/pkg/events"
	pktNats "tripchat-be/pkg/nats"
)

// Intent is a push notification ready for an external provider (APNs/FCM).
type Intent struct {
	UserID string
	Title  string
	Body   string
}

// Sender delivers intents to a provider. The default logSender records them;
// a real provider client drops in behind the same interface.
type Sender interface {
	Send(ctx context.Context, intent Intent) error
}

// Dispatcher turns durable chat events into push notification intents for
// users that are offline when a message lands. It consumes the JetStream
// event log so restarts never lose a notification.
type Dispatcher struct {
	subscriber *pktNats.Subscriber
	sender     Sender
	logger     logger.ILogger
}

func NewDispatcher(sub *pktNats.Subscriber, log logger.ILogger) *Dispatcher {
	return &Dispatcher{
		subscriber: sub,
		sender:     &logSender{logger: log},
		logger:     log,
	}
}

// WithSender swaps the delivery backend.
func (d *Dispatcher) WithSender(s Sender) *Dispatcher {
	d.sender = s
	return d
}

// Start begins consuming the event log with a durable consumer.
func (d *Dispatcher) Start() {
	err := d.subscriber.Subscribe("events.>", "chat-notify-worker", d.handleEvent)
	if err != nil {
		d.logger.Error("NotifyDispatcher", "Failed to start event subscriber", map[string]interface{}{"error": err.Error()})
		return
	}
	d.logger.Info("NotifyDispatcher", "Dispatcher started, listening to events.>", nil)
}

func (d *Dispatcher) handleEvent(ctx context.Context, event events.Event) error {
	// NATS subject includes the stream prefix
	typeCode := strings.TrimPrefix(event.EventType(), "events.")

	if typeCode != events.TypeChatMessageAppended {
		return nil
	}

	payload := event.Payload()
	recipient, _ := payload["user_id"].(string)
	body, _ := payload["body"].(string)
	if recipient == "" {
		d.logger.Warn("NotifyDispatcher", "Message event without recipient", map[string]interface{}{"type": typeCode})
		return nil
	}

	intent := Intent{
		UserID: recipient,
		Title:  "New message",
		Body:   truncate(body, 120),
	}
	// Returning the error makes JetStream redeliver.
	return d.sender.Send(ctx, intent)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

type logSender struct {
	logger logger.ILogger
}

func (l *logSender) Send(ctx context.Context, intent Intent) error {
	l.logger.Info("NotifyDispatcher", fmt.Sprintf("Dispatching push to %s", intent.UserID), map[string]interface{}{
		"title": intent.Title, "body": intent.Body,
	})
	return nil
}
