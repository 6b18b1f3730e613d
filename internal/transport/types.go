// Package transport defines the chat-transport boundary: the updates the
// bot consumes, the sends it performs, and the closed set of delivery
// outcomes the rest of the system branches on.
package transport

import "context"

// ChatTarget identifies one recipient chat.
type ChatTarget struct {
	ChatID int64
}

// Message is one inbound text message.
type Message struct {
	ChatID  int64
	Text    string
	Private bool
}

// Update is one inbound event from the transport.
type Update struct {
	Message *Message
}

// Outcome classifies the result of one delivery attempt.
//
// PermanentFailure means the recipient will never be reachable again on this
// channel unless they resubscribe (blocked, kicked, deactivated, 403).
// TransientFailure covers everything else (timeouts, rate limits, unknown
// transport errors) and is worth retrying on a later run.
type Outcome int

const (
	Sent Outcome = iota
	PermanentFailure
	TransientFailure
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case PermanentFailure:
		return "permanent_failure"
	case TransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Adapter is the transport as seen by the bot core.
//
// Classify turns a SendText/SendImage error into a delivery Outcome; it is
// the single place that understands transport-specific error shapes.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string) error
	SendImage(ctx context.Context, to ChatTarget, imagePath string) error
	Classify(err error) Outcome
}
