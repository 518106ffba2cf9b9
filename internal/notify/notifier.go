package notify

import (
	"context"
	"time"
)

// Notifier delivers an accepted form submission to the site owners.
// Delivery is best effort: callers log a returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Name() string
}

// Field is one labelled value of a submission, kept in display order.
type Field struct {
	Key   string
	Label string
	Value string
}

// Notification is the sanitized, provider-neutral form of a submission.
type Notification struct {
	ID         string
	Form       string
	Subject    string
	Recipients []string
	ReplyTo    string
	Fields     []Field
	Timestamp  time.Time
}

// Data returns the fields keyed by Key.
func (n Notification) Data() map[string]string {
	out := make(map[string]string, len(n.Fields))
	for _, f := range n.Fields {
		out[f.Key] = f.Value
	}
	return out
}
