package sync

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type options struct {
	logger   *slog.Logger
	onChange func()
	now      func() time.Time
	newID    func() string
}

// Option configures a NotificationStore or ConversationStore.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnChange registers a callback invoked after every state change. It
// runs outside the store lock on whichever goroutine made the change, so
// it must not block.
func WithOnChange(fn func()) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// WithClock overrides the time source used for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides the generator for client-side ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) changed() {
	if o.onChange != nil {
		o.onChange()
	}
}
