// Package service declares the collaborators the sync stores consume: the
// notification and conversation services, the push subscription handle and
// the user directory.
//
// Read methods return untrusted payloads (decoded JSON, rows, typed
// slices). Callers must run them through internal/normalize before use.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/inbox-sync/internal/model"
)

// ErrRejected is returned when a remote write reports failure without an
// accompanying transport error (a false result).
var ErrRejected = errors.New("rejected by remote service")

// RejectedError describes which write was refused.
type RejectedError struct {
	Op string
	ID string
}

func (e *RejectedError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Op, ErrRejected)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.ID, ErrRejected)
}

// Is lets errors.Is match ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// BatchHandler receives each push delivery. The payload is the full,
// untrusted list of notifications for the subscribed user.
type BatchHandler func(payload any)

// Subscription is the cancel handle of an active push subscription.
type Subscription interface {
	// Cancel stops delivery. After Cancel returns no further batches are
	// delivered by this subscription.
	Cancel() error
}

// NotificationService is the remote source of notifications.
type NotificationService interface {
	// GetAll returns every notification for userID.
	GetAll(ctx context.Context, userID string) (any, error)

	// MarkAsRead flags a single notification as read.
	MarkAsRead(ctx context.Context, id string) error

	// Delete removes a single notification.
	Delete(ctx context.Context, id string) error

	// ClearAll removes every notification for userID.
	ClearAll(ctx context.Context, userID string) error

	// Create stores a new notification.
	Create(ctx context.Context, n model.Notification) error

	// Subscribe opens a push channel delivering the full notification list
	// for userID whenever it changes.
	Subscribe(ctx context.Context, userID string, onBatch BatchHandler) (Subscription, error)
}

// ConversationService is the remote source of conversations and messages.
type ConversationService interface {
	// GetUserConversations returns conversation summaries for userID.
	// Summaries may omit messages.
	GetUserConversations(ctx context.Context, userID string) (any, error)

	// GetMessages returns the message history of a conversation.
	GetMessages(ctx context.Context, conversationID string) (any, error)

	Create(ctx context.Context, c model.Conversation) (bool, error)
	Update(ctx context.Context, id string, c model.Conversation) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)

	// Send delivers a message, creating the pair's conversation remotely if
	// it does not exist yet.
	Send(ctx context.Context, m model.Message) (bool, error)
}

// UserDirectory lists known users.
type UserDirectory interface {
	GetAll(ctx context.Context) ([]model.User, error)
}

// SubscriptionFunc adapts a plain function to the Subscription interface.
type SubscriptionFunc func() error

// Cancel calls f.
func (f SubscriptionFunc) Cancel() error {
	return f()
}
