package model

import "time"

// NotificationTypeMessage is the type used for notifications raised when
// a direct message is delivered.
const NotificationTypeMessage = "message"

// Notification represents an alert surfaced to a single user.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// UserID is the recipient of the notification.
	UserID string `json:"userId"`

	// Type classifies the notification (e.g., "message", "mention").
	Type string `json:"type"`

	// Title is the short headline shown in lists.
	Title string `json:"title"`

	// Message is the human-readable notification body.
	Message string `json:"message"`

	// Data holds an arbitrary structured payload attached by the producer.
	Data map[string]any `json:"data,omitempty"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was generated, as an RFC 3339
	// timestamp string.
	CreatedAt string `json:"createdAt"`
}

// Timestamp formats t the way every timestamp string in this module is
// written.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
