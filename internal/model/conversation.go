package model

import (
	"time"

	"github.com/spf13/cast"
)

// Message is a single direct message embedded in a Conversation.
type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Read       bool   `json:"read"`
}

// Conversation is a one-to-one message thread between two users.
//
// The ID is always derived from the participant pair, so there is at most
// one conversation per unordered pair of users.
type Conversation struct {
	// ID is the deterministic pair identifier (see internal/identity).
	ID string `json:"id"`

	// Participants holds the two user ids taking part in the thread.
	Participants []string `json:"participants"`

	// Messages is the thread history, oldest first.
	Messages []Message `json:"messages"`

	// UpdatedAt is the RFC 3339 timestamp of the last activity.
	UpdatedAt string `json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the conversation members.
func (c Conversation) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID, or "" if
// userID is not a member.
func (c Conversation) OtherParticipant(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// UpdatedTime parses UpdatedAt. Missing or invalid timestamps resolve to
// the Unix epoch.
func (c Conversation) UpdatedTime() time.Time {
	return ParseTimestamp(c.UpdatedAt)
}

// ParseTimestamp parses a timestamp string in any of the common date
// layouts, returning the Unix epoch when s is empty or malformed.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Unix(0, 0).UTC()
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return t
}
