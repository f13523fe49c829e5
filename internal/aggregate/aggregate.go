// Package aggregate derives read-only views from store state: unread
// counts, per-type filters and conversation lookups. Nothing here performs
// I/O or mutates its inputs.
package aggregate

import (
	"github.com/nhle/inbox-sync/internal/identity"
	"github.com/nhle/inbox-sync/internal/model"
)

// UnreadNotifications counts notifications not yet read.
func UnreadNotifications(ns []model.Notification) int {
	count := 0
	for _, n := range ns {
		if !n.Read {
			count++
		}
	}
	return count
}

// NotificationsByType returns the notifications of the given type, in
// their original order.
func NotificationsByType(ns []model.Notification, typ string) []model.Notification {
	out := make([]model.Notification, 0)
	for _, n := range ns {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// UnreadIDs returns the ids of unread notifications.
func UnreadIDs(ns []model.Notification) []string {
	ids := make([]string, 0)
	for _, n := range ns {
		if !n.Read {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// UnreadMessages counts messages in c addressed to userID and not read.
func UnreadMessages(c model.Conversation, userID string) int {
	count := 0
	for _, m := range c.Messages {
		if m.ReceiverID == userID && !m.Read {
			count++
		}
	}
	return count
}

// TotalUnreadMessages sums UnreadMessages over every conversation.
func TotalUnreadMessages(cs []model.Conversation, userID string) int {
	total := 0
	for _, c := range cs {
		total += UnreadMessages(c, userID)
	}
	return total
}

// FindConversationByID returns the conversation with the given id.
func FindConversationByID(cs []model.Conversation, id string) (model.Conversation, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// FindConversationWith returns the first conversation whose participants
// include both userID and participantID.
func FindConversationWith(cs []model.Conversation, userID, participantID string) (model.Conversation, bool) {
	for _, c := range cs {
		if c.HasParticipant(userID) && c.HasParticipant(participantID) {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// FindConversationBetween looks up the pair's conversation by its derived
// id.
func FindConversationBetween(cs []model.Conversation, userID, otherUserID string) (model.Conversation, bool) {
	return FindConversationByID(cs, identity.ConversationID(userID, otherUserID))
}

// IsParticipant reports whether userID belongs to the conversation with
// the given id. Unknown conversations report false.
func IsParticipant(cs []model.Conversation, conversationID, userID string) bool {
	c, ok := FindConversationByID(cs, conversationID)
	return ok && c.HasParticipant(userID)
}
