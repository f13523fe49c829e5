package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	gosync "sync"

	"github.com/sourcegraph/conc/iter"

	"github.com/nhle/inbox-sync/internal/aggregate"
	"github.com/nhle/inbox-sync/internal/identity"
	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/normalize"
	"github.com/nhle/inbox-sync/internal/service"
)

// messagePreviewLen bounds the body of message notifications.
const messagePreviewLen = 120

// NotificationCreator raises notifications for other users without
// touching their own error state. The NotificationStore implements it.
type NotificationCreator interface {
	Notify(ctx context.Context, n model.Notification) error
}

// ConversationState is a snapshot of a ConversationStore.
type ConversationState struct {
	UserID        string
	Conversations []model.Conversation
	IsLoading     bool
	Err           string
}

// ConversationStore keeps the conversations of one user, each with its
// embedded messages, in sync with a ConversationService.
//
// Writes are reconciled by a full reload rather than patched locally:
// after a successful send, read-marking, delete or create the store
// refetches everything and replaces its list.
type ConversationStore struct {
	svc      service.ConversationService
	users    service.UserDirectory
	notifier NotificationCreator
	opts     options

	mu      gosync.Mutex
	userID  string
	gen     uint64
	closed  bool
	items   []model.Conversation
	loading bool
	err     string
}

// NewConversationStore creates a store with no user. users and notifier
// are optional; without them no notification is raised on send.
func NewConversationStore(
	svc service.ConversationService,
	users service.UserDirectory,
	notifier NotificationCreator,
	opts ...Option,
) *ConversationStore {
	return &ConversationStore{
		svc:      svc,
		users:    users,
		notifier: notifier,
		opts:     buildOptions(opts),
		items:    []model.Conversation{},
	}
}

// SetUser switches the store to userID, resets state and, for a non-empty
// id, loads the user's conversations.
func (s *ConversationStore) SetUser(ctx context.Context, userID string) {
	userID = strings.TrimSpace(userID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.userID = userID
	s.items = []model.Conversation{}
	s.err = ""
	s.loading = userID != ""
	s.mu.Unlock()
	s.opts.changed()

	if userID == "" {
		return
	}
	_ = s.load(ctx, gen, userID)
}

// Load refetches every conversation of the current user together with its
// messages and replaces local state. Message histories are fetched
// concurrently; a conversation whose history cannot be fetched is kept
// with no messages. The result is ordered by UpdatedAt, newest first, with
// missing or invalid timestamps treated as the Unix epoch.
func (s *ConversationStore) Load(ctx context.Context) error {
	s.mu.Lock()
	userID, gen := s.userID, s.gen
	if s.closed || userID == "" {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()
	s.opts.changed()

	return s.load(ctx, gen, userID)
}

func (s *ConversationStore) load(ctx context.Context, gen uint64, userID string) error {
	payload, err := s.svc.GetUserConversations(ctx, userID)
	if err != nil {
		opErr := &OpError{Op: "load conversations", Err: err}
		s.opts.logger.Error("loading conversations", "user", userID, "error", err)

		s.mu.Lock()
		if s.closed || s.gen != gen {
			s.mu.Unlock()
			return opErr
		}
		s.items = []model.Conversation{}
		s.loading = false
		s.err = opErr.Error()
		s.mu.Unlock()
		s.opts.changed()
		return opErr
	}

	summaries := normalize.Conversations(payload)
	convs := iter.Map(summaries, func(c *model.Conversation) model.Conversation {
		out := *c
		msgs, err := s.svc.GetMessages(ctx, c.ID)
		if err != nil {
			s.opts.logger.Warn("loading messages", "conversation", c.ID, "error", err)
			out.Messages = []model.Message{}
			return out
		}
		out.Messages = normalize.Messages(msgs)
		return out
	})
	sortByUpdatedDesc(convs)

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.items = convs
	s.loading = false
	s.err = ""
	s.mu.Unlock()

	s.opts.changed()
	return nil
}

// reload reconciles after a successful write. Failures are recorded in the
// store error by load and do not fail the write.
func (s *ConversationStore) reload(ctx context.Context, gen uint64, userID string) {
	_ = s.load(ctx, gen, userID)
}

// SendMessage sends content from the current user to receiverID and
// reloads. It also raises a "message" notification for the receiver; that
// side effect never fails the send.
func (s *ConversationStore) SendMessage(ctx context.Context, receiverID, content string) error {
	s.mu.Lock()
	senderID, gen := s.userID, s.gen
	s.mu.Unlock()

	receiverID = strings.TrimSpace(receiverID)
	text := strings.TrimSpace(content)
	switch {
	case senderID == "":
		return &ValidationError{Field: "sender", Message: "user id is required"}
	case receiverID == "":
		return &ValidationError{Field: "receiver", Message: "user id is required"}
	case text == "":
		return &ValidationError{Field: "content", Message: "must not be blank"}
	}

	msg := model.Message{
		ID:         s.opts.newID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    text,
		Timestamp:  model.Timestamp(s.opts.now()),
		Read:       false,
	}

	ok, err := s.svc.Send(ctx, msg)
	if err == nil && !ok {
		err = &service.RejectedError{Op: "send message", ID: msg.ID}
	}
	if err != nil {
		return s.fail(gen, "send message", err)
	}

	s.reload(ctx, gen, senderID)
	s.notifyReceiver(ctx, msg)
	return nil
}

// notifyReceiver raises the best-effort message notification.
func (s *ConversationStore) notifyReceiver(ctx context.Context, msg model.Message) {
	if s.notifier == nil {
		return
	}

	senderName := msg.SenderID
	if s.users != nil {
		users, err := s.users.GetAll(ctx)
		if err != nil {
			s.opts.logger.Warn("resolving sender name", "sender", msg.SenderID, "error", err)
		}
		for _, u := range users {
			if u.ID == msg.SenderID {
				senderName = u.Name()
				break
			}
		}
	}

	n := model.Notification{
		UserID:  msg.ReceiverID,
		Type:    model.NotificationTypeMessage,
		Title:   fmt.Sprintf("New message from %s", senderName),
		Message: preview(msg.Content, messagePreviewLen),
		Data: map[string]any{
			"conversationId": identity.ConversationID(msg.SenderID, msg.ReceiverID),
			"messageId":      msg.ID,
			"senderId":       msg.SenderID,
		},
		CreatedAt: msg.Timestamp,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.opts.logger.Warn("creating message notification",
			"receiver", msg.ReceiverID, "error", err)
	}
}

// GetConversation returns the local conversation whose participants
// include both the current user and participantID.
func (s *ConversationStore) GetConversation(participantID string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregate.FindConversationWith(s.items, s.userID, participantID)
}

// GetConversationWithUser returns the local conversation with otherUserID,
// looked up by its derived id.
func (s *ConversationStore) GetConversationWithUser(otherUserID string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregate.FindConversationBetween(s.items, s.userID, otherUserID)
}

// MarkMessagesAsRead marks every message addressed to the current user in
// the conversation as read, persists the conversation and reloads. Unknown
// conversations and conversations with nothing to mark are a no-op.
func (s *ConversationStore) MarkMessagesAsRead(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	userID, gen := s.userID, s.gen
	conv, ok := aggregate.FindConversationByID(s.items, conversationID)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	updated := conv
	updated.Messages = make([]model.Message, len(conv.Messages))
	flipped := 0
	for i, m := range conv.Messages {
		if m.ReceiverID == userID && !m.Read {
			m.Read = true
			flipped++
		}
		updated.Messages[i] = m
	}
	if flipped == 0 {
		return nil
	}

	ok, err := s.svc.Update(ctx, conv.ID, updated)
	if err == nil && !ok {
		err = &service.RejectedError{Op: "update conversation", ID: conv.ID}
	}
	if err != nil {
		return s.fail(gen, "mark messages as read", err)
	}

	s.reload(ctx, gen, userID)
	return nil
}

// DeleteConversation deletes a conversation the current user takes part
// in. It returns false without calling the service when the conversation is
// unknown or the user is not a participant, and false when the service
// declines the delete.
func (s *ConversationStore) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	userID, gen := s.userID, s.gen
	conv, ok := aggregate.FindConversationByID(s.items, conversationID)
	s.mu.Unlock()

	if !ok || !conv.HasParticipant(userID) {
		return false, nil
	}

	deleted, err := s.svc.Delete(ctx, conv.ID)
	if err != nil {
		return false, s.fail(gen, "delete conversation", err)
	}
	if !deleted {
		s.opts.logger.Warn("conversation delete declined", "conversation", conv.ID)
		return false, nil
	}

	s.reload(ctx, gen, userID)
	return true, nil
}

// CreateConversation returns the conversation between the current user
// and otherUserID, creating it remotely if it does not exist locally. The
// returned record is the one read back after reloading.
func (s *ConversationStore) CreateConversation(ctx context.Context, otherUserID string) (model.Conversation, error) {
	otherUserID = strings.TrimSpace(otherUserID)

	s.mu.Lock()
	userID, gen := s.userID, s.gen
	existing, found := aggregate.FindConversationBetween(s.items, userID, otherUserID)
	s.mu.Unlock()

	switch {
	case userID == "":
		return model.Conversation{}, &ValidationError{Field: "user id", Message: "is required"}
	case otherUserID == "":
		return model.Conversation{}, &ValidationError{Field: "other user id", Message: "is required"}
	case otherUserID == userID:
		return model.Conversation{}, &ValidationError{Field: "other user id", Message: "cannot start a conversation with yourself"}
	}
	if found {
		return existing, nil
	}

	conv := model.Conversation{
		ID:           identity.ConversationID(userID, otherUserID),
		Participants: []string{userID, otherUserID},
		Messages:     []model.Message{},
		UpdatedAt:    model.Timestamp(s.opts.now()),
	}

	ok, err := s.svc.Create(ctx, conv)
	if err == nil && !ok {
		err = &service.RejectedError{Op: "create conversation", ID: conv.ID}
	}
	if err != nil {
		return model.Conversation{}, s.fail(gen, "create conversation", err)
	}

	if err := s.load(ctx, gen, userID); err != nil {
		return model.Conversation{}, err
	}

	s.mu.Lock()
	created, found := aggregate.FindConversationByID(s.items, conv.ID)
	s.mu.Unlock()
	if !found {
		err := fmt.Errorf("conversation %s not found after create: %w", conv.ID, ErrInconsistent)
		return model.Conversation{}, s.fail(gen, "create conversation", err)
	}
	return created, nil
}

// UnreadCount returns the number of unread messages addressed to the
// current user in one conversation.
func (s *ConversationStore) UnreadCount(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := aggregate.FindConversationByID(s.items, conversationID)
	if !ok {
		return 0
	}
	return aggregate.UnreadMessages(c, s.userID)
}

// TotalUnreadCount returns the number of unread messages addressed to the
// current user across all conversations.
func (s *ConversationStore) TotalUnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregate.TotalUnreadMessages(s.items, s.userID)
}

// State returns a snapshot of the store.
func (s *ConversationStore) State() ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.Conversation, len(s.items))
	copy(items, s.items)
	return ConversationState{
		UserID:        s.userID,
		Conversations: items,
		IsLoading:     s.loading,
		Err:           s.err,
	}
}

// Close disposes of the store. In-flight loads are discarded.
func (s *ConversationStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
}

func (s *ConversationStore) fail(gen uint64, op string, err error) error {
	opErr := &OpError{Op: op, Err: err}
	s.opts.logger.Error(op, "error", err)

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return opErr
	}
	s.err = opErr.Error()
	s.mu.Unlock()

	s.opts.changed()
	return opErr
}

func sortByUpdatedDesc(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedTime().After(convs[j].UpdatedTime())
	})
}

func preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
