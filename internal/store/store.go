package store

import (
	"context"

	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/service"
)

var (
	_ service.NotificationService = notificationService{}
	_ service.ConversationService = conversationService{}
	_ service.UserDirectory       = userDirectory{}
)

// Notifications returns the store as a NotificationService.
func (s *SQLiteStore) Notifications() service.NotificationService {
	return notificationService{s: s}
}

// Conversations returns the store as a ConversationService.
func (s *SQLiteStore) Conversations() service.ConversationService {
	return conversationService{s: s}
}

// Users returns the store as a UserDirectory.
func (s *SQLiteStore) Users() service.UserDirectory {
	return userDirectory{s: s}
}

type notificationService struct {
	s *SQLiteStore
}

func (v notificationService) GetAll(ctx context.Context, userID string) (any, error) {
	return v.s.ListNotifications(ctx, userID)
}

func (v notificationService) MarkAsRead(ctx context.Context, id string) error {
	return v.s.MarkNotificationRead(ctx, id)
}

func (v notificationService) Delete(ctx context.Context, id string) error {
	return v.s.DeleteNotification(ctx, id)
}

func (v notificationService) ClearAll(ctx context.Context, userID string) error {
	return v.s.ClearNotifications(ctx, userID)
}

func (v notificationService) Create(ctx context.Context, n model.Notification) error {
	return v.s.CreateNotification(ctx, n)
}

func (v notificationService) Subscribe(ctx context.Context, userID string, onBatch service.BatchHandler) (service.Subscription, error) {
	return v.s.SubscribeNotifications(ctx, userID, onBatch)
}

type conversationService struct {
	s *SQLiteStore
}

func (v conversationService) GetUserConversations(ctx context.Context, userID string) (any, error) {
	return v.s.ListConversations(ctx, userID)
}

func (v conversationService) GetMessages(ctx context.Context, conversationID string) (any, error) {
	return v.s.ListMessages(ctx, conversationID)
}

func (v conversationService) Create(ctx context.Context, c model.Conversation) (bool, error) {
	if err := v.s.CreateConversation(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

func (v conversationService) Update(ctx context.Context, id string, c model.Conversation) (bool, error) {
	return v.s.UpdateConversation(ctx, id, c)
}

func (v conversationService) Delete(ctx context.Context, id string) (bool, error) {
	return v.s.DeleteConversation(ctx, id)
}

func (v conversationService) Send(ctx context.Context, m model.Message) (bool, error) {
	if err := v.s.SendMessage(ctx, m); err != nil {
		return false, err
	}
	return true, nil
}

type userDirectory struct {
	s *SQLiteStore
}

func (v userDirectory) GetAll(ctx context.Context) ([]model.User, error) {
	return v.s.ListUsers(ctx)
}
