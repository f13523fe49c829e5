package remote

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/service"
)

var (
	_ service.NotificationService = notificationService{}
	_ service.ConversationService = conversationService{}
	_ service.UserDirectory       = userDirectory{}
)

// okResponse is the body of conversation and message writes.
type okResponse struct {
	OK bool `json:"ok"`
}

// Notifications returns the client as a NotificationService.
func (c *Client) Notifications() service.NotificationService {
	return notificationService{c: c}
}

// Conversations returns the client as a ConversationService.
func (c *Client) Conversations() service.ConversationService {
	return conversationService{c: c}
}

// Users returns the client as a UserDirectory.
func (c *Client) Users() service.UserDirectory {
	return userDirectory{c: c}
}

func userPath(userID, suffix string) string {
	return "/v1/users/" + url.PathEscape(userID) + suffix
}

type notificationService struct {
	c *Client
}

// GetAll returns the raw JSON list; the sync stores normalize it.
func (v notificationService) GetAll(ctx context.Context, userID string) (any, error) {
	var raw json.RawMessage
	if err := v.c.Get(ctx, userPath(userID, "/notifications"), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (v notificationService) MarkAsRead(ctx context.Context, id string) error {
	return v.c.Post(ctx, "/v1/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (v notificationService) Delete(ctx context.Context, id string) error {
	return v.c.Delete(ctx, "/v1/notifications/"+url.PathEscape(id), nil)
}

func (v notificationService) ClearAll(ctx context.Context, userID string) error {
	return v.c.Delete(ctx, userPath(userID, "/notifications"), nil)
}

func (v notificationService) Create(ctx context.Context, n model.Notification) error {
	return v.c.Post(ctx, "/v1/notifications", n, nil)
}

func (v notificationService) Subscribe(ctx context.Context, userID string, onBatch service.BatchHandler) (service.Subscription, error) {
	return v.c.SubscribeNotifications(ctx, userID, onBatch)
}

type conversationService struct {
	c *Client
}

func (v conversationService) GetUserConversations(ctx context.Context, userID string) (any, error) {
	var raw json.RawMessage
	if err := v.c.Get(ctx, userPath(userID, "/conversations"), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (v conversationService) GetMessages(ctx context.Context, conversationID string) (any, error) {
	var raw json.RawMessage
	if err := v.c.Get(ctx, "/v1/conversations/"+url.PathEscape(conversationID)+"/messages", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (v conversationService) Create(ctx context.Context, conv model.Conversation) (bool, error) {
	var resp okResponse
	if err := v.c.Post(ctx, "/v1/conversations", conv, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

func (v conversationService) Update(ctx context.Context, id string, conv model.Conversation) (bool, error) {
	var resp okResponse
	if err := v.c.Put(ctx, "/v1/conversations/"+url.PathEscape(id), conv, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

// Delete reports false for a conversation the API does not know.
func (v conversationService) Delete(ctx context.Context, id string) (bool, error) {
	var resp okResponse
	err := v.c.Delete(ctx, "/v1/conversations/"+url.PathEscape(id), &resp)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

func (v conversationService) Send(ctx context.Context, m model.Message) (bool, error) {
	var resp okResponse
	if err := v.c.Post(ctx, "/v1/messages", m, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

type userDirectory struct {
	c *Client
}

func (v userDirectory) GetAll(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := v.c.Get(ctx, "/v1/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}
