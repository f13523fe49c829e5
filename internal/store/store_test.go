package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-sync/internal/model"
	appsync "github.com/nhle/inbox-sync/internal/sync"
	"github.com/nhle/inbox-sync/tests/testutil"
)

func TestNotifications_CRUD(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.CreateNotification(ctx, model.Notification{
		ID: "n1", UserID: "alice", Type: "mention", Title: "hi",
		Data:      map[string]any{"conversationId": "alice-bob"},
		CreatedAt: "2024-01-01T00:00:00Z",
	}))
	require.NoError(t, s.CreateNotification(ctx, model.Notification{
		ID: "n2", UserID: "alice", Type: "system", CreatedAt: "2024-02-01T00:00:00Z",
	}))
	require.NoError(t, s.CreateNotification(ctx, model.Notification{
		UserID: "bob", Type: "system",
	}))

	got, err := s.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n2", got[0].ID, "newest first")
	assert.Equal(t, map[string]any{"conversationId": "alice-bob"}, got[1].Data)
	assert.Nil(t, got[0].Data)

	require.NoError(t, s.MarkNotificationRead(ctx, "n1"))
	require.NoError(t, s.MarkNotificationRead(ctx, "missing"))
	got, err = s.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got[1].Read)
	assert.False(t, got[0].Read)

	require.NoError(t, s.DeleteNotification(ctx, "n2"))
	got, err = s.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, s.ClearNotifications(ctx, "alice"))
	got, err = s.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)

	bob, err := s.ListNotifications(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.NotEmpty(t, bob[0].ID)
	assert.NotEmpty(t, bob[0].CreatedAt)
}

func TestNotifications_CreateRequiresUserAndType(t *testing.T) {
	s := testutil.NewTestStore(t)
	assert.Error(t, s.CreateNotification(context.Background(), model.Notification{Type: "t"}))
	assert.Error(t, s.CreateNotification(context.Background(), model.Notification{UserID: "u"}))
}

func TestSubscribe_DeliversOnWrite(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	batches := make(chan []model.Notification, 16)
	sub, err := s.Notifications().Subscribe(ctx, "alice", func(payload any) {
		batches <- payload.([]model.Notification)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Cancel() })

	select {
	case b := <-batches:
		assert.Empty(t, b)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial delivery")
	}

	require.NoError(t, s.CreateNotification(ctx, model.Notification{ID: "n1", UserID: "alice", Type: "t"}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case b := <-batches:
			if len(b) == 1 && b[0].ID == "n1" {
				return
			}
		case <-deadline:
			t.Fatal("write was not delivered")
		}
	}
}

func TestSubscribe_RejectsEmptyUser(t *testing.T) {
	s := testutil.NewTestStore(t)
	_, err := s.Notifications().Subscribe(context.Background(), "", func(any) {})
	assert.Error(t, err)
}

func TestConversations_SendCreatesAndAppends(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.SendMessage(ctx, model.Message{
		ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "hi", Timestamp: "2024-01-01T00:00:00Z",
	}))
	require.NoError(t, s.SendMessage(ctx, model.Message{
		ID: "m2", SenderID: "alice", ReceiverID: "bob", Content: "hey", Timestamp: "2024-01-02T00:00:00Z",
	}))

	convs, err := s.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "alice-bob", convs[0].ID)
	assert.Equal(t, []string{"alice", "bob"}, convs[0].Participants)
	assert.Equal(t, "2024-01-02T00:00:00Z", convs[0].UpdatedAt)

	msgs, err := s.ListMessages(ctx, "alice-bob")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "hey", msgs[1].Content)

	other, err := s.ListConversations(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestConversations_CreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	svc := s.Conversations()

	conv := model.Conversation{
		ID: "alice-bob", Participants: []string{"bob", "alice"},
		Messages: []model.Message{}, UpdatedAt: "2024-01-01T00:00:00Z",
	}
	ok, err := svc.Create(ctx, conv)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Create(ctx, conv)
	require.NoError(t, err)
	assert.True(t, ok, "creating twice succeeds")

	conv.Messages = []model.Message{
		{ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "hi", Read: true},
	}
	ok, err = svc.Update(ctx, "alice-bob", conv)
	require.NoError(t, err)
	assert.True(t, ok)

	msgs, err := s.ListMessages(ctx, "alice-bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Read)

	ok, err = svc.Update(ctx, "missing", conv)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Delete(ctx, "alice-bob")
	require.NoError(t, err)
	assert.True(t, ok)

	msgs, err = s.ListMessages(ctx, "alice-bob")
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages are deleted with their conversation")

	ok, err = svc.Delete(ctx, "alice-bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUsers_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.UpsertUser(ctx, model.User{ID: "bob", DisplayName: "Bob"}))
	require.NoError(t, s.UpsertUser(ctx, model.User{ID: "alice", DisplayName: "Alice", Email: "a@example.com"}))
	require.NoError(t, s.UpsertUser(ctx, model.User{ID: "bob", DisplayName: "Robert"}))
	assert.Error(t, s.UpsertUser(ctx, model.User{}))

	users, err := s.Users().GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.User{
		{ID: "alice", DisplayName: "Alice", Email: "a@example.com"},
		{ID: "bob", DisplayName: "Robert"},
	}, users)
}

// TestStores_MessageRaisesNotification runs both sync stores on top of the
// SQLite backend: a message sent by bob shows up in alice's conversation
// list and raises a notification delivered through her subscription.
func TestStores_MessageRaisesNotification(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, model.User{ID: "bob", DisplayName: "Bob"}))

	aliceNotes := appsync.NewNotificationStore(s.Notifications())
	t.Cleanup(aliceNotes.Close)
	aliceNotes.SetUser(ctx, "alice")

	bobNotes := appsync.NewNotificationStore(s.Notifications())
	t.Cleanup(bobNotes.Close)
	bobConvs := appsync.NewConversationStore(s.Conversations(), s.Users(), bobNotes)
	t.Cleanup(bobConvs.Close)
	bobConvs.SetUser(ctx, "bob")

	require.NoError(t, bobConvs.SendMessage(ctx, "alice", "hello"))

	conv, ok := bobConvs.GetConversationWithUser("alice")
	require.True(t, ok)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].Content)

	aliceConvs := appsync.NewConversationStore(s.Conversations(), s.Users(), nil)
	t.Cleanup(aliceConvs.Close)
	aliceConvs.SetUser(ctx, "alice")
	assert.Equal(t, 1, aliceConvs.TotalUnreadCount())
	assert.Equal(t, 0, bobConvs.TotalUnreadCount())

	require.Eventually(t, func() bool {
		return aliceNotes.UnreadCount() == 1
	}, 3*time.Second, 20*time.Millisecond)

	n := aliceNotes.ByType(model.NotificationTypeMessage)
	require.Len(t, n, 1)
	assert.Equal(t, "New message from Bob", n[0].Title)
	assert.Equal(t, "alice-bob", n[0].Data["conversationId"])

	require.NoError(t, aliceConvs.MarkMessagesAsRead(ctx, "alice-bob"))
	assert.Zero(t, aliceConvs.TotalUnreadCount())
}
