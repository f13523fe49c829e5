package sync

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-sync/internal/model"
)

func notification(id, user string, read bool) model.Notification {
	return model.Notification{
		ID: id, UserID: user, Type: "mention", Title: "t" + id,
		Read: read, CreatedAt: "2024-01-01T00:00:00Z",
	}
}

func TestNotificationStore_SetUserSubscribesAndAppliesBatches(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	changes := 0
	s := NewNotificationStore(svc, testOptions(t, WithOnChange(func() { changes++ }))...)

	s.SetUser(ctx, "alice")
	st := s.State()
	assert.Equal(t, "alice", st.UserID)
	assert.True(t, st.IsLoading)
	assert.Empty(t, st.Notifications)
	require.Len(t, svc.handlers, 1)

	svc.push(0, []any{
		map[string]any{"id": "1", "userId": "alice", "type": "t"},
		map[string]any{"foo": "bar"},
	})

	st = s.State()
	assert.False(t, st.IsLoading)
	require.Len(t, st.Notifications, 1)
	assert.Equal(t, "1", st.Notifications[0].ID)
	assert.Equal(t, 1, s.UnreadCount())
	assert.Positive(t, changes)
}

func TestNotificationStore_SwitchingUserCancelsPreviousSubscription(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)

	s.SetUser(ctx, "alice")
	s.SetUser(ctx, "bob")

	assert.Equal(t, 1, svc.cancelCount())
	require.Len(t, svc.handlers, 2)

	// A late delivery for alice must not leak into bob's state.
	svc.push(0, []model.Notification{notification("a1", "alice", false)})
	assert.Empty(t, s.State().Notifications)

	svc.push(1, []model.Notification{notification("b1", "bob", false)})
	require.Len(t, s.State().Notifications, 1)
	assert.Equal(t, "b1", s.State().Notifications[0].ID)
}

func TestNotificationStore_CancelErrorIsLoggedNotPropagated(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	svc := &fakeNotifications{cancelErr: errBoom}
	s := NewNotificationStore(svc, testOptions(t, WithLogger(logger))...)

	s.SetUser(ctx, "alice")
	s.SetUser(ctx, "bob")

	st := s.State()
	assert.Equal(t, "bob", st.UserID)
	assert.Empty(t, st.Err)
	require.Len(t, svc.handlers, 2)
	svc.push(1, []model.Notification{notification("b1", "bob", false)})
	require.Len(t, s.State().Notifications, 1)

	s.Close()
	assert.Equal(t, 2, svc.cancelCount())
	assert.Empty(t, s.State().Err)
	assert.Contains(t, logs.String(), "cancelling notification subscription")
	assert.Contains(t, logs.String(), "error=boom")
}

func TestNotificationStore_EmptyUserIsIdle(t *testing.T) {
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)

	s.SetUser(context.Background(), "  ")
	st := s.State()
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.UserID)
	assert.Empty(t, svc.handlers)
	assert.NoError(t, s.Load(context.Background()))
	assert.Zero(t, svc.getAllCalls)
}

func TestNotificationStore_SubscribeFailureFallsBackToLoad(t *testing.T) {
	svc := &fakeNotifications{
		subscribeErr: errBoom,
		items:        []model.Notification{notification("1", "alice", false), notification("2", "bob", false)},
	}
	s := NewNotificationStore(svc, testOptions(t)...)

	s.SetUser(context.Background(), "alice")

	st := s.State()
	assert.Equal(t, 1, svc.getAllCalls)
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.Err)
	require.Len(t, st.Notifications, 1)
	assert.Equal(t, "1", st.Notifications[0].ID)
}

func TestNotificationStore_LoadFailsClosed(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{items: []model.Notification{notification("1", "alice", false)}}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	require.NoError(t, s.Load(ctx))
	require.Len(t, s.State().Notifications, 1)

	svc.getAllErr = errBoom
	err := s.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	st := s.State()
	assert.Empty(t, st.Notifications)
	assert.False(t, st.IsLoading)
	assert.Equal(t, "failed to load notifications: boom", st.Err)
}

func TestNotificationStore_MarkAsRead(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	svc.push(0, []model.Notification{notification("1", "alice", false), notification("2", "alice", false)})

	require.NoError(t, s.MarkAsRead(ctx, "1"))
	assert.Equal(t, []string{"1"}, svc.markCalls)
	assert.Equal(t, 1, s.UnreadCount())
	assert.True(t, s.State().Notifications[0].Read)

	err := s.MarkAsRead(ctx, "")
	assert.True(t, IsValidationError(err))
	assert.Len(t, svc.markCalls, 1)
}

func TestNotificationStore_MarkAsReadFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{markErr: map[string]error{"1": errBoom}}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	svc.push(0, []model.Notification{notification("1", "alice", false)})

	err := s.MarkAsRead(ctx, "1")
	require.Error(t, err)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "mark notification as read", opErr.Op)

	st := s.State()
	assert.False(t, st.Notifications[0].Read)
	assert.Equal(t, err.Error(), st.Err)
}

func TestNotificationStore_MarkAllAsReadOnlyTouchesUnread(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	svc.push(0, []model.Notification{
		notification("1", "alice", false),
		notification("2", "alice", true),
		notification("3", "alice", false),
	})

	require.NoError(t, s.MarkAllAsRead(ctx))
	assert.ElementsMatch(t, []string{"1", "3"}, svc.markCalls)
	assert.Zero(t, s.UnreadCount())
	for _, n := range s.State().Notifications {
		assert.True(t, n.Read, n.ID)
	}
}

func TestNotificationStore_MarkAllAsReadNothingUnread(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	svc.push(0, []model.Notification{notification("1", "alice", true)})

	require.NoError(t, s.MarkAllAsRead(ctx))
	assert.Empty(t, svc.markCalls)
}

func TestNotificationStore_MarkAllAsReadFailureKeepsLocalFlags(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{markErr: map[string]error{"3": errBoom}}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	svc.push(0, []model.Notification{notification("1", "alice", false), notification("3", "alice", false)})

	err := s.MarkAllAsRead(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.Equal(t, 2, s.UnreadCount())
	assert.NotEmpty(t, s.State().Err)
}

func TestNotificationStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	svc.push(0, []model.Notification{
		notification("1", "alice", false),
		notification("2", "alice", false),
		notification("3", "alice", true),
	})

	require.NoError(t, s.DeleteNotification(ctx, "2"))
	ids := []string{}
	for _, n := range s.State().Notifications {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"1", "3"}, ids)

	require.NoError(t, s.ClearAllNotifications(ctx))
	assert.Empty(t, s.State().Notifications)
	assert.Zero(t, s.UnreadCount())
}

func TestNotificationStore_DeleteFailureKeepsItem(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{deleteErr: errBoom}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	svc.push(0, []model.Notification{notification("1", "alice", false)})

	require.Error(t, s.DeleteNotification(ctx, "1"))
	assert.Len(t, s.State().Notifications, 1)
}

func TestNotificationStore_ClearRequiresUser(t *testing.T) {
	s := NewNotificationStore(&fakeNotifications{}, testOptions(t)...)
	err := s.ClearAllNotifications(context.Background())
	assert.True(t, IsValidationError(err))
}

func TestNotificationStore_CreateDoesNotInsertLocally(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")
	svc.push(0, []model.Notification{})

	err := s.CreateNotification(ctx, model.Notification{UserID: "alice", Type: "system", Title: "hi"})
	require.NoError(t, err)

	require.Len(t, svc.createCalls, 1)
	created := svc.createCalls[0]
	assert.Equal(t, "id-1", created.ID)
	assert.Equal(t, model.Timestamp(fixedNow), created.CreatedAt)
	assert.Empty(t, s.State().Notifications, "only the subscription inserts")

	assert.True(t, IsValidationError(s.CreateNotification(ctx, model.Notification{Type: "system"})))
	assert.True(t, IsValidationError(s.CreateNotification(ctx, model.Notification{UserID: "alice"})))
	assert.Len(t, svc.createCalls, 1)
}

func TestNotificationStore_NotifyDoesNotRecordError(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{createErr: errBoom}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")

	err := s.Notify(ctx, model.Notification{UserID: "bob", Type: model.NotificationTypeMessage})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, s.State().Err)

	assert.True(t, IsValidationError(s.Notify(ctx, model.Notification{Type: "system"})))
}

func TestNotificationStore_ByType(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")

	msg := notification("2", "alice", false)
	msg.Type = model.NotificationTypeMessage
	svc.push(0, []model.Notification{notification("1", "alice", false), msg})

	got := s.ByType(model.NotificationTypeMessage)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
	assert.Empty(t, s.ByType("unknown"))
}

func TestNotificationStore_CloseIgnoresLaterDeliveries(t *testing.T) {
	ctx := context.Background()
	svc := &fakeNotifications{}
	s := NewNotificationStore(svc, testOptions(t)...)
	s.SetUser(ctx, "alice")

	s.Close()
	assert.Equal(t, 1, svc.cancelCount())

	svc.push(0, []model.Notification{notification("1", "alice", false)})
	assert.Empty(t, s.State().Notifications)

	s.Close()
	assert.Equal(t, 1, svc.cancelCount())

	s.SetUser(ctx, "bob")
	assert.Len(t, svc.handlers, 1)
}
