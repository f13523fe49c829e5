package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/service"
)

var errBoom = errors.New("boom")

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testOptions(t *testing.T, extra ...Option) []Option {
	t.Helper()
	n := 0
	opts := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	}
	return append(opts, extra...)
}

// fakeNotifications is an in-memory NotificationService.
type fakeNotifications struct {
	mu gosync.Mutex

	items        []model.Notification
	getAllErr    error
	markErr      map[string]error
	deleteErr    error
	clearErr     error
	createErr    error
	subscribeErr error
	cancelErr    error
	markCalls    []string
	deleteCalls  []string
	createCalls  []model.Notification
	getAllCalls  int
	handlers     []service.BatchHandler
	cancelled    int
}

func (f *fakeNotifications) GetAll(_ context.Context, userID string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getAllCalls++
	if f.getAllErr != nil {
		return nil, f.getAllErr
	}
	out := make([]model.Notification, 0)
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifications) MarkAsRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, id)
	if err := f.markErr[id]; err != nil {
		return err
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
		}
	}
	return nil
}

func (f *fakeNotifications) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, id)
	return f.deleteErr
}

func (f *fakeNotifications) ClearAll(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearErr
}

func (f *fakeNotifications) Create(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, n)
	if f.createErr != nil {
		return f.createErr
	}
	f.items = append(f.items, n)
	return nil
}

func (f *fakeNotifications) Subscribe(_ context.Context, _ string, onBatch service.BatchHandler) (service.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.handlers = append(f.handlers, onBatch)
	return service.SubscriptionFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled++
		return f.cancelErr
	}), nil
}

// push delivers payload through the handler registered by the idx-th
// Subscribe call.
func (f *fakeNotifications) push(idx int, payload any) {
	f.mu.Lock()
	h := f.handlers[idx]
	f.mu.Unlock()
	h(payload)
}

func (f *fakeNotifications) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// fakeConversations is an in-memory ConversationService keyed by
// conversation id.
type fakeConversations struct {
	mu gosync.Mutex

	convs       map[string]model.Conversation
	listErr     error
	listAll     bool
	messagesErr map[string]error
	sendErr     error
	sendResult  *bool
	deleteOK    *bool
	dropCreated bool

	createCalls []model.Conversation
	updateCalls []model.Conversation
	deleteCalls []string
	sendCalls   []model.Message
}

func newFakeConversations(convs ...model.Conversation) *fakeConversations {
	f := &fakeConversations{convs: make(map[string]model.Conversation)}
	for _, c := range convs {
		f.convs[c.ID] = c
	}
	return f
}

func (f *fakeConversations) GetUserConversations(_ context.Context, userID string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]map[string]any, 0)
	for _, c := range f.convs {
		if !f.listAll && !c.HasParticipant(userID) {
			continue
		}
		// Summaries carry no messages.
		out = append(out, map[string]any{
			"id":           c.ID,
			"participants": c.Participants,
			"updatedAt":    c.UpdatedAt,
		})
	}
	return out, nil
}

func (f *fakeConversations) GetMessages(_ context.Context, id string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.messagesErr[id]; err != nil {
		return nil, err
	}
	msgs := append([]model.Message(nil), f.convs[id].Messages...)
	return msgs, nil
}

func (f *fakeConversations) Create(_ context.Context, c model.Conversation) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, c)
	if !f.dropCreated {
		f.convs[c.ID] = c
	}
	return true, nil
}

func (f *fakeConversations) Update(_ context.Context, id string, c model.Conversation) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, c)
	if _, ok := f.convs[id]; !ok {
		return false, nil
	}
	f.convs[id] = c
	return true, nil
}

func (f *fakeConversations) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, id)
	if f.deleteOK != nil && !*f.deleteOK {
		return false, nil
	}
	delete(f.convs, id)
	return true, nil
}

func (f *fakeConversations) Send(_ context.Context, m model.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls = append(f.sendCalls, m)
	if f.sendErr != nil {
		return false, f.sendErr
	}
	if f.sendResult != nil && !*f.sendResult {
		return false, nil
	}

	id := conversationKey(m.SenderID, m.ReceiverID)
	c, ok := f.convs[id]
	if !ok {
		c = model.Conversation{ID: id, Participants: []string{m.SenderID, m.ReceiverID}}
	}
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = m.Timestamp
	f.convs[id] = c
	return true, nil
}

func conversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}

// fakeUsers is a static UserDirectory.
type fakeUsers struct {
	users []model.User
	err   error
}

func (f fakeUsers) GetAll(context.Context) ([]model.User, error) {
	return f.users, f.err
}

// recordingNotifier captures notifications raised by a ConversationStore.
type recordingNotifier struct {
	mu   gosync.Mutex
	err  error
	sent []model.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func boolPtr(b bool) *bool { return &b }
