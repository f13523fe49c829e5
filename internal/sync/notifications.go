package sync

import (
	"context"
	"strings"
	gosync "sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/nhle/inbox-sync/internal/aggregate"
	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/normalize"
	"github.com/nhle/inbox-sync/internal/service"
)

// NotificationState is a snapshot of a NotificationStore.
type NotificationState struct {
	UserID        string
	Notifications []model.Notification
	IsLoading     bool
	// Err is the message of the last failed operation, or "".
	Err string
}

// NotificationStore keeps the notification list of one user in sync with
// a NotificationService.
//
// The list is replaced wholesale by every push delivery and every Load;
// whichever lands last wins. Mutations go to the service first and patch
// local state only after the service accepted them.
//
// Lifecycle: SetUser opens exactly one push subscription for the user
// (cancelling the previous one); Close cancels it for good. A generation
// counter bumped on both guarantees that deliveries or loads started for a
// previous user never touch current state.
type NotificationStore struct {
	svc  service.NotificationService
	opts options

	mu      gosync.Mutex
	userID  string
	gen     uint64
	closed  bool
	sub     service.Subscription
	items   []model.Notification
	loading bool
	err     string
}

// NewNotificationStore creates a store with no user. Call SetUser to start
// syncing.
func NewNotificationStore(svc service.NotificationService, opts ...Option) *NotificationStore {
	return &NotificationStore{
		svc:   svc,
		opts:  buildOptions(opts),
		items: []model.Notification{},
	}
}

// SetUser switches the store to userID. The previous subscription is
// cancelled and state is reset. For a non-empty id the store enters the
// loading state and subscribes; if the subscription cannot be opened it
// falls back to a single Load. An empty id leaves the store empty and idle.
func (s *NotificationStore) SetUser(ctx context.Context, userID string) {
	userID = strings.TrimSpace(userID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.sub
	s.sub = nil
	s.gen++
	gen := s.gen
	s.userID = userID
	s.items = []model.Notification{}
	s.err = ""
	s.loading = userID != ""
	s.mu.Unlock()

	s.cancel(prev)
	s.opts.changed()

	if userID == "" {
		return
	}
	s.subscribe(ctx, gen, userID)
}

func (s *NotificationStore) subscribe(ctx context.Context, gen uint64, userID string) {
	sub, err := s.svc.Subscribe(ctx, userID, func(payload any) {
		s.applyBatch(gen, payload)
	})
	if err != nil {
		s.opts.logger.Warn("notification subscription failed, falling back to load",
			"user", userID, "error", err)
		_ = s.load(ctx, gen, userID)
		return
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		// The user changed while the subscription was being set up.
		s.mu.Unlock()
		s.cancel(sub)
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

// applyBatch replaces the list with a push delivery.
func (s *NotificationStore) applyBatch(gen uint64, payload any) {
	items := normalize.Notifications(payload)

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.items = items
	s.loading = false
	s.mu.Unlock()

	s.opts.changed()
}

// Load fetches the full notification list once and replaces local state.
// On failure the list is emptied and the error recorded.
func (s *NotificationStore) Load(ctx context.Context) error {
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

func (s *NotificationStore) load(ctx context.Context, gen uint64, userID string) error {
	payload, err := s.svc.GetAll(ctx, userID)

	var opErr error
	var items []model.Notification
	if err != nil {
		opErr = &OpError{Op: "load notifications", Err: err}
		s.opts.logger.Error("loading notifications", "user", userID, "error", err)
	} else {
		items = normalize.Notifications(payload)
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return opErr
	}
	s.loading = false
	if opErr != nil {
		s.items = []model.Notification{}
		s.err = opErr.Error()
	} else {
		s.items = items
		s.err = ""
	}
	s.mu.Unlock()

	s.opts.changed()
	return opErr
}

// MarkAsRead marks one notification read remotely, then locally.
func (s *NotificationStore) MarkAsRead(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Field: "notification id", Message: "is required"}
	}
	gen := s.generation()

	if err := s.svc.MarkAsRead(ctx, id); err != nil {
		return s.fail(gen, "mark notification as read", err)
	}

	s.patch(gen, func(items []model.Notification) []model.Notification {
		for i := range items {
			if items[i].ID == id {
				items[i].Read = true
			}
		}
		return items
	})
	return nil
}

// MarkAllAsRead marks every currently unread notification read. The remote
// calls run concurrently; local flags flip only after all of them
// succeeded. If any call fails the whole operation fails and local state is
// left untouched, even though some remote records may already be read.
func (s *NotificationStore) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	ids := aggregate.UnreadIDs(s.items)
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	p := pool.New().WithErrors()
	for _, id := range ids {
		p.Go(func() error {
			return s.svc.MarkAsRead(ctx, id)
		})
	}
	if err := p.Wait(); err != nil {
		return s.fail(gen, "mark all notifications as read", err)
	}

	marked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	s.patch(gen, func(items []model.Notification) []model.Notification {
		for i := range items {
			if _, ok := marked[items[i].ID]; ok {
				items[i].Read = true
			}
		}
		return items
	})
	return nil
}

// DeleteNotification removes one notification remotely, then locally.
func (s *NotificationStore) DeleteNotification(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Field: "notification id", Message: "is required"}
	}
	gen := s.generation()

	if err := s.svc.Delete(ctx, id); err != nil {
		return s.fail(gen, "delete notification", err)
	}

	s.patch(gen, func(items []model.Notification) []model.Notification {
		out := items[:0]
		for _, n := range items {
			if n.ID != id {
				out = append(out, n)
			}
		}
		return out
	})
	return nil
}

// ClearAllNotifications removes every notification of the current user
// remotely, then empties the local list.
func (s *NotificationStore) ClearAllNotifications(ctx context.Context) error {
	s.mu.Lock()
	userID, gen := s.userID, s.gen
	s.mu.Unlock()

	if userID == "" {
		return &ValidationError{Field: "user id", Message: "is required"}
	}

	if err := s.svc.ClearAll(ctx, userID); err != nil {
		return s.fail(gen, "clear notifications", err)
	}

	s.patch(gen, func([]model.Notification) []model.Notification {
		return []model.Notification{}
	})
	return nil
}

// CreateNotification stores a notification remotely. It is not inserted
// locally: the push subscription delivers it, which avoids a duplicate
// entry. A missing ID or CreatedAt is filled in.
func (s *NotificationStore) CreateNotification(ctx context.Context, n model.Notification) error {
	n, err := s.prepare(n)
	if err != nil {
		return err
	}

	gen := s.generation()
	if err := s.svc.Create(ctx, n); err != nil {
		return s.fail(gen, "create notification", err)
	}
	return nil
}

// Notify raises a notification on behalf of another operation. It behaves
// like CreateNotification but a transport error is only returned, never
// recorded as the store error.
func (s *NotificationStore) Notify(ctx context.Context, n model.Notification) error {
	n, err := s.prepare(n)
	if err != nil {
		return err
	}
	if err := s.svc.Create(ctx, n); err != nil {
		return &OpError{Op: "create notification", Err: err}
	}
	return nil
}

func (s *NotificationStore) prepare(n model.Notification) (model.Notification, error) {
	n.UserID = strings.TrimSpace(n.UserID)
	n.Type = strings.TrimSpace(n.Type)
	if n.UserID == "" {
		return n, &ValidationError{Field: "recipient", Message: "is required"}
	}
	if n.Type == "" {
		return n, &ValidationError{Field: "notification type", Message: "is required"}
	}
	if n.ID == "" {
		n.ID = s.opts.newID()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = model.Timestamp(s.opts.now())
	}
	return n, nil
}

// UnreadCount returns the number of unread notifications in local state.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregate.UnreadNotifications(s.items)
}

// ByType returns the local notifications of the given type.
func (s *NotificationStore) ByType(typ string) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregate.NotificationsByType(s.items, typ)
}

// State returns a snapshot of the store.
func (s *NotificationStore) State() NotificationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.Notification, len(s.items))
	copy(items, s.items)
	return NotificationState{
		UserID:        s.userID,
		Notifications: items,
		IsLoading:     s.loading,
		Err:           s.err,
	}
}

// Close cancels the active subscription. The store ignores every later
// delivery and SetUser call.
func (s *NotificationStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.cancel(sub)
}

func (s *NotificationStore) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// patch applies fn to the list if the store still belongs to generation gen.
func (s *NotificationStore) patch(gen uint64, fn func([]model.Notification) []model.Notification) {
	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.items = fn(s.items)
	s.mu.Unlock()

	s.opts.changed()
}

// fail records a transport error as the store error and returns it.
func (s *NotificationStore) fail(gen uint64, op string, err error) error {
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

func (s *NotificationStore) cancel(sub service.Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Cancel(); err != nil {
		s.opts.logger.Warn("cancelling notification subscription", "error", err)
	}
}
