package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/service"
	appsync "github.com/nhle/inbox-sync/internal/sync"
)

type notificationRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Type      string `db:"type"`
	Title     string `db:"title"`
	Message   string `db:"message"`
	Data      string `db:"data"`
	Read      int    `db:"read"`
	CreatedAt string `db:"created_at"`
}

func (r notificationRow) toModel() (model.Notification, error) {
	n := model.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      r.Type,
		Title:     r.Title,
		Message:   r.Message,
		Read:      r.Read != 0,
		CreatedAt: r.CreatedAt,
	}
	if r.Data != "" {
		if err := json.Unmarshal([]byte(r.Data), &n.Data); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling data for notification %s: %w", r.ID, err)
		}
	}
	return n, nil
}

// ListNotifications returns every notification of userID, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, type, title, message, data, read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// CreateNotification inserts a new notification record. Generates a UUID if
// ID is empty.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n model.Notification) error {
	if strings.TrimSpace(n.UserID) == "" || strings.TrimSpace(n.Type) == "" {
		return fmt.Errorf("notification user and type must not be empty")
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = model.Timestamp(time.Now())
	}

	data := ""
	if n.Data != nil {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshaling notification data: %w", err)
		}
		data = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, data,
		boolToInt(n.Read), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	s.refresh(n.UserID)
	return nil
}

// MarkNotificationRead marks a single notification as read. Unknown ids are
// ignored.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	owner, err := s.notificationOwner(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}

	s.refresh(owner)
	return nil
}

// DeleteNotification removes a single notification. Unknown ids are
// ignored.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id string) error {
	owner, err := s.notificationOwner(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}

	s.refresh(owner)
	return nil
}

// ClearNotifications removes every notification of userID.
func (s *SQLiteStore) ClearNotifications(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("clearing notifications for %s: %w", userID, err)
	}

	s.refresh(userID)
	return nil
}

func (s *SQLiteStore) notificationOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := s.db.GetContext(ctx, &owner, "SELECT user_id FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up notification %s: %w", id, err)
	}
	return owner, nil
}

// SubscribeNotifications starts a poller delivering the notification list
// of userID immediately, every poll interval and after every local write
// affecting that user.
func (s *SQLiteStore) SubscribeNotifications(
	_ context.Context,
	userID string,
	onBatch service.BatchHandler,
) (service.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("subscribing to notifications: user id must not be empty")
	}

	p := appsync.NewPoller(
		func(ctx context.Context) (any, error) {
			return s.ListNotifications(ctx, userID)
		},
		onBatch,
		appsync.PollerOptions{
			Interval: s.pollInterval,
			Logger:   s.logger.With("user", userID),
		},
	)

	s.mu.Lock()
	set, ok := s.pollers[userID]
	if !ok {
		set = make(map[*appsync.Poller]struct{})
		s.pollers[userID] = set
	}
	set[p] = struct{}{}
	s.mu.Unlock()

	p.Start()

	return service.SubscriptionFunc(func() error {
		s.mu.Lock()
		if set, ok := s.pollers[userID]; ok {
			delete(set, p)
			if len(set) == 0 {
				delete(s.pollers, userID)
			}
		}
		s.mu.Unlock()
		return p.Cancel()
	}), nil
}

// refresh triggers an immediate poll for every subscription of userID.
func (s *SQLiteStore) refresh(userID string) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.pollers[userID] {
		p.Refresh()
	}
}
