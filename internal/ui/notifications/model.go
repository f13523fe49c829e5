// Package notifications renders the notification tab and turns its key
// presses into NotificationStore operations.
package notifications

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-sync/internal/keys"
	"github.com/nhle/inbox-sync/internal/model"
	appsync "github.com/nhle/inbox-sync/internal/sync"
	"github.com/nhle/inbox-sync/internal/theme"
	"github.com/nhle/inbox-sync/internal/ui"
)

// Action names reported in ui.ActionResultMsg.
const (
	ActionMarkRead    = "mark read"
	ActionMarkAllRead = "mark all read"
	ActionDelete      = "delete notification"
	ActionClearAll    = "clear notifications"
	ActionReload      = "reload notifications"
)

// OpenConversationMsg asks the root model to show a conversation. It is
// emitted when a message notification is selected.
type OpenConversationMsg struct {
	ConversationID string
}

// Store is the part of appsync.NotificationStore the tab drives.
type Store interface {
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
	ClearAllNotifications(ctx context.Context) error
	Load(ctx context.Context) error
}

// Model is the notification list view component.
type Model struct {
	ctx     context.Context
	store   Store
	keys    *keys.KeyMap
	list    list.Model
	loading bool
	width   int
	height  int
}

// New creates a new notification list model.
func New(ctx context.Context, s Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{now: time.Now}, width, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ShowFullHelp.SetEnabled(false)

	return Model{
		ctx:    ctx,
		store:  s,
		keys:   k,
		list:   l,
		width:  width,
		height: height,
	}
}

// SetState replaces the rendered list with a store snapshot, keeping the
// cursor on the same notification when it survives.
func (m *Model) SetState(st appsync.NotificationState) tea.Cmd {
	selected, _ := m.Selected()

	items := make([]list.Item, len(st.Notifications))
	cursor := -1
	for i, n := range st.Notifications {
		items[i] = Item{Notification: n}
		if n.ID != "" && n.ID == selected.ID {
			cursor = i
		}
	}
	m.loading = st.IsLoading

	cmd := m.list.SetItems(items)
	if cursor >= 0 {
		m.list.Select(cursor)
	}
	return cmd
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Len returns the number of rendered notifications.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Update handles messages for the notification list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, m.open(n)

		case key.Matches(msg, m.keys.MarkRead):
			n, ok := m.Selected()
			if !ok || n.Read {
				return m, nil
			}
			id := n.ID
			return m, m.run(ActionMarkRead, func(ctx context.Context) error {
				return m.store.MarkAsRead(ctx, id)
			})

		case key.Matches(msg, m.keys.MarkAllRead):
			return m, m.run(ActionMarkAllRead, m.store.MarkAllAsRead)

		case key.Matches(msg, m.keys.Delete):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			id := n.ID
			return m, m.run(ActionDelete, func(ctx context.Context) error {
				return m.store.DeleteNotification(ctx, id)
			})

		case key.Matches(msg, m.keys.ClearAll):
			if m.Len() == 0 {
				return m, nil
			}
			return m, m.run(ActionClearAll, m.store.ClearAllNotifications)

		case key.Matches(msg, m.keys.Reload):
			return m, m.Reload()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// open marks n read and, for message notifications, asks for the
// conversation it points at.
func (m Model) open(n model.Notification) tea.Cmd {
	var cmds []tea.Cmd
	if !n.Read {
		id := n.ID
		cmds = append(cmds, m.run(ActionMarkRead, func(ctx context.Context) error {
			return m.store.MarkAsRead(ctx, id)
		}))
	}
	if convID, ok := n.Data["conversationId"].(string); ok && convID != "" {
		cmds = append(cmds, func() tea.Msg {
			return OpenConversationMsg{ConversationID: convID}
		})
	}
	return tea.Batch(cmds...)
}

// Reload returns a command that refetches the notification list.
func (m Model) Reload() tea.Cmd {
	return m.run(ActionReload, m.store.Load)
}

func (m Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return ui.ActionResultMsg{Action: action, Err: fn(ctx)}
	}
}

// View renders the notification list view.
func (m Model) View() string {
	if m.Len() == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.loading {
		return style.Render("Loading notifications...")
	}
	return style.Render("No notifications.\n\nYou're all caught up.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
