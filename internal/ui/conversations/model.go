// Package conversations renders the conversation tab: the conversation
// list, an open thread and the reply input.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-sync/internal/aggregate"
	"github.com/nhle/inbox-sync/internal/keys"
	"github.com/nhle/inbox-sync/internal/model"
	appsync "github.com/nhle/inbox-sync/internal/sync"
	"github.com/nhle/inbox-sync/internal/theme"
	"github.com/nhle/inbox-sync/internal/ui"
)

// Action names reported in ui.ActionResultMsg.
const (
	ActionMarkRead = "mark messages read"
	ActionDelete   = "delete conversation"
	ActionSend     = "send message"
	ActionReload   = "reload conversations"
)

// ErrNotDeleted is reported when the service declines a delete.
var ErrNotDeleted = errors.New("conversation was not deleted")

// Store is the part of appsync.ConversationStore the tab drives.
type Store interface {
	MarkMessagesAsRead(ctx context.Context, conversationID string) error
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)
	SendMessage(ctx context.Context, receiverID, content string) error
	Load(ctx context.Context) error
}

// Model is the conversation tab component.
type Model struct {
	ctx    context.Context
	store  Store
	keys   *keys.KeyMap
	list   list.Model
	thread viewport.Model
	input  textinput.Model

	userID  string
	names   map[string]string
	convs   []model.Conversation
	loading bool

	// openID is the conversation shown in the thread view, or "".
	openID    string
	composing bool

	now    func() time.Time
	width  int
	height int
}

// New creates a new conversation tab model.
func New(ctx context.Context, s Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{now: time.Now}, width, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ShowFullHelp.SetEnabled(false)

	ti := textinput.New()
	ti.Placeholder = "write a reply..."
	ti.Prompt = "> "
	ti.CharLimit = 2000

	m := Model{
		ctx:    ctx,
		store:  s,
		keys:   k,
		list:   l,
		thread: viewport.New(width, height),
		input:  ti,
		names:  map[string]string{},
		now:    time.Now,
	}
	m.SetSize(width, height)
	return m
}

// SetUsers records display names used for peers and message senders.
func (m *Model) SetUsers(users []model.User) {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name()
	}
	m.names = names
	m.rebuild()
}

// SetState replaces the rendered conversations with a store snapshot.
// An open thread whose conversation disappeared is closed.
func (m *Model) SetState(st appsync.ConversationState) tea.Cmd {
	if st.UserID != m.userID {
		m.closeThread()
	}
	m.userID = st.UserID
	m.convs = st.Conversations
	m.loading = st.IsLoading

	if m.openID != "" {
		if _, ok := aggregate.FindConversationByID(m.convs, m.openID); !ok {
			m.closeThread()
		}
	}
	return m.rebuild()
}

func (m *Model) rebuild() tea.Cmd {
	selected, _ := m.Selected()

	items := make([]list.Item, len(m.convs))
	cursor := -1
	for i, c := range m.convs {
		items[i] = Item{
			Conversation: c,
			Peer:         m.name(c.OtherParticipant(m.userID)),
			Unread:       aggregate.UnreadMessages(c, m.userID),
		}
		if c.ID == selected.ID {
			cursor = i
		}
	}

	cmd := m.list.SetItems(items)
	if cursor >= 0 {
		m.list.Select(cursor)
	}
	m.renderThread()
	return cmd
}

func (m Model) name(userID string) string {
	if userID == "" {
		return "unknown"
	}
	if n, ok := m.names[userID]; ok && n != "" {
		return n
	}
	return userID
}

// Selected returns the conversation under the cursor.
func (m Model) Selected() (model.Conversation, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Conversation{}, false
	}
	return it.Conversation, true
}

// Len returns the number of rendered conversations.
func (m Model) Len() int {
	return len(m.list.Items())
}

// InThread reports whether a conversation is open.
func (m Model) InThread() bool {
	return m.openID != ""
}

// Capturing reports whether the reply input owns the keyboard.
func (m Model) Capturing() bool {
	return m.composing
}

// Open shows the conversation with id and marks its messages read.
func (m *Model) Open(id string) tea.Cmd {
	c, ok := aggregate.FindConversationByID(m.convs, id)
	if !ok {
		return nil
	}
	m.openID = c.ID
	m.renderThread()
	m.thread.GotoBottom()

	if aggregate.UnreadMessages(c, m.userID) == 0 {
		return nil
	}
	convID := c.ID
	return m.run(ActionMarkRead, func(ctx context.Context) error {
		return m.store.MarkMessagesAsRead(ctx, convID)
	})
}

func (m *Model) compose() tea.Cmd {
	m.composing = true
	return m.input.Focus()
}

func (m *Model) closeThread() {
	m.openID = ""
	m.composing = false
	m.input.Blur()
	m.input.Reset()
}

// Update handles messages for the conversation tab.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, isKey := msg.(tea.KeyMsg)
	if !isKey {
		var cmd tea.Cmd
		if m.InThread() {
			m.thread, cmd = m.thread.Update(msg)
		} else {
			m.list, cmd = m.list.Update(msg)
		}
		return m, cmd
	}

	switch {
	case m.composing:
		return m.handleComposeKeys(keyMsg)
	case m.InThread():
		return m.handleThreadKeys(keyMsg)
	default:
		return m.handleListKeys(keyMsg)
	}
}

func (m Model) handleListKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		c, ok := m.Selected()
		if !ok {
			return m, nil
		}
		cmd := m.Open(c.ID)
		return m, cmd

	case key.Matches(msg, m.keys.Compose):
		c, ok := m.Selected()
		if !ok {
			return m, nil
		}
		openCmd := m.Open(c.ID)
		return m, tea.Batch(openCmd, m.compose())

	case key.Matches(msg, m.keys.Delete):
		c, ok := m.Selected()
		if !ok {
			return m, nil
		}
		convID := c.ID
		return m, m.run(ActionDelete, func(ctx context.Context) error {
			deleted, err := m.store.DeleteConversation(ctx, convID)
			if err != nil {
				return err
			}
			if !deleted {
				return ErrNotDeleted
			}
			return nil
		})

	case key.Matches(msg, m.keys.Reload):
		return m, m.Reload()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleThreadKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.closeThread()
		return m, nil

	case key.Matches(msg, m.keys.Compose):
		return m, m.compose()

	case key.Matches(msg, m.keys.Reload):
		return m, m.Reload()
	}

	var cmd tea.Cmd
	m.thread, cmd = m.thread.Update(msg)
	return m, cmd
}

func (m Model) handleComposeKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.composing = false
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		content := strings.TrimSpace(m.input.Value())
		c, ok := aggregate.FindConversationByID(m.convs, m.openID)
		if content == "" || !ok {
			return m, nil
		}
		m.input.Reset()
		receiver := c.OtherParticipant(m.userID)
		if receiver == "" {
			// Conversation with oneself.
			receiver = m.userID
		}
		return m, m.run(ActionSend, func(ctx context.Context) error {
			return m.store.SendMessage(ctx, receiver, content)
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Reload returns a command that refetches all conversations.
func (m Model) Reload() tea.Cmd {
	return m.run(ActionReload, m.store.Load)
}

func (m Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return ui.ActionResultMsg{Action: action, Err: fn(ctx)}
	}
}

// renderThread refreshes the viewport with the open conversation.
func (m *Model) renderThread() {
	if m.openID == "" {
		return
	}
	c, ok := aggregate.FindConversationByID(m.convs, m.openID)
	if !ok {
		return
	}

	atBottom := m.thread.AtBottom()
	var b strings.Builder
	if len(c.Messages) == 0 {
		b.WriteString(theme.DimmedStyle.Render("No messages yet. Press c to write one."))
	}
	for i, msg := range c.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg))
	}
	m.thread.SetContent(b.String())
	if atBottom {
		m.thread.GotoBottom()
	}
}

func (m Model) renderMessage(msg model.Message) string {
	senderStyle := theme.UnreadStyle
	if msg.SenderID == m.userID {
		senderStyle = theme.OwnMessageStyle
	}

	header := senderStyle.Render(m.name(msg.SenderID))
	if age := ui.RelativeTime(model.ParseTimestamp(msg.Timestamp), m.now()); age != "" {
		header += "  " + theme.DimmedStyle.Render(age)
	}
	if !msg.Read && msg.ReceiverID == m.userID {
		header += " " + theme.BadgeStyle.Render("●")
	}

	body := lipgloss.NewStyle().Width(max(m.width-6, 10)).Render(msg.Content)
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

// View renders the conversation tab.
func (m Model) View() string {
	if m.InThread() {
		return m.viewThread()
	}
	if m.Len() == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) viewThread() string {
	c, _ := aggregate.FindConversationByID(m.convs, m.openID)
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		Render(fmt.Sprintf("Conversation with %s", m.name(c.OtherParticipant(m.userID))))

	parts := []string{title, m.thread.View()}
	if m.composing {
		parts = append(parts, m.input.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.loading {
		return style.Render("Loading conversations...")
	}
	return style.Render("No conversations yet.\n\nPress n to start one.")
}

// SetSize updates the list, thread and input dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)

	// Title line above, reply input below.
	m.thread.Width = width
	m.thread.Height = max(height-2, 1)
	m.input.Width = max(width-4, 10)
	m.renderThread()
}
