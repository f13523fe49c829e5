package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/nhle/inbox-sync/internal/aggregate"
	"github.com/nhle/inbox-sync/internal/keys"
	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/service"
	appsync "github.com/nhle/inbox-sync/internal/sync"
	"github.com/nhle/inbox-sync/internal/theme"
	"github.com/nhle/inbox-sync/internal/ui"
	"github.com/nhle/inbox-sync/internal/ui/command"
	conversationsview "github.com/nhle/inbox-sync/internal/ui/conversations"
	"github.com/nhle/inbox-sync/internal/ui/convform"
	helpview "github.com/nhle/inbox-sync/internal/ui/help"
	notificationsview "github.com/nhle/inbox-sync/internal/ui/notifications"
)

// Action names reported by the root model.
const (
	actionSwitchUser = "switch user"
	actionAddUser    = "add user"
	actionReload     = "reload"
)

// errNoDirectoryWriter is reported when the backend cannot add users.
var errNoDirectoryWriter = errors.New("this backend cannot add users")

// storeChangedMsg is delivered after a sync store changed state.
type storeChangedMsg struct{}

// usersLoadedMsg carries the user directory.
type usersLoadedMsg struct {
	users []model.User
	err   error
}

// conversationStartedMsg reports the outcome of the new conversation form.
type conversationStartedMsg struct {
	conversationID string
	err            error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewTabs ViewState = iota
	ViewHelp
	ViewCommand
	ViewNewConversation
)

// Tab identifies one of the two inbox tabs.
type Tab int

const (
	TabNotifications Tab = iota
	TabConversations
)

// DirectoryWriter adds users to the directory. Only the local backend
// implements it.
type DirectoryWriter interface {
	UpsertUser(ctx context.Context, u model.User) error
}

// Deps are the collaborators of the root model.
type Deps struct {
	Notifications *appsync.NotificationStore
	Conversations *appsync.ConversationStore
	Users         service.UserDirectory
	// Directory is optional; without it the adduser command is refused.
	Directory DirectoryWriter
	// Changes must be the feed whose Notify was passed to both stores
	// through appsync.WithOnChange.
	Changes *ChangeFeed
	UserID  string
	Backend string
	Logger  *slog.Logger
}

// Model is the root Bubble Tea model that manages the tabs, overlays and
// access to the sync stores.
type Model struct {
	ctx  context.Context
	deps Deps
	keys *keys.KeyMap

	currentView ViewState
	activeTab   Tab
	layout      ui.Layout
	ready       bool

	notifications notificationsview.Model
	conversations conversationsview.Model
	helpView      helpview.Model
	commandView   command.Model
	convForm      convform.Model
	help          help.Model

	userID      string
	notifUnread int
	convUnread  int
	syncing     bool
	storeErr    string
	statusMsg   string
	statusIsErr bool
}

// New creates the root application model. ctx bounds every store call
// started from the UI.
func New(ctx context.Context, deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Changes == nil {
		deps.Changes = NewChangeFeed()
	}
	k := keys.DefaultKeyMap()

	return Model{
		ctx:           ctx,
		deps:          deps,
		keys:          k,
		currentView:   ViewTabs,
		notifications: notificationsview.New(ctx, deps.Notifications, k, 80, 20),
		conversations: conversationsview.New(ctx, deps.Conversations, k, 80, 20),
		helpView:      helpview.New(k, 80, 20),
		commandView:   command.New(80, 20),
		convForm:      convform.New(80, 20),
		help:          help.New(),
		userID:        strings.TrimSpace(deps.UserID),
	}
}

// Init selects the configured user, loads the directory and starts
// listening for store changes.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.deps.Changes.wait(),
		m.loadUsers(),
	}
	if m.userID != "" {
		cmds = append(cmds, m.switchUser(m.userID))
	} else {
		cmds = append(cmds, func() tea.Msg {
			return ui.ActionResultMsg{
				Action: actionSwitchUser,
				Err:    errors.New("no user configured; use :user <id>"),
			}
		})
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.notifications.SetSize(w, h)
		m.conversations.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.convForm.SetSize(w, h)
		m.help.Width = w
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case storeChangedMsg:
		cmd := m.refresh()
		return m, tea.Batch(cmd, m.deps.Changes.wait())

	case usersLoadedMsg:
		if msg.err != nil {
			m.deps.Logger.Warn("loading user directory failed", "error", msg.err)
			return m, nil
		}
		m.conversations.SetUsers(msg.users)
		m.convForm.SetUsers(msg.users)
		return m, nil

	case ui.ActionResultMsg:
		m.setResult(msg.Action, msg.Err)
		if msg.Action == actionAddUser && msg.Err == nil {
			return m, m.loadUsers()
		}
		return m, nil

	case conversationStartedMsg:
		m.setResult("start conversation", msg.err)
		if msg.conversationID == "" {
			return m, nil
		}
		m.activeTab = TabConversations
		refreshCmd := m.refresh()
		return m, tea.Batch(refreshCmd, m.conversations.Open(msg.conversationID))

	case notificationsview.OpenConversationMsg:
		m.activeTab = TabConversations
		refreshCmd := m.refresh()
		return m, tea.Batch(refreshCmd, m.conversations.Open(msg.ConversationID))

	case convform.SubmitMsg:
		m.currentView = ViewTabs
		return m, m.startConversation(msg.UserID, msg.Message)

	case convform.CancelMsg:
		m.currentView = ViewTabs
		return m, nil

	case command.CommandMsg:
		m.currentView = ViewTabs
		return m, m.executeCommand(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}

	return m.updateActiveView(msg)
}

// handleKey routes a key press according to the active view.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.currentView {
	case ViewNewConversation:
		return m.updateActiveView(msg)

	case ViewCommand:
		if key.Matches(msg, m.keys.Back) {
			m.currentView = ViewTabs
			return m, nil
		}
		return m.updateActiveView(msg)

	case ViewHelp:
		if key.Matches(msg, m.keys.Help, m.keys.Back) {
			m.currentView = ViewTabs
		}
		return m, nil
	}

	// The reply input owns the keyboard while composing.
	if m.activeTab == TabConversations && m.conversations.Capturing() {
		return m.updateActiveView(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.helpView.SetContext(m.activeTab == TabConversations, m.deps.Directory != nil)
		m.currentView = ViewHelp
		return m, nil

	case msg.String() == ":":
		m.currentView = ViewCommand
		return m, m.commandView.Focus()

	case key.Matches(msg, m.keys.NextTab):
		if m.activeTab == TabNotifications {
			m.activeTab = TabConversations
		} else {
			m.activeTab = TabNotifications
		}
		return m, nil

	case key.Matches(msg, m.keys.NewConversation):
		if m.userID == "" {
			return m, nil
		}
		m.currentView = ViewNewConversation
		return m, m.convForm.Start(m.userID)
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewTabs:
		if m.activeTab == TabNotifications {
			m.notifications, cmd = m.notifications.Update(msg)
		} else {
			m.conversations, cmd = m.conversations.Update(msg)
		}
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewNewConversation:
		m.convForm, cmd = m.convForm.Update(msg)
	}

	return m, cmd
}

// refresh pulls fresh snapshots from both stores into the views.
func (m *Model) refresh() tea.Cmd {
	ns := m.deps.Notifications.State()
	cs := m.deps.Conversations.State()

	m.notifUnread = aggregate.UnreadNotifications(ns.Notifications)
	m.convUnread = aggregate.TotalUnreadMessages(cs.Conversations, cs.UserID)
	m.syncing = ns.IsLoading || cs.IsLoading
	m.storeErr = ns.Err
	if m.storeErr == "" {
		m.storeErr = cs.Err
	}

	return tea.Batch(
		m.notifications.SetState(ns),
		m.conversations.SetState(cs),
	)
}

// setResult records the outcome of an action for the status bar.
func (m *Model) setResult(action string, err error) {
	if err == nil {
		if m.statusIsErr {
			m.statusMsg = ""
			m.statusIsErr = false
		}
		return
	}
	m.deps.Logger.Warn("action failed", "action", action, "user", m.userID, "error", err)
	m.statusMsg = fmt.Sprintf("%s failed: %v", action, err)
	m.statusIsErr = true
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.syncStatus())
	tabs := m.layout.RenderTabs([]ui.Tab{
		{Label: "Notifications", Unread: m.notifUnread},
		{Label: "Conversations", Unread: m.convUnread},
	}, int(m.activeTab))
	statusBar := m.layout.RenderStatusBar(m.statusLine())

	return m.layout.RenderWithFrame(header, tabs, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewNewConversation:
		return m.convForm.View()
	}
	if m.activeTab == TabConversations {
		return m.conversations.View()
	}
	return m.notifications.View()
}

func (m Model) headerTitle() string {
	title := "Inbox"
	if m.userID != "" {
		title += " · " + m.userID
	}
	if total := m.notifUnread + m.convUnread; total > 0 {
		title = fmt.Sprintf("%s [%d new]", title, total)
	}
	return title
}

// syncStatus returns a short string describing the combined store state.
func (m Model) syncStatus() string {
	switch {
	case m.syncing:
		return m.deps.Backend + " · syncing"
	case m.storeErr != "":
		return m.deps.Backend + " · ⚠ " + m.storeErr
	default:
		return m.deps.Backend + " · idle"
	}
}

// statusLine returns the last error or keyboard shortcut hints.
func (m Model) statusLine() string {
	if m.statusMsg != "" && m.currentView == ViewTabs {
		return theme.ErrorStyle.Render(m.statusMsg)
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewNewConversation:
		return "enter submit | esc cancel"
	}

	if m.activeTab == TabConversations && m.conversations.InThread() {
		if m.conversations.Capturing() {
			return "enter send | esc stop writing"
		}
		return "c reply | j/k scroll | R reload | esc back"
	}
	return m.help.ShortHelpView(m.keys.ShortHelp())
}

// loadUsers returns a command that fetches the user directory.
func (m Model) loadUsers() tea.Cmd {
	ctx, users := m.ctx, m.deps.Users
	if users == nil {
		return nil
	}
	return func() tea.Msg {
		list, err := users.GetAll(ctx)
		return usersLoadedMsg{users: list, err: err}
	}
}

// switchUser points both stores at userID. The stores load concurrently.
func (m *Model) switchUser(userID string) tea.Cmd {
	m.userID = userID
	ctx, ns, cs := m.ctx, m.deps.Notifications, m.deps.Conversations
	return func() tea.Msg {
		var wg conc.WaitGroup
		wg.Go(func() { ns.SetUser(ctx, userID) })
		wg.Go(func() { cs.SetUser(ctx, userID) })
		wg.Wait()
		return ui.ActionResultMsg{Action: actionSwitchUser}
	}
}

// reloadAll refetches both stores concurrently.
func (m Model) reloadAll() tea.Cmd {
	ctx, ns, cs := m.ctx, m.deps.Notifications, m.deps.Conversations
	return func() tea.Msg {
		p := pool.New().WithErrors().WithContext(ctx)
		p.Go(ns.Load)
		p.Go(cs.Load)
		return ui.ActionResultMsg{Action: actionReload, Err: p.Wait()}
	}
}

// startConversation creates (or reuses) the conversation with userID and
// sends the optional first message.
func (m Model) startConversation(userID, message string) tea.Cmd {
	ctx, cs := m.ctx, m.deps.Conversations
	return func() tea.Msg {
		conv, err := cs.CreateConversation(ctx, userID)
		if err != nil {
			return conversationStartedMsg{err: err}
		}
		if message != "" {
			err = cs.SendMessage(ctx, userID, message)
		}
		return conversationStartedMsg{conversationID: conv.ID, err: err}
	}
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(cmd command.CommandMsg) tea.Cmd {
	switch cmd.Name {
	case command.NameUser:
		return m.switchUser(cmd.Args[0])
	case command.NameAddUser:
		return m.addUser(model.User{ID: cmd.Args[0], DisplayName: cmd.Args[1]})
	case command.NameReload:
		return m.reloadAll()
	case command.NameQuit:
		return tea.Quit
	default:
		return nil
	}
}

func (m Model) addUser(u model.User) tea.Cmd {
	ctx, dir := m.ctx, m.deps.Directory
	return func() tea.Msg {
		if dir == nil {
			return ui.ActionResultMsg{Action: actionAddUser, Err: errNoDirectoryWriter}
		}
		return ui.ActionResultMsg{Action: actionAddUser, Err: dir.UpsertUser(ctx, u)}
	}
}
