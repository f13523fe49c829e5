package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-sync/internal/keys"
	"github.com/nhle/inbox-sync/internal/theme"
)

// paletteCommand is one entry of the ":" command palette reference.
type paletteCommand struct {
	usage string
	desc  string
	// localOnly commands need a backend that can write the user directory.
	localOnly bool
}

var paletteCommands = []paletteCommand{
	{usage: "user <id>", desc: "switch the signed-in user"},
	{usage: "adduser <id> [name]", desc: "add a user to the directory", localOnly: true},
	{usage: "reload", desc: "refetch notifications and conversations"},
	{usage: "quit", desc: "exit"},
}

// Model is the help overlay. The section of the tab it was opened from
// is listed first.
type Model struct {
	keys          *keys.KeyMap
	help          help.Model
	conversations bool
	canAddUsers   bool
	width         int
	height        int
}

// New creates a help overlay for k.
func New(k *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   k,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetContext records the tab the overlay was opened from and whether the
// backend accepts new users.
func (m *Model) SetContext(conversations, canAddUsers bool) {
	m.conversations = conversations
	m.canAddUsers = canAddUsers
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	notes := m.section("Notifications", m.keys.NotificationKeys())
	convs := m.section("Conversations", m.keys.ConversationKeys())
	first, second := notes, convs
	if m.conversations {
		first, second = convs, notes
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Keyboard Shortcuts"),
		first,
		second,
		m.section("Everywhere", m.keys.GlobalKeys()),
		m.commands(),
	)

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

func (m Model) section(title string, bindings []key.Binding) string {
	heading := theme.BadgeStyle.Render(title)
	return lipgloss.JoinVertical(lipgloss.Left, heading, m.help.ShortHelpView(bindings), "")
}

func (m Model) commands() string {
	var b strings.Builder
	b.WriteString(theme.BadgeStyle.Render("Commands (press :)"))
	for _, c := range paletteCommands {
		line := fmt.Sprintf("  :%-22s %s", c.usage, c.desc)
		if c.localOnly && !m.canAddUsers {
			line = theme.DimmedStyle.Render(line + " (local backend only)")
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
