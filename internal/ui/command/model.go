package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-sync/internal/theme"
)

// Command names understood by the palette.
const (
	NameUser    = "user"
	NameAddUser = "adduser"
	NameReload  = "reload"
	NameQuit    = "quit"
)

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name string
	Args []string
}

// Parse splits a palette line into a command. Aliases are folded onto
// their canonical names.
func Parse(line string) (CommandMsg, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandMsg{}, fmt.Errorf("empty command")
	}

	name := strings.ToLower(fields[0])
	args := fields[1:]
	switch name {
	case "user", "switch":
		if len(args) != 1 {
			return CommandMsg{}, fmt.Errorf("usage: user <id>")
		}
		name = NameUser
	case "adduser":
		if len(args) == 0 {
			return CommandMsg{}, fmt.Errorf("usage: adduser <id> [display name]")
		}
		args = []string{args[0], strings.Join(args[1:], " ")}
	case "reload", "refresh", "sync":
		name = NameReload
	case "quit", "q":
		name = NameQuit
	default:
		return CommandMsg{}, fmt.Errorf("unknown command %q", fields[0])
	}
	return CommandMsg{Name: name, Args: args}, nil
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    string
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "user <id> | adduser <id> [name] | reload | quit"
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			cmd, err := Parse(line)
			if err != nil {
				m.err = err.Error()
				return m, nil
			}
			m.err = ""
			m.input.Reset()
			return m, func() tea.Msg {
				return cmd
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Command Palette")
	parts := []string{title, m.input.View()}
	if m.err != "" {
		parts = append(parts, theme.ErrorStyle.Render(m.err))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, parts...)

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input and clears the last error.
func (m *Model) Focus() tea.Cmd {
	m.err = ""
	m.input.Reset()
	return m.input.Focus()
}
