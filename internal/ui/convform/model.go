// Package convform is the huh form used to start a conversation.
package convform

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/theme"
)

// SubmitMsg is dispatched when the form is completed.
type SubmitMsg struct {
	UserID string
	// Message is an optional first message; empty means none.
	Message string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	userID  string
	message string
}

// Model is the Bubble Tea model for the new conversation form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	self   string
	users  []model.User
	width  int
	height int
}

// New creates a new conversation form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// SetUsers sets the directory offered as recipients.
func (m *Model) SetUsers(users []model.User) {
	m.users = users
}

// Start initializes the form for the current user self.
func (m *Model) Start(self string) tea.Cmd {
	m.self = self
	m.fb.userID = ""
	m.fb.message = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("New Conversation") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	var recipient huh.Field
	if opts := peerOptions(m.users, m.self); len(opts) > 0 {
		recipient = huh.NewSelect[string]().
			Title("With").
			Options(opts...).
			Value(&m.fb.userID).
			Validate(validateRecipient(m.self))
	} else {
		recipient = huh.NewInput().
			Title("With").
			Placeholder("user id").
			Value(&m.fb.userID).
			Validate(validateRecipient(m.self))
	}

	return huh.NewForm(
		huh.NewGroup(
			recipient,
			huh.NewText().
				Title("Message").
				Placeholder("Optional first message...").
				Value(&m.fb.message),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) handleSubmit() tea.Cmd {
	out := SubmitMsg{
		UserID:  strings.TrimSpace(m.fb.userID),
		Message: strings.TrimSpace(m.fb.message),
	}
	return func() tea.Msg { return out }
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) formHeight() int {
	return max(m.height-4, 10)
}

// peerOptions lists every user except self, ordered by display name.
func peerOptions(users []model.User, self string) []huh.Option[string] {
	peers := make([]model.User, 0, len(users))
	for _, u := range users {
		if u.ID != "" && u.ID != self {
			peers = append(peers, u)
		}
	}
	sort.SliceStable(peers, func(i, j int) bool {
		return strings.ToLower(peers[i].Name()) < strings.ToLower(peers[j].Name())
	})

	opts := make([]huh.Option[string], len(peers))
	for i, u := range peers {
		label := u.Name()
		if label != u.ID {
			label = fmt.Sprintf("%s (%s)", label, u.ID)
		}
		opts[i] = huh.NewOption(label, u.ID)
	}
	return opts
}

func validateRecipient(self string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			return fmt.Errorf("recipient is required")
		case s == self:
			return fmt.Errorf("cannot start a conversation with yourself")
		}
		return nil
	}
}
