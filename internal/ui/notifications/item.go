package notifications

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/theme"
	"github.com/nhle/inbox-sync/internal/ui"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Title }

// ItemDelegate renders a notification as a headline and a body line.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification

	marker := " "
	titleStyle := theme.DimmedStyle
	if !n.Read {
		marker = theme.BadgeStyle.Render("●")
		titleStyle = theme.UnreadStyle
	}

	typ := n.Type
	if typ == "" {
		typ = "notice"
	}
	badge := theme.NotificationTypeStyle(n.Type).Render(typ)

	age := theme.DimmedStyle.Render(ui.RelativeTime(model.ParseTimestamp(n.CreatedAt), d.now()))

	width := m.Width() - 6
	headline := fmt.Sprintf("%s %s %s  %s", marker, badge, titleStyle.Render(ui.Truncate(n.Title, width/2)), age)
	body := "  " + theme.DimmedStyle.Render(ui.Truncate(n.Message, width))

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}

	fmt.Fprint(w, style.Render(lipgloss.JoinVertical(lipgloss.Left, headline, body)))
}
