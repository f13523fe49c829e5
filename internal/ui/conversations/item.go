package conversations

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

// Item is a conversation as seen by the current user.
type Item struct {
	Conversation model.Conversation
	// Peer is the display name of the other participant.
	Peer   string
	Unread int
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Peer }

// lastMessage returns the newest message, if any.
func (i Item) lastMessage() (model.Message, bool) {
	msgs := i.Conversation.Messages
	if len(msgs) == 0 {
		return model.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// ItemDelegate renders a conversation as a peer line and a preview line.
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

// Render draws a single conversation.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}

	peerStyle := theme.DimmedStyle
	badge := ""
	if it.Unread > 0 {
		peerStyle = theme.UnreadStyle
		badge = " " + theme.BadgeStyle.Render(fmt.Sprintf("(%d)", it.Unread))
	}
	age := theme.DimmedStyle.Render(ui.RelativeTime(it.Conversation.UpdatedTime(), d.now()))

	width := m.Width() - 6
	headline := fmt.Sprintf("%s%s  %s", peerStyle.Render(it.Peer), badge, age)

	preview := "no messages yet"
	if last, ok := it.lastMessage(); ok {
		preview = last.Content
	}
	body := theme.DimmedStyle.Render(ui.Truncate(preview, width))

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}

	fmt.Fprint(w, style.Render(lipgloss.JoinVertical(lipgloss.Left, headline, body)))
}
