package app

import tea "github.com/charmbracelet/bubbletea"

// ChangeFeed bridges store change callbacks into Bubble Tea messages.
// Notifications coalesce: any number of changes between two reads yield a
// single redraw.
type ChangeFeed struct {
	ch chan struct{}
}

// NewChangeFeed creates an empty feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{ch: make(chan struct{}, 1)}
}

// Notify records a change. It never blocks, so it is safe to pass to
// appsync.WithOnChange.
func (f *ChangeFeed) Notify() {
	select {
	case f.ch <- struct{}{}:
	default:
	}
}

// wait returns a command that blocks until the next change.
func (f *ChangeFeed) wait() tea.Cmd {
	return func() tea.Msg {
		<-f.ch
		return storeChangedMsg{}
	}
}
