package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/client/deck"
	"kindbossing/internal/client/realtime"
)

// Inbox carries callbacks from background goroutines into the program.
// Sends never block; a full inbox drops the message since every view
// re-reads its state on the next one anyway.
type Inbox chan tea.Msg

func NewInbox() Inbox { return make(Inbox, 64) }

type (
	messagesChangedMsg struct{}
	rowsChangedMsg     struct{}
	realtimeErrorMsg   struct{ err error }
	notificationMsg    struct{ n dto.Notification }
	connStateMsg       struct{ state realtime.State }
	navigateMsg        struct{ path string }
	decisionFailedMsg  struct {
		entry deck.Entry
		err   error
	}
)

func (in Inbox) post(msg tea.Msg) {
	select {
	case in <- msg:
	default:
	}
}

func (in Inbox) RealtimeError(err error) { in.post(realtimeErrorMsg{err: err}) }

func (in Inbox) Notification(n dto.Notification) { in.post(notificationMsg{n: n}) }

func (in Inbox) ConnState(s realtime.State) { in.post(connStateMsg{state: s}) }

// wait returns the next inbox message.
func (in Inbox) wait() tea.Cmd {
	return func() tea.Msg {
		return <-in
	}
}

// Push implements deck.Navigator.
func (in Inbox) Push(path string) { in.post(navigateMsg{path: path}) }

func (in Inbox) DecisionFailed(e deck.Entry, err error) {
	in.post(decisionFailedMsg{entry: e, err: err})
}

var _ deck.Navigator = Inbox(nil)
