package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kindbossing/internal/client/chatsync"
	"kindbossing/internal/client/deck"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
)

type refilledMsg struct {
	added int
	err   error
}

// DeckModel is the swipe view over one job's applicants.
type DeckModel struct {
	ctx   context.Context
	deck  *deck.Deck
	inbox Inbox
	jobID string

	// approved keeps approved cards so a navigation can name the peer.
	approved map[matching.ApplicationID]deck.Candidate
	match    *chatsync.Summary
	openChat bool
	loading  bool
	status   string
	err      error
}

func NewDeck(ctx context.Context, d *deck.Deck, inbox Inbox, jobID string) DeckModel {
	if inbox == nil {
		inbox = NewInbox()
	}
	return DeckModel{
		ctx:      ctx,
		deck:     d,
		inbox:    inbox,
		jobID:    jobID,
		approved: make(map[matching.ApplicationID]deck.Candidate),
		loading:  true,
	}
}

// Chat returns the match to open when the user left the deck for it.
func (m DeckModel) Chat() (chatsync.Summary, bool) {
	if !m.openChat || m.match == nil {
		return chatsync.Summary{}, false
	}
	return *m.match, true
}

func (m DeckModel) Init() tea.Cmd {
	return tea.Batch(m.refill(), m.inbox.wait())
}

func (m DeckModel) refill() tea.Cmd {
	return func() tea.Msg {
		added, err := m.deck.Refill(m.ctx)
		return refilledMsg{added: added, err: err}
	}
}

func (m DeckModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "right", "a":
			return m.decide(matching.DecisionApprove)
		case "left", "s":
			return m.decide(matching.DecisionSkip)
		case "z", "backspace":
			if m.deck.Rewind() {
				m.status = "rewound"
			}
			return m, nil
		case "c":
			if m.match != nil {
				m.openChat = true
				return m, tea.Quit
			}
		}

	case refilledMsg:
		m.loading = false
		m.err = msg.err

	case navigateMsg:
		id := chat.ConversationID(strings.TrimPrefix(msg.path, "/chat/"))
		if appID := matching.ApplicationID(id.TemporaryMatchID()); appID != "" {
			card := m.approved[appID]
			m.match = &chatsync.Summary{ID: id, MatchID: string(appID), PeerID: card.ApplicantID, PeerName: card.Name}
			m.status = fmt.Sprintf("Matched with %s. Press c to chat.", firstNonEmpty(card.Name, card.ApplicantID))
		}
		return m, m.inbox.wait()

	case decisionFailedMsg:
		switch {
		case errors.Is(msg.err, matching.ErrAlreadyDecided):
			m.err = fmt.Errorf("%s was already decided elsewhere", msg.entry.ApplicantName)
		default:
			m.err = fmt.Errorf("%s for %s failed: %w", msg.entry.Decision, msg.entry.ApplicantName, msg.err)
		}
		return m, m.inbox.wait()

	case messagesChangedMsg, rowsChangedMsg, realtimeErrorMsg, notificationMsg, connStateMsg:
		return m, m.inbox.wait()
	}
	return m, nil
}

func (m DeckModel) decide(decision matching.Decision) (tea.Model, tea.Cmd) {
	var (
		card deck.Candidate
		err  error
	)
	if decision == matching.DecisionApprove {
		card, err = m.deck.Approve()
	} else {
		card, err = m.deck.Skip()
	}
	if errors.Is(err, deck.ErrDeckEmpty) {
		return m, nil
	}
	m.err = err
	m.status = ""
	if err == nil && decision == matching.DecisionApprove {
		m.approved[card.ApplicationID] = card
	}
	if m.deck.NeedsRefill() && !m.loading {
		m.loading = true
		return m, m.refill()
	}
	return m, nil
}

func (m DeckModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Applicants for "+m.jobID) + "\n\n")

	card, ok := m.deck.Current()
	switch {
	case ok:
		body := lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render(card.Name),
			card.Headline,
			mutedStyle.Render("applied "+card.AppliedAt.Local().Format("Jan 2 15:04")),
		)
		if dec, done := m.deck.Decided(card.ApplicationID); done {
			body += "\n" + mutedStyle.Render("already "+pastTense(dec))
		}
		b.WriteString(cardStyle.Render(body) + "\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%d left", m.deck.Remaining())) + "\n")
	case m.loading:
		b.WriteString(mutedStyle.Render("Loading applicants...") + "\n")
	default:
		b.WriteString(mutedStyle.Render("No more applicants.") + "\n")
	}

	b.WriteString("\n" + mutedStyle.Render("← s skip · a approve → · z rewind · c chat · q quit") + "\n")
	if m.status != "" {
		b.WriteString(unreadStyle.Render(m.status) + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	}
	return b.String()
}

func pastTense(d matching.Decision) string {
	if d == matching.DecisionApprove {
		return "approved"
	}
	return "skipped"
}
