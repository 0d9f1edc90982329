package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/client/chatsync"
	"kindbossing/internal/domain/chat"
)

// scrollTriggerLines is how close to the top the viewport has to be before
// older history is requested.
const scrollTriggerLines = 2

// ChatBackend is what the chat view needs beyond the session.
type ChatBackend interface {
	ListConversations(ctx context.Context, limit, offset int) ([]chatsync.Summary, error)
	MarkRead(ctx context.Context, conversationID chat.ConversationID) (dto.ReadReceipt, error)
}

type ChatConfig struct {
	Session *chatsync.Session
	Backend ChatBackend
	Inbox   Inbox
	UserID  string
	// Open is shown right away when set, e.g. a match that was just approved.
	Open *chatsync.Summary
}

type pane int

const (
	paneList pane = iota
	paneChat
)

type (
	listLoadedMsg struct{ err error }
	openedMsg     struct {
		id  chat.ConversationID
		err error
	}
	olderMsg struct {
		loaded bool
		err    error
	}
	sentMsg struct{ err error }
)

// ChatModel is the two-pane conversation list and message view.
type ChatModel struct {
	ctx       context.Context
	session   *chatsync.Session
	backend   ChatBackend
	inbox     Inbox
	userID    string
	preserver *chatsync.Preserver
	initial   *chatsync.Summary

	rows     []chatsync.Summary
	selected int
	focus    pane
	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	loading  bool
	conn     string
	status   string
	err      error
}

func NewChat(ctx context.Context, cfg ChatConfig) ChatModel {
	if cfg.Inbox == nil {
		cfg.Inbox = NewInbox()
	}
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 2000
	input.Width = 50

	m := ChatModel{
		ctx:       ctx,
		session:   cfg.Session,
		backend:   cfg.Backend,
		inbox:     cfg.Inbox,
		userID:    cfg.UserID,
		preserver: &chatsync.Preserver{},
		initial:   cfg.Open,
		viewport:  viewport.New(80, 20),
		input:     input,
		focus:     paneList,
	}
	inbox := cfg.Inbox
	m.session.Store().Watch(func([]chat.Message) { inbox.post(messagesChangedMsg{}) })
	m.session.List().Watch(func([]chatsync.Summary) { inbox.post(rowsChangedMsg{}) })
	return m
}

func (m ChatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadList(), m.inbox.wait(), textinput.Blink}
	if m.initial != nil {
		cmds = append(cmds, m.open(*m.initial))
	}
	return tea.Batch(cmds...)
}

func (m ChatModel) loadList() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.backend.ListConversations(m.ctx, 100, 0)
		if err != nil {
			return listLoadedMsg{err: err}
		}
		m.session.List().Load(rows)
		return listLoadedMsg{}
	}
}

func (m ChatModel) open(conv chatsync.Summary) tea.Cmd {
	return func() tea.Msg {
		if err := m.session.Open(m.ctx, conv); err != nil {
			return openedMsg{id: conv.ID, err: err}
		}
		if !conv.ID.IsTemporary() {
			if _, err := m.backend.MarkRead(m.ctx, conv.ID); err != nil {
				return openedMsg{id: conv.ID, err: fmt.Errorf("mark read: %w", err)}
			}
		}
		return openedMsg{id: conv.ID}
	}
}

func (m ChatModel) loadOlder(scrollTop int) tea.Cmd {
	return func() tea.Msg {
		loaded, err := m.session.Paginator().OnScroll(m.ctx, float64(scrollTop))
		return olderMsg{loaded: loaded, err: err}
	}
}

func (m ChatModel) send(content string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.session.Send(m.ctx, content)
		return sentMsg{err: err}
	}
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.session.Close()
			return m, tea.Quit
		case "tab":
			if m.focus == paneList {
				m.focus = paneChat
				m.input.Focus()
			} else {
				m.focus = paneList
				m.input.Blur()
			}
			return m, nil
		}
		if m.focus == paneList {
			return m.updateList(msg)
		}
		return m.updateChat(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.render(true)

	case messagesChangedMsg:
		atBottom := m.viewport.AtBottom()
		m.render(atBottom && !m.preserver.Pending())
		cmds = append(cmds, m.inbox.wait())

	case rowsChangedMsg:
		m.rows = m.session.List().Sorted()
		if m.selected >= len(m.rows) {
			m.selected = max(len(m.rows)-1, 0)
		}
		cmds = append(cmds, m.inbox.wait())

	case realtimeErrorMsg:
		m.err = fmt.Errorf("live updates stopped: %w", msg.err)
		cmds = append(cmds, m.inbox.wait())

	case notificationMsg:
		m.status = msg.n.Title
		cmds = append(cmds, m.inbox.wait())

	case connStateMsg:
		m.conn = string(msg.state)
		cmds = append(cmds, m.inbox.wait())

	case navigateMsg, decisionFailedMsg:
		cmds = append(cmds, m.inbox.wait())

	case listLoadedMsg:
		m.err = msg.err
		m.rows = m.session.List().Sorted()

	case openedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.focus = paneChat
			m.input.Focus()
			m.render(true)
		}

	case olderMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		}
		m.render(false)
		if top, ok := m.preserver.AfterRender(float64(m.viewport.TotalLineCount())); ok {
			m.viewport.SetYOffset(int(top))
		}

	case sentMsg:
		switch {
		case errors.Is(msg.err, chat.ErrRecipientBlocked):
			m.err = errors.New("this user is not accepting messages from you")
		case msg.err != nil:
			m.err = fmt.Errorf("send failed: %w", msg.err)
		default:
			m.err = nil
		}
	}
	return m, tea.Batch(cmds...)
}

func (m ChatModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
		}
	case "r":
		return m, m.loadList()
	case "enter":
		if m.selected < len(m.rows) {
			return m, m.open(m.rows[m.selected])
		}
	case "q":
		m.session.Close()
		return m, tea.Quit
	}
	return m, nil
}

func (m ChatModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.focus = paneList
		m.input.Blur()
		return m, nil
	case "enter":
		content := strings.TrimSpace(m.input.Value())
		if content == "" || m.session.Sender().InFlight() {
			return m, nil
		}
		m.input.SetValue("")
		return m, m.send(content)
	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		older := m.maybeLoadOlder()
		return m, tea.Batch(cmd, older)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// maybeLoadOlder asks for the previous page when the viewport nears the
// top, remembering the geometry so the visible lines stay put.
func (m *ChatModel) maybeLoadOlder() tea.Cmd {
	if m.loading || !m.session.HasMore() || m.viewport.YOffset > scrollTriggerLines {
		return nil
	}
	m.loading = true
	m.preserver.BeforePrepend(chatsync.Viewport{
		ScrollTop:    float64(m.viewport.YOffset),
		ScrollHeight: float64(m.viewport.TotalLineCount()),
	})
	return m.loadOlder(m.viewport.YOffset)
}

func (m *ChatModel) resize() {
	if m.width == 0 {
		return
	}
	sidebar := max(m.width/4, 24)
	chatWidth := max(m.width-sidebar-4, 20)
	chatHeight := max(m.height-2, 6)
	sidebarStyle = sidebarStyle.Width(sidebar - 2).Height(chatHeight)
	chatWindowStyle = chatWindowStyle.Width(chatWidth).Height(chatHeight)
	m.viewport = viewport.New(chatWidth-2, chatHeight-4)
	m.input.Width = chatWidth - 6
}

func (m *ChatModel) render(stickToBottom bool) {
	offset := m.viewport.YOffset
	m.viewport.SetContent(m.renderMessages())
	if stickToBottom {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(offset)
}

func (m ChatModel) renderMessages() string {
	msgs := m.session.Messages()
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet. Say hello.")
	}
	width := max(m.viewport.Width-2, 10)
	var b strings.Builder
	if m.session.HasMore() {
		b.WriteString(mutedStyle.Render("  ↑ older messages") + "\n")
	}
	for _, msg := range msgs {
		b.WriteString(lipgloss.NewStyle().Width(width).Render(m.renderMessage(msg)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m ChatModel) renderMessage(msg chat.Message) string {
	who := otherMessageStyle.Render(msg.SenderID)
	if msg.SenderID == m.userID {
		who = ownMessageStyle.Render("you")
	}
	body := msg.Content
	if msg.Kind == chat.KindFile {
		body = "[file] " + msg.Content
	}
	line := fmt.Sprintf("%s %s: %s", mutedStyle.Render(msg.CreatedAt.Local().Format("15:04")), who, body)
	switch {
	case msg.IsProvisional():
		line = pendingStyle.Render(line + " (sending)")
	case msg.SenderID == m.userID && msg.Status == chat.StatusRead:
		line += mutedStyle.Render(" ✓✓")
	}
	return line
}

func (m ChatModel) View() string {
	return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.chatView())
}

func (m ChatModel) sidebarView() string {
	var b strings.Builder
	title := "Conversations"
	if total := m.session.List().TotalUnread(); total > 0 {
		title += unreadStyle.Render(fmt.Sprintf(" (%d)", total))
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")
	if len(m.rows) == 0 {
		b.WriteString(mutedStyle.Render("No conversations"))
	}
	for i, row := range m.rows {
		name := firstNonEmpty(row.PeerName, row.PeerID, string(row.ID))
		if row.UnreadCount > 0 {
			name += unreadStyle.Render(fmt.Sprintf(" %d", row.UnreadCount))
		}
		if at := relativeTime(time.Now(), row.LastMessageAt); at != "" {
			name += mutedStyle.Render(" " + at)
		}
		line := name + "\n" + mutedStyle.Render(truncate(row.LastMessagePreview, 28))
		if i == m.selected {
			b.WriteString(selectedRowStyle.Render(line))
		} else {
			b.WriteString(rowStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return sidebarStyle.Render(b.String())
}

func (m ChatModel) chatView() string {
	current := m.session.Current()
	header := mutedStyle.Render("Select a conversation and press enter")
	if current.ID != "" {
		header = titleStyle.Render(firstNonEmpty(current.PeerName, current.PeerID, string(current.ID)))
	}
	if m.conn != "" {
		header += mutedStyle.Render(" · " + m.conn)
	}
	footer := m.input.View()
	if m.err != nil {
		footer = errorStyle.Render(m.err.Error()) + "\n" + footer
	} else if m.status != "" {
		footer = unreadStyle.Render(m.status) + "\n" + footer
	}
	return chatWindowStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// relativeTime renders t for list rows.
func relativeTime(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case t.IsZero():
		return ""
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2")
	}
}
