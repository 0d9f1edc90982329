package wiring_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	blocksapp "kindbossing/internal/app/handlers/blocks"
	chatapp "kindbossing/internal/app/handlers/chat"
	matchingapp "kindbossing/internal/app/handlers/matching"
	notificationsapp "kindbossing/internal/app/handlers/notifications"
	"kindbossing/internal/app/middleware"
	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/queries"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/notification"
	"kindbossing/internal/domain/user"
	"kindbossing/internal/infra/assembly"
)

type pushes struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (p *pushes) Notify(_ context.Context, n notification.Notification) error {
	p.mu.Lock()
	p.sent = append(p.sent, n)
	p.mu.Unlock()
	return nil
}

type tape struct {
	mu      sync.Mutex
	records []outbox.EventRecord
}

func (t *tape) Name() string { return "tape" }

func (t *tape) OnEvent(_ context.Context, ev outbox.EventRecord) error {
	t.mu.Lock()
	t.records = append(t.records, ev)
	t.mu.Unlock()
	return nil
}

type fixture struct {
	mem    *assembly.Memory
	policy *notificationsapp.Policy
	pushes *pushes
	tape   *tape
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := assembly.NewMemory(logger, nil)
	f := fixture{mem: mem, pushes: &pushes{}, tape: &tape{}}
	f.policy = &notificationsapp.Policy{UoWFactory: mem.Factory, Notifier: f.pushes, Logger: logger}
	mem.Router.Register(f.policy)
	mem.Router.Register(f.tape)

	app, err := matching.NewApplication(matching.CreateParams{
		ID: "app-1", JobID: "job-1", EmployerID: "boss", ApplicantID: "seeker",
		ApplicantName: "Maria", AppliedAt: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, mem.Factory.ApplicationsRepo.Save(context.Background(), app))
	return f
}

func as(id string, role user.Role) context.Context {
	return middleware.WithActor(context.Background(), middleware.Actor{ID: id, Roles: []user.Role{role}})
}

func (f fixture) approveAndOpen(t *testing.T) dto.Conversation {
	t.Helper()
	decision, err := commands.Dispatch[matchingapp.DecideApplicationCommand, dto.Decision](as("boss", user.RoleEmployer), f.mem.Buses.Commands, matchingapp.DecideApplicationCommand{
		ApplicationID: "app-1", EmployerID: "boss", Decision: string(matching.DecisionApprove),
	})
	require.NoError(t, err)
	assert.Equal(t, "temp_app-1", decision.ConversationID)

	conv, err := commands.Dispatch[chatapp.OpenConversationCommand, dto.Conversation](as("boss", user.RoleEmployer), f.mem.Buses.Commands, chatapp.OpenConversationCommand{
		MatchID: "app-1", UserID: "boss", PeerID: "seeker",
	})
	require.NoError(t, err)
	return conv
}

func (f fixture) send(ctx context.Context, conv, sender, clientID, content string) (dto.Message, error) {
	return commands.Dispatch[chatapp.SendMessageCommand, dto.Message](ctx, f.mem.Buses.Commands, chatapp.SendMessageCommand{
		ConversationID: conv, SenderID: sender, Content: content, Kind: string(chat.KindText), ClientID: clientID,
	})
}

func TestOneConversationPerMatch(t *testing.T) {
	f := newFixture(t)
	first := f.approveAndOpen(t)

	again, err := commands.Dispatch[chatapp.OpenConversationCommand, dto.Conversation](as("seeker", user.RoleSeeker), f.mem.Buses.Commands, chatapp.OpenConversationCommand{
		MatchID: "app-1", UserID: "seeker", PeerID: "boss",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "boss", again.PeerID)

	_, err = commands.Dispatch[chatapp.OpenConversationCommand, dto.Conversation](as("seeker", user.RoleSeeker), f.mem.Buses.Commands, chatapp.OpenConversationCommand{
		MatchID: "app-1", UserID: "seeker", PeerID: "stranger",
	})
	assert.Error(t, err)
}

func TestSendIsIdempotentByClientID(t *testing.T) {
	f := newFixture(t)
	conv := f.approveAndOpen(t)
	ctx := as("boss", user.RoleEmployer)

	first, err := f.send(ctx, conv.ID, "boss", "temp-1", "hello")
	require.NoError(t, err)
	retry, err := f.send(ctx, conv.ID, "boss", "temp-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, first.ID, retry.ID)

	page, err := queries.Ask[chatapp.ListMessagesQuery, dto.MessageList](ctx, f.mem.Buses.Queries, chatapp.ListMessagesQuery{
		ConversationID: conv.ID, ViewerID: "boss", Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "temp-1", page.Items[0].ClientID)
	assert.False(t, page.HasMore)
}

func TestBlockStopsMessagesAndUnblockReopens(t *testing.T) {
	f := newFixture(t)
	conv := f.approveAndOpen(t)
	boss := as("boss", user.RoleEmployer)
	seeker := as("seeker", user.RoleSeeker)

	_, err := commands.Dispatch[blocksapp.BlockUserCommand, dto.BlockStatus](seeker, f.mem.Buses.Commands, blocksapp.BlockUserCommand{BlockerID: "seeker", BlockedID: "boss"})
	require.NoError(t, err)

	status, err := queries.Ask[blocksapp.IsBlockedQuery, dto.BlockStatus](boss, f.mem.Buses.Queries, blocksapp.IsBlockedQuery{UserID: "boss", OtherUserID: "seeker"})
	require.NoError(t, err)
	assert.True(t, status.Blocked)

	_, err = f.send(boss, conv.ID, "boss", "temp-1", "hello?")
	assert.ErrorIs(t, err, chat.ErrRecipientBlocked)

	stored, err := f.mem.Factory.ConversationsRepo.ByID(context.Background(), chat.ConversationID(conv.ID))
	require.NoError(t, err)
	assert.True(t, stored.Closed)

	_, err = commands.Dispatch[blocksapp.UnblockUserCommand, dto.BlockStatus](seeker, f.mem.Buses.Commands, blocksapp.UnblockUserCommand{BlockerID: "seeker", BlockedID: "boss"})
	require.NoError(t, err)
	_, err = f.send(boss, conv.ID, "boss", "temp-2", "hello again")
	require.NoError(t, err)
}

func TestNotificationsSurviveRedelivery(t *testing.T) {
	f := newFixture(t)
	conv := f.approveAndOpen(t)
	_, err := f.send(as("boss", user.RoleEmployer), conv.ID, "boss", "temp-1", "When can you start?")
	require.NoError(t, err)

	for _, rec := range f.tape.records {
		require.NoError(t, f.policy.OnEvent(context.Background(), rec))
	}

	seeker := as("seeker", user.RoleSeeker)
	list, err := queries.Ask[notificationsapp.ListNotificationsQuery, dto.NotificationList](seeker, f.mem.Buses.Queries, notificationsapp.ListNotificationsQuery{UserID: "seeker", Limit: 10})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, 2, list.Unread)
	kinds := []string{list.Items[0].Kind, list.Items[1].Kind}
	assert.ElementsMatch(t, []string{string(notification.KindApplicationApproved), string(notification.KindMessageReceived)}, kinds)

	read, err := commands.Dispatch[notificationsapp.MarkNotificationReadCommand, dto.Notification](seeker, f.mem.Buses.Commands, notificationsapp.MarkNotificationReadCommand{
		UserID: "seeker", NotificationID: list.Items[0].ID,
	})
	require.NoError(t, err)
	assert.NotNil(t, read.ReadAt)
	assert.NotEmpty(t, f.pushes.sent)
}
