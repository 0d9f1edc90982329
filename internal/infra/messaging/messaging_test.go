package messaging

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"kindbossing/internal/app/wiring"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/infra/storage/memory"
)

func newRemote(t *testing.T) (*Client, memory.Factory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	box := memory.NewOutbox(nil, logger)
	factory := memory.NewFactory(box)
	buses := wiring.Build(wiring.Deps{UoWFactory: factory, Outbox: box, Idempotency: memory.NewIdempotencyStore(), Logger: logger})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger)))
	(&Server{Service: Local{Commands: buses.Commands, Queries: buses.Queries}}).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewClient(ctx, Config{Addr: "passthrough:///bufnet", CallTimeout: 2 * time.Second}, logger,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, factory
}

func approvedMatch(t *testing.T, factory memory.Factory) {
	t.Helper()
	app, err := matching.NewApplication(matching.CreateParams{ID: "app-1", JobID: "job-1", EmployerID: "boss", ApplicantID: "seeker", AppliedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, app.Decide(matching.DecisionApprove, "boss", time.Now()))
	app.ClearEvents()
	require.NoError(t, factory.ApplicationsRepo.Save(context.Background(), app))
}

func TestRemoteRoundTrip(t *testing.T) {
	client, factory := newRemote(t)
	approvedMatch(t, factory)
	ctx := context.Background()

	conv, err := client.OpenConversation(ctx, OpenConversationRequest{UserID: "seeker", MatchID: "app-1", PeerID: "boss"})
	require.NoError(t, err)
	assert.Equal(t, "app-1", conv.MatchID)

	msg, err := client.SendMessage(ctx, SendMessageRequest{SenderID: "seeker", ConversationID: conv.ID, Content: "Hi", ClientID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, "Hi", msg.Content)

	page, err := client.ListMessages(ctx, ListMessagesRequest{ViewerID: "boss", ConversationID: conv.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, msg.ID, page.Items[0].ID)

	list, err := client.ListConversations(ctx, ListConversationsRequest{UserID: "boss"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Items[0].UnreadCount)

	receipt, err := client.MarkRead(ctx, MarkReadRequest{ReaderID: "boss", ConversationID: conv.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{msg.ID}, receipt.MessageIDs)

	got, err := client.GetConversation(ctx, GetConversationRequest{ViewerID: "boss", ConversationID: conv.ID})
	require.NoError(t, err)
	assert.Zero(t, got.UnreadCount)
}

func TestRemoteErrorsKeepSentinels(t *testing.T) {
	client, factory := newRemote(t)
	approvedMatch(t, factory)
	ctx := context.Background()

	_, err := client.GetConversation(ctx, GetConversationRequest{ViewerID: "boss", ConversationID: "missing"})
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)

	conv, err := client.OpenConversation(ctx, OpenConversationRequest{UserID: "boss", MatchID: "app-1", PeerID: "seeker"})
	require.NoError(t, err)

	_, err = client.SendMessage(ctx, SendMessageRequest{SenderID: "boss", ConversationID: conv.ID, Content: "  "})
	assert.ErrorIs(t, err, chat.ErrEmptyContent)

	_, err = client.ListMessages(ctx, ListMessagesRequest{ViewerID: "stranger", ConversationID: conv.ID})
	assert.ErrorIs(t, err, chat.ErrNotParticipant)

	_, err = client.SendMessage(ctx, SendMessageRequest{SenderID: "boss", ConversationID: "temp_app-1", Content: "hi"})
	assert.ErrorIs(t, err, chat.ErrTemporaryID)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{chat.ErrRecipientBlocked, codes.PermissionDenied},
		{chat.ErrConversationClosed, codes.FailedPrecondition},
		{chat.ErrConversationExists, codes.Aborted},
		{matching.ErrApplicationNotFound, codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{assert.AnError, codes.Internal},
	}
	for _, tc := range cases {
		st, ok := status.FromError(toStatus(tc.err))
		require.True(t, ok)
		assert.Equal(t, tc.code, st.Code(), tc.err.Error())
	}
	assert.ErrorIs(t, fromStatus(toStatus(chat.ErrRecipientBlocked)), chat.ErrRecipientBlocked)
	assert.Nil(t, toStatus(nil))
}

func TestRegisterOnGRPCServer(t *testing.T) {
	srv := grpc.NewServer()
	defer srv.Stop()
	require.NotPanics(t, func() { (&Server{}).Register(srv) })

	info, ok := srv.GetServiceInfo()[ServiceName]
	require.True(t, ok)
	var names []string
	for _, m := range info.Methods {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"OpenConversation", "GetConversation", "ListConversations", "ListMessages", "SendMessage", "MarkRead"}, names)
}
