package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConversation(t *testing.T) *Conversation {
	t.Helper()
	conv, err := NewConversation(CreateConversationParams{
		ID:         "conv-1",
		MatchID:    "app-1",
		EmployerID: "boss",
		SeekerID:   "tao",
		CreatedAt:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	conv.ClearEvents()
	return conv
}

func TestNewConversationValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateConversationParams
		wantErr error
	}{
		{name: "missing seeker", params: CreateConversationParams{ID: "c", MatchID: "m", EmployerID: "a"}, wantErr: ErrParticipantsRequired},
		{name: "same participant", params: CreateConversationParams{ID: "c", MatchID: "m", EmployerID: "a", SeekerID: "a"}, wantErr: ErrSelfConversation},
		{name: "missing match", params: CreateConversationParams{ID: "c", EmployerID: "a", SeekerID: "b"}, wantErr: ErrMatchRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConversation(tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := NewConversation(CreateConversationParams{ID: TemporaryConversationID("m"), MatchID: "m", EmployerID: "a", SeekerID: "b"})
	assert.Error(t, err)
}

func TestConversationPostUpdatesLastMessage(t *testing.T) {
	conv := newTestConversation(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	msg, err := conv.Post(WriteRequest{SenderID: "tao", Content: "  hello there  ", ClientID: "temp-1"}, "m-1", at)
	require.NoError(t, err)

	assert.Equal(t, "hello there", msg.Content)
	assert.Equal(t, KindText, msg.Kind)
	assert.Equal(t, StatusSent, msg.Status)
	assert.Equal(t, MessageID("m-1"), conv.LastMessageID)
	assert.Equal(t, "hello there", conv.LastMessagePreview)
	assert.Equal(t, at, conv.LastActivity())

	evs := conv.DrainEvents()
	require.Len(t, evs, 1)
	sent, ok := evs[0].(MessageSent)
	require.True(t, ok)
	assert.Equal(t, "boss", sent.RecipientID)
	assert.Equal(t, msg, sent.Message())
}

func TestConversationPostRejections(t *testing.T) {
	conv := newTestConversation(t)

	_, err := conv.Post(WriteRequest{SenderID: "stranger", Content: "hi"}, "m-1", time.Now())
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = conv.Post(WriteRequest{SenderID: "tao", Content: "   "}, "m-1", time.Now())
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = conv.Post(WriteRequest{SenderID: "tao", Content: "cv.pdf", Kind: KindFile}, "m-1", time.Now())
	assert.ErrorIs(t, err, ErrFileRefRequired)

	conv.Close("boss", time.Now())
	_, err = conv.Post(WriteRequest{SenderID: "tao", Content: "hi"}, "m-1", time.Now())
	assert.ErrorIs(t, err, ErrConversationClosed)
}

func TestConversationMarkReadOnlyMovesForward(t *testing.T) {
	conv := newTestConversation(t)
	first := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)

	require.NoError(t, conv.MarkRead("boss", []MessageID{"m-1"}, first))
	require.NoError(t, conv.MarkRead("boss", nil, first.Add(-time.Minute)))

	assert.Equal(t, first, conv.LastReadAt("boss"))
	assert.Len(t, conv.PendingEvents(), 1)
	assert.ErrorIs(t, conv.MarkRead("stranger", nil, first), ErrNotParticipant)
}

func TestTemporaryIDs(t *testing.T) {
	id := TemporaryConversationID(" app-9 ")
	assert.True(t, id.IsTemporary())
	assert.Equal(t, "app-9", id.TemporaryMatchID())
	assert.Empty(t, ConversationID("conv-1").TemporaryMatchID())

	assert.True(t, NewTempMessageID().IsTemporary())
	assert.False(t, NewMessageID().IsTemporary())
	assert.True(t, NewMessageID().IsDurable())
	assert.False(t, NewTempMessageID().IsDurable())
	assert.False(t, MessageID("m-1").IsDurable())
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindText, kind)

	kind, err = ParseKind("FILE")
	require.NoError(t, err)
	assert.Equal(t, KindFile, kind)

	_, err = ParseKind("video")
	assert.ErrorIs(t, err, ErrInvalidKind)
}
