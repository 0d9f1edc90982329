package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"kindbossing/internal/app/dto"
	notificationsapp "kindbossing/internal/app/handlers/notifications"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/user"
	"kindbossing/internal/infra/assembly"
	"kindbossing/internal/infra/config"
	"kindbossing/internal/infra/messaging"
	"kindbossing/internal/infra/obs"
	"kindbossing/internal/infra/realtime"
)

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, _ int64, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	u.mu.Lock()
	u.keys = append(u.keys, key)
	u.mu.Unlock()
	return key, nil
}

type testServer struct {
	router http.Handler
	auth   Authenticator
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := assembly.NewMemory(logger, nil)
	svc := messaging.Local{Commands: m.Buses.Commands, Queries: m.Buses.Queries}
	hub := realtime.NewHub(realtime.ServiceMembership(svc), logger)
	m.Router.Register(&notificationsapp.Policy{UoWFactory: m.Factory, Notifier: hub, Logger: logger})
	m.Router.Register(realtime.Reactor{Hub: hub})

	app, err := matching.NewApplication(matching.CreateParams{
		ID: "app-1", JobID: "job-1", EmployerID: "boss", ApplicantID: "seeker", ApplicantName: "Maria", AppliedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, m.Factory.ApplicationsRepo.Save(context.Background(), app))

	auth := Authenticator{Secret: []byte("test-secret"), Issuer: "kindbossing"}
	handlers := Handlers{
		Chat:          ChatHandler{Messaging: svc, Logger: logger},
		Matching:      MatchingHandler{Commands: m.Buses.Commands, Queries: m.Buses.Queries, Logger: logger},
		Blocks:        BlocksHandler{Commands: m.Buses.Commands, Queries: m.Buses.Queries, Logger: logger},
		Notifications: NotificationsHandler{Commands: m.Buses.Commands, Queries: m.Buses.Queries, Logger: logger},
		Attachments:   AttachmentHandler{Uploader: &fakeUploader{}, Messaging: svc, MaxBytes: 1 << 20, Logger: logger},
		Realtime:      RealtimeHandler{Hub: hub, Auth: auth, OriginPatterns: []string{"*"}, Logger: logger},
		AuthMiddleware: AuthMiddleware{Auth: auth, Logger: logger}.Handle,
	}
	router := NewHandler(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, handlers)

	ts := &testServer{router: router, auth: auth, tokens: map[string]string{}}
	for id, role := range map[string]user.Role{"boss": user.RoleEmployer, "seeker": user.RoleSeeker, "other": user.RoleSeeker} {
		token, err := auth.Issue(id, []user.Role{role}, time.Hour)
		require.NoError(t, err)
		ts.tokens[id] = token
	}
	return ts
}

func (s *testServer) do(t *testing.T, as, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[as])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// openMatch approves app-1 and materializes its conversation.
func (s *testServer) openMatch(t *testing.T) dto.Conversation {
	t.Helper()
	rec := s.do(t, "boss", http.MethodPost, "/api/v1/applications/app-1/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decision := decode[dto.Decision](t, rec)
	assert.Equal(t, "temp_app-1", decision.ConversationID)

	rec = s.do(t, "seeker", http.MethodPost, "/api/v1/conversations", map[string]string{"match_id": "app-1", "peer_id": "boss"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.Conversation](t, rec)
}

func TestChatFlow(t *testing.T) {
	s := newTestServer(t)
	conv := s.openMatch(t)
	assert.False(t, strings.HasPrefix(conv.ID, "temp_"))

	again := s.do(t, "boss", http.MethodPost, "/api/v1/conversations", map[string]string{"match_id": "app-1", "peer_id": "seeker"})
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, conv.ID, decode[dto.Conversation](t, again).ID)

	send := map[string]string{"client_id": "c-1", "content": "Hello po!"}
	first := s.do(t, "seeker", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", send)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	retry := s.do(t, "seeker", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", send)
	require.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, decode[dto.Message](t, first).ID, decode[dto.Message](t, retry).ID)

	rec := s.do(t, "boss", http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[dto.MessageList](t, rec)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	rec = s.do(t, "boss", http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ConversationList](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Items[0].UnreadCount)
	assert.Equal(t, "seeker", list.Items[0].PeerID)

	rec = s.do(t, "boss", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.ReadReceipt](t, rec).MessageIDs, 1)

	rec = s.do(t, "boss", http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	assert.Zero(t, decode[dto.Conversation](t, rec).UnreadCount)

	rec = s.do(t, "other", http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "boss", http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[dto.NotificationList](t, rec)
	require.Len(t, notes.Items, 1)
	assert.Equal(t, 1, notes.Unread)
	assert.Equal(t, "/chat/"+conv.ID, notes.Items[0].Link)

	rec = s.do(t, "boss", http.MethodPost, "/api/v1/notifications/"+notes.Items[0].ID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, "seeker", http.MethodPost, "/api/v1/notifications/"+notes.Items[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlockedSendIsForbidden(t *testing.T) {
	s := newTestServer(t)
	conv := s.openMatch(t)

	rec := s.do(t, "boss", http.MethodPost, "/api/v1/blocks", map[string]string{"user_id": "seeker"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "seeker", http.MethodGet, "/api/v1/blocks/boss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[dto.BlockStatus](t, rec).Blocked)

	rec = s.do(t, "seeker", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]string{"content": "hello?"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"blocked"}`, rec.Body.String())

	rec = s.do(t, "boss", http.MethodDelete, "/api/v1/blocks/seeker", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, "seeker", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]string{"content": "hello?"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestMatchingEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "", http.MethodGet, "/api/v1/jobs/job-1/candidates", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(t, "seeker", http.MethodGet, "/api/v1/jobs/job-1/candidates", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "boss", http.MethodGet, "/api/v1/jobs/job-1/candidates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.CandidateList](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "app-1", list.Items[0].ApplicationID)

	rec = s.do(t, "boss", http.MethodPost, "/api/v1/applications/app-1/skip", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, "boss", http.MethodPost, "/api/v1/applications/app-1/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, "boss", http.MethodPost, "/api/v1/applications/missing/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "seeker", http.MethodPost, "/api/v1/conversations", map[string]string{"match_id": "app-1", "peer_id": "boss"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAttachmentUpload(t *testing.T) {
	s := newTestServer(t)
	conv := s.openMatch(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "resume.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/attachments", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.tokens["seeker"])
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	att := decode[dto.Attachment](t, rec)
	assert.True(t, strings.HasPrefix(att.FileRef, "conversations/"+conv.ID+"/"))
	assert.Equal(t, "resume.pdf", att.Name)

	rec = s.do(t, "seeker", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]string{"kind": "file", "content": "resume.pdf", "file_ref": att.FileRef})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRealtimeDeliversNewMessages(t *testing.T) {
	s := newTestServer(t)
	conv := s.openMatch(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + s.tokens["boss"]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() dto.Frame {
		var f dto.Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		return f
	}
	assert.Equal(t, dto.FrameReady, read().Type)

	require.NoError(t, wsjson.Write(ctx, conn, dto.Frame{Type: dto.FrameSubscribe, ConversationID: conv.ID, RequestID: "sub-1"}))
	ack := read()
	assert.Equal(t, dto.FrameReady, ack.Type)
	assert.Equal(t, "sub-1", ack.RequestID)

	rec := s.do(t, "seeker", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]string{"content": "Good morning"})
	require.Equal(t, http.StatusCreated, rec.Code)
	sent := decode[dto.Message](t, rec)

	var got dto.Message
	for {
		f := read()
		if f.Type != dto.FrameMessageNew {
			continue
		}
		require.NoError(t, json.Unmarshal(f.Payload, &got))
		break
	}
	assert.Equal(t, sent.ID, got.ID)

	unauth, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=bogus", nil)
	if unauth != nil {
		unauth.Close(websocket.StatusNormalClosure, "")
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	viaHeader, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + s.tokens["seeker"]}},
	})
	require.NoError(t, err)
	defer viaHeader.Close(websocket.StatusNormalClosure, "")
	var ready dto.Frame
	require.NoError(t, wsjson.Read(ctx, viaHeader, &ready))
	assert.Equal(t, dto.FrameReady, ready.Type)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, "", http.MethodGet, "/livez", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "", http.MethodGet, "/readyz", nil).Code)
	rec := s.do(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kindbossing_http_requests_total")
}
