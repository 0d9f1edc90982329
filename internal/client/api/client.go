package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/client/chatsync"
	"kindbossing/internal/client/deck"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
)

const defaultTimeout = 10 * time.Second

// Error is a non-2xx answer from the backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Unwrap exposes the domain error behind well-known answers so callers can
// match them with errors.Is.
func (e *Error) Unwrap() error {
	switch {
	case e.Status == http.StatusForbidden && e.Message == "blocked":
		return chat.ErrRecipientBlocked
	case e.Status == http.StatusConflict && e.Message == "conversation closed":
		return chat.ErrConversationClosed
	case e.Status == http.StatusConflict && e.Message == "already decided":
		return matching.ErrAlreadyDecided
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

var ErrNotFound = errors.New("api: not found")

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the KindBossing REST API on behalf of one signed-in user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("api: invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Token() string { return c.token }

func (c *Client) FetchMessages(ctx context.Context, conversationID chat.ConversationID, limit, offset int) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var page dto.MessageList
	path := "/api/v1/conversations/" + url.PathEscape(string(conversationID)) + "/messages?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(page.Items))
	for _, m := range page.Items {
		out = append(out, m.Domain())
	}
	return out, nil
}

func (c *Client) WriteMessage(ctx context.Context, req chat.WriteRequest) (chat.Message, error) {
	body := map[string]string{
		"client_id": req.ClientID,
		"content":   req.Content,
		"kind":      string(req.Kind),
		"file_ref":  req.FileRef,
	}
	var out dto.Message
	path := "/api/v1/conversations/" + url.PathEscape(string(req.ConversationID)) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return chat.Message{}, err
	}
	return out.Domain(), nil
}

// IsBlocked asks whether otherUserID blocked the signed-in user. userID is
// implied by the token.
func (c *Client) IsBlocked(ctx context.Context, _ string, otherUserID string) (bool, error) {
	var out dto.BlockStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/blocks/"+url.PathEscape(otherUserID), nil, &out); err != nil {
		return false, err
	}
	return out.Blocked, nil
}

func (c *Client) Block(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/blocks", map[string]string{"user_id": userID}, nil)
}

func (c *Client) Unblock(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/blocks/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) OpenConversation(ctx context.Context, matchID, peerID string) (*chat.Conversation, error) {
	var out dto.Conversation
	body := map[string]string{"match_id": matchID, "peer_id": peerID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", body, &out); err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

// Conversation reads one conversation as the signed-in user sees it.
func (c *Client) Conversation(ctx context.Context, id chat.ConversationID) (chatsync.Summary, error) {
	var out dto.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+url.PathEscape(string(id)), nil, &out); err != nil {
		return chatsync.Summary{}, err
	}
	return Summary(out), nil
}

// ListConversations returns the signed-in user's conversation list rows.
func (c *Client) ListConversations(ctx context.Context, limit, offset int) ([]chatsync.Summary, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var list dto.ConversationList
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	out := make([]chatsync.Summary, 0, len(list.Items))
	for _, conv := range list.Items {
		out = append(out, Summary(conv))
	}
	return out, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID chat.ConversationID) (dto.ReadReceipt, error) {
	var out dto.ReadReceipt
	err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+url.PathEscape(string(conversationID))+"/read", nil, &out)
	return out, err
}

func (c *Client) Candidates(ctx context.Context, jobID string, limit, offset int) ([]deck.Candidate, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var list dto.CandidateList
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID)+"/candidates?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	out := make([]deck.Candidate, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, deck.Candidate{
			ApplicationID: matching.ApplicationID(item.ApplicationID),
			JobID:         item.JobID,
			ApplicantID:   item.ApplicantID,
			Name:          item.Name,
			Headline:      item.Headline,
			AppliedAt:     item.AppliedAt,
		})
	}
	return out, nil
}

func (c *Client) DecideApplication(ctx context.Context, id matching.ApplicationID, decision matching.Decision) error {
	var action string
	switch decision {
	case matching.DecisionApprove:
		action = "approve"
	case matching.DecisionSkip:
		action = "skip"
	default:
		return matching.ErrInvalidDecision
	}
	return c.do(ctx, http.MethodPost, "/api/v1/applications/"+url.PathEscape(string(id))+"/"+action, nil, nil)
}

func (c *Client) Notifications(ctx context.Context) (dto.NotificationList, error) {
	var out dto.NotificationList
	err := c.do(ctx, http.MethodGet, "/api/v1/notifications", nil, &out)
	return out, err
}

// UploadAttachment posts body as a multipart file and returns the stored
// reference to send as a file message.
func (c *Client) UploadAttachment(ctx context.Context, conversationID chat.ConversationID, name string, body io.Reader) (dto.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return dto.Attachment{}, err
	}
	if _, err := io.Copy(part, body); err != nil {
		return dto.Attachment{}, err
	}
	if err := mw.Close(); err != nil {
		return dto.Attachment{}, err
	}

	path := "/api/v1/conversations/" + url.PathEscape(string(conversationID)) + "/attachments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return dto.Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out dto.Attachment
	err = c.send(req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(snippet))
		if json.Unmarshal(snippet, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Summary converts a conversation view into a list row.
func Summary(conv dto.Conversation) chatsync.Summary {
	s := chatsync.Summary{
		ID:                 chat.ConversationID(conv.ID),
		MatchID:            conv.MatchID,
		PeerID:             conv.PeerID,
		PeerName:           conv.PeerID,
		LastMessageID:      chat.MessageID(conv.LastMessageID),
		LastMessagePreview: conv.LastMessagePreview,
		LastSenderID:       conv.LastSenderID,
		UnreadCount:        conv.UnreadCount,
	}
	if conv.LastMessageAt != nil {
		s.LastMessageAt = *conv.LastMessageAt
	}
	return s
}

var (
	_ chatsync.Fetcher      = (*Client)(nil)
	_ chatsync.Writer       = (*Client)(nil)
	_ chatsync.BlockChecker = (*Client)(nil)
	_ chatsync.Materializer = (*Client)(nil)
	_ deck.CandidateSource  = (*Client)(nil)
	_ deck.DecisionClient   = (*Client)(nil)
)
