package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"kindbossing/internal/app/dto"
)

type Config struct {
	Addr        string
	DialTimeout time.Duration
	CallTimeout time.Duration
}

// Client talks to a remote messaging Server.
type Client struct {
	conn        *grpc.ClientConn
	callTimeout time.Duration
}

// NewClient dials the messaging service and waits until the connection is ready.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("messaging: address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(cfg.Addr, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitReady(dialCtx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("messaging grpc connected", "addr", cfg.Addr)
	}
	return &Client{conn: conn, callTimeout: cfg.CallTimeout}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) OpenConversation(ctx context.Context, req OpenConversationRequest) (dto.Conversation, error) {
	var out dto.Conversation
	err := c.invoke(ctx, "OpenConversation", &req, &out)
	return out, err
}

func (c *Client) GetConversation(ctx context.Context, req GetConversationRequest) (dto.Conversation, error) {
	var out dto.Conversation
	err := c.invoke(ctx, "GetConversation", &req, &out)
	return out, err
}

func (c *Client) ListConversations(ctx context.Context, req ListConversationsRequest) (dto.ConversationList, error) {
	var out dto.ConversationList
	err := c.invoke(ctx, "ListConversations", &req, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, req ListMessagesRequest) (dto.MessageList, error) {
	var out dto.MessageList
	err := c.invoke(ctx, "ListMessages", &req, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (dto.Message, error) {
	var out dto.Message
	err := c.invoke(ctx, "SendMessage", &req, &out)
	return out, err
}

func (c *Client) MarkRead(ctx context.Context, req MarkReadRequest) (dto.ReadReceipt, error) {
	var out dto.ReadReceipt
	err := c.invoke(ctx, "MarkRead", &req, &out)
	return out, err
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	return fromStatus(c.conn.Invoke(callCtx, fullMethod(method), in, out))
}

func (c *Client) wrapCall(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

var _ Service = (*Client)(nil)
