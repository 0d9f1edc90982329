package messaging

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"

	"kindbossing/internal/app/dto"
)

const ServiceName = "kindbossing.messaging.v1.Messaging"

// MessagingServer is the handler contract grpc checks registrations against.
type MessagingServer interface {
	OpenConversation(context.Context, *OpenConversationRequest) (*dto.Conversation, error)
	GetConversation(context.Context, *GetConversationRequest) (*dto.Conversation, error)
	ListConversations(context.Context, *ListConversationsRequest) (*dto.ConversationList, error)
	ListMessages(context.Context, *ListMessagesRequest) (*dto.MessageList, error)
	SendMessage(context.Context, *SendMessageRequest) (*dto.Message, error)
	MarkRead(context.Context, *MarkReadRequest) (*dto.ReadReceipt, error)
}

var _ MessagingServer = (*Server)(nil)

// Server exposes a Service over gRPC. Requests carry the acting user, so the
// listener must only be reachable from the API tier.
type Server struct {
	Service Service
}

func (s *Server) OpenConversation(ctx context.Context, req *OpenConversationRequest) (*dto.Conversation, error) {
	out, err := s.Service.OpenConversation(ctx, *req)
	return &out, toStatus(err)
}

func (s *Server) GetConversation(ctx context.Context, req *GetConversationRequest) (*dto.Conversation, error) {
	out, err := s.Service.GetConversation(ctx, *req)
	return &out, toStatus(err)
}

func (s *Server) ListConversations(ctx context.Context, req *ListConversationsRequest) (*dto.ConversationList, error) {
	out, err := s.Service.ListConversations(ctx, *req)
	return &out, toStatus(err)
}

func (s *Server) ListMessages(ctx context.Context, req *ListMessagesRequest) (*dto.MessageList, error) {
	out, err := s.Service.ListMessages(ctx, *req)
	return &out, toStatus(err)
}

func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*dto.Message, error) {
	out, err := s.Service.SendMessage(ctx, *req)
	return &out, toStatus(err)
}

func (s *Server) MarkRead(ctx context.Context, req *MarkReadRequest) (*dto.ReadReceipt, error) {
	out, err := s.Service.MarkRead(ctx, *req)
	return &out, toStatus(err)
}

// Register attaches the service to a grpc.Server.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&serviceDesc, s)
}

// LoggingInterceptor logs every call with its duration.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}
		if err != nil {
			logger.Warn("grpc call failed", append(attrs, "error", err)...)
		} else {
			logger.Debug("grpc call", attrs...)
		}
		return resp, err
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("OpenConversation", MessagingServer.OpenConversation),
		unary("GetConversation", MessagingServer.GetConversation),
		unary("ListConversations", MessagingServer.ListConversations),
		unary("ListMessages", MessagingServer.ListMessages),
		unary("SendMessage", MessagingServer.SendMessage),
		unary("MarkRead", MessagingServer.MarkRead),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kindbossing/messaging/v1",
}

func unary[Req, Resp any](name string, call func(MessagingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MessagingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MessagingServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}
