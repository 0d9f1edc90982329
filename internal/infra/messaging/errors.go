package messaging

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	chatapp "kindbossing/internal/app/handlers/chat"
	"kindbossing/internal/app/middleware"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
)

type errorCode struct {
	err  error
	code codes.Code
}

// knownErrors round-trips through status messages so the client returns
// the same sentinel the server saw.
var knownErrors = []errorCode{
	{chat.ErrConversationNotFound, codes.NotFound},
	{chat.ErrMessageNotFound, codes.NotFound},
	{matching.ErrApplicationNotFound, codes.NotFound},
	{chat.ErrEmptyContent, codes.InvalidArgument},
	{chat.ErrInvalidKind, codes.InvalidArgument},
	{chat.ErrFileRefRequired, codes.InvalidArgument},
	{chat.ErrTemporaryID, codes.InvalidArgument},
	{chat.ErrMatchRequired, codes.InvalidArgument},
	{chat.ErrSelfConversation, codes.InvalidArgument},
	{chat.ErrParticipantsRequired, codes.InvalidArgument},
	{chatapp.ErrConversationRequired, codes.InvalidArgument},
	{chat.ErrRecipientBlocked, codes.PermissionDenied},
	{chat.ErrNotParticipant, codes.PermissionDenied},
	{matching.ErrNotMatched, codes.PermissionDenied},
	{middleware.ErrForbidden, codes.PermissionDenied},
	{middleware.ErrUnauthenticated, codes.Unauthenticated},
	{chat.ErrConversationClosed, codes.FailedPrecondition},
	{chat.ErrConversationExists, codes.Aborted},
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, known := range knownErrors {
		if errors.Is(err, known.err) {
			return status.Error(known.code, known.err.Error())
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, known := range knownErrors {
		if st.Code() == known.code && st.Message() == known.err.Error() {
			return known.err
		}
	}
	return err
}
