package realtime

import (
	"context"

	"kindbossing/internal/infra/messaging"
)

// ServiceMembership allows a subscription when the user can load the
// conversation through the messaging service.
func ServiceMembership(svc messaging.Service) MembershipFunc {
	return func(ctx context.Context, conversationID, userID string) error {
		_, err := svc.GetConversation(ctx, messaging.GetConversationRequest{
			ViewerID:       userID,
			ConversationID: conversationID,
		})
		return err
	}
}
