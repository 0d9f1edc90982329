package chat

import "errors"

var ErrConversationRequired = errors.New("chat: conversation id is required")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)
