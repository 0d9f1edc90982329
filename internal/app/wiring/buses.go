// Package wiring registers every use case on the in-memory buses and wraps
// them with the middleware chain shared by the API and messaging binaries.
package wiring

import (
	"log/slog"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	blocksapp "kindbossing/internal/app/handlers/blocks"
	chatapp "kindbossing/internal/app/handlers/chat"
	matchingapp "kindbossing/internal/app/handlers/matching"
	notificationsapp "kindbossing/internal/app/handlers/notifications"
	"kindbossing/internal/app/middleware"
	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/queries"
	"kindbossing/internal/app/uow"
)

type Deps struct {
	UoWFactory  uow.UoWFactory
	Outbox      outbox.Outbox
	Idempotency middleware.IdempotencyStore
	Encoder     outbox.EventEncoder
	// Observe is optional; metrics and slow-call logging hang off it.
	Observe middleware.ObserveFunc
	Logger  *slog.Logger
}

type Buses struct {
	Commands commands.Bus
	Queries  queries.Bus
}

// Build registers all handlers. Commands run through
// observe, validation, authorization, outbox flush, idempotency and the
// transaction, in that order from the outside in.
func Build(d Deps) Buses {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Encoder == nil {
		d.Encoder = outbox.JSONEventEncoder{}
	}

	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()

	commands.RegisterHandler[chatapp.SendMessageCommand, dto.Message](commandBus, chatapp.SendMessageCommand{}.Key(), &chatapp.SendMessageHandler{
		UoWFactory: d.UoWFactory, Outbox: d.Outbox, Encoder: d.Encoder, Logger: d.Logger,
	})
	commands.RegisterHandler[chatapp.OpenConversationCommand, dto.Conversation](commandBus, chatapp.OpenConversationCommand{}.Key(), &chatapp.OpenConversationHandler{
		UoWFactory: d.UoWFactory, Outbox: d.Outbox, Encoder: d.Encoder, Logger: d.Logger,
	})
	commands.RegisterHandler[chatapp.MarkReadCommand, dto.ReadReceipt](commandBus, chatapp.MarkReadCommand{}.Key(), &chatapp.MarkReadHandler{
		UoWFactory: d.UoWFactory, Outbox: d.Outbox, Encoder: d.Encoder, Logger: d.Logger,
	})
	commands.RegisterHandler[matchingapp.DecideApplicationCommand, dto.Decision](commandBus, matchingapp.DecideApplicationCommand{}.Key(), &matchingapp.DecideApplicationHandler{
		UoWFactory: d.UoWFactory, Outbox: d.Outbox, Encoder: d.Encoder, Logger: d.Logger,
	})
	commands.RegisterHandler[blocksapp.BlockUserCommand, dto.BlockStatus](commandBus, blocksapp.BlockUserCommand{}.Key(), &blocksapp.BlockUserHandler{
		UoWFactory: d.UoWFactory, Outbox: d.Outbox, Encoder: d.Encoder, Logger: d.Logger,
	})
	commands.RegisterHandler[blocksapp.UnblockUserCommand, dto.BlockStatus](commandBus, blocksapp.UnblockUserCommand{}.Key(), &blocksapp.UnblockUserHandler{
		UoWFactory: d.UoWFactory, Logger: d.Logger,
	})
	commands.RegisterHandler[notificationsapp.MarkNotificationReadCommand, dto.Notification](commandBus, notificationsapp.MarkNotificationReadCommand{}.Key(), &notificationsapp.MarkNotificationReadHandler{
		UoWFactory: d.UoWFactory,
	})

	queries.RegisterHandler[chatapp.ListMessagesQuery, dto.MessageList](queryBus, chatapp.ListMessagesQuery{}.Key(), &chatapp.ListMessagesHandler{UoWFactory: d.UoWFactory, Logger: d.Logger})
	queries.RegisterHandler[chatapp.ListConversationsQuery, dto.ConversationList](queryBus, chatapp.ListConversationsQuery{}.Key(), &chatapp.ListConversationsHandler{UoWFactory: d.UoWFactory, Logger: d.Logger})
	queries.RegisterHandler[chatapp.GetConversationQuery, dto.Conversation](queryBus, chatapp.GetConversationQuery{}.Key(), &chatapp.GetConversationHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler[matchingapp.ListCandidatesQuery, dto.CandidateList](queryBus, matchingapp.ListCandidatesQuery{}.Key(), &matchingapp.ListCandidatesHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler[blocksapp.IsBlockedQuery, dto.BlockStatus](queryBus, blocksapp.IsBlockedQuery{}.Key(), &blocksapp.IsBlockedHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler[notificationsapp.ListNotificationsQuery, dto.NotificationList](queryBus, notificationsapp.ListNotificationsQuery{}.Key(), &notificationsapp.ListNotificationsHandler{UoWFactory: d.UoWFactory})

	var commandMW []middleware.CommandMiddleware
	var queryMW []middleware.QueryMiddleware
	if d.Observe != nil {
		commandMW = append(commandMW, middleware.ObserveCommands(d.Observe))
		queryMW = append(queryMW, middleware.ObserveQueries(d.Observe))
	}
	commandMW = append(commandMW,
		middleware.Validation(middleware.SelfValidator{}),
		middleware.Authorization(middleware.ActorAuthorizer{}),
		middleware.OutboxFlush(d.Outbox),
	)
	if d.Idempotency != nil {
		commandMW = append(commandMW, middleware.Idempotency(d.Idempotency, nil))
	}
	commandMW = append(commandMW, middleware.Transaction(d.UoWFactory))
	queryMW = append(queryMW,
		middleware.QueryValidation(middleware.SelfValidator{}),
		middleware.QueryAuthorization(middleware.ActorAuthorizer{}),
	)

	return Buses{
		Commands: middleware.ChainCommands(commandBus, commandMW...),
		Queries:  middleware.ChainQueries(queryBus, queryMW...),
	}
}
