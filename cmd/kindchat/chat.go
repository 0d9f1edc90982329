package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"kindbossing/internal/client/chatsync"
	"kindbossing/internal/client/realtime"
	"kindbossing/internal/client/tui"
	"kindbossing/internal/domain/chat"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [conversation-id]",
	Short: "Open the conversation list, optionally jumping into one conversation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		var open *chatsync.Summary
		if len(args) == 1 {
			id := chat.ConversationID(args[0])
			open = &chatsync.Summary{ID: id, MatchID: id.TemporaryMatchID()}
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runChat(ctx, s, open)
	},
}

// runChat connects the realtime client and runs the chat view until the
// user quits.
func runChat(ctx context.Context, s *session, open *chatsync.Summary) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbox := tui.NewInbox()
	rt := realtime.New(realtime.Config{
		BaseURL:        s.api.BaseURL(),
		Token:          s.api.Token(),
		Logger:         s.logger,
		OnNotification: inbox.Notification,
		OnState:        inbox.ConnState,
	})
	if err := rt.Connect(ctx); err != nil {
		return fmt.Errorf("realtime connect: %w", err)
	}
	defer rt.Close()

	sess := chatsync.NewSession(chatsync.SessionConfig{
		UserID:          s.userID,
		Fetcher:         s.api,
		Writer:          s.api,
		Subscriber:      rt,
		Blocks:          s.api,
		Broadcaster:     rt,
		Materializer:    s.api,
		Paginator:       chatsync.PaginatorConfig{ScrollTrigger: 2},
		Logger:          s.logger,
		OnRealtimeError: inbox.RealtimeError,
	})
	defer sess.Close()
	go sess.Bridge().RunSweeper(ctx, chatsync.DefaultSweepInterval)

	model := tui.NewChat(ctx, tui.ChatConfig{
		Session: sess,
		Backend: s.api,
		Inbox:   inbox,
		UserID:  s.userID,
		Open:    open,
	})
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
