package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kindbossing/internal/client/chatsync"
	"kindbossing/internal/domain/chat"
)

var (
	conversationsLimit int
	sendPeer           string
)

func init() {
	rootCmd.AddCommand(conversationsCmd, sendCmd)
	conversationsCmd.Flags().IntVar(&conversationsLimit, "limit", 20, "conversations to list")
	sendCmd.Flags().StringVar(&sendPeer, "peer", "", "peer user id, required for a temp_<match> conversation")
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List your conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		rows, err := s.api.ListConversations(cmd.Context(), conversationsLimit, 0)
		if err != nil {
			return err
		}
		list := chatsync.NewConversationList(s.userID)
		list.Load(rows)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWITH\tUNREAD\tLAST")
		for _, row := range list.Sorted() {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", row.ID, firstNonEmpty(row.PeerName, row.PeerID), row.UnreadCount, row.LastMessagePreview)
		}
		return w.Flush()
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text>...",
	Short: "Send one text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		id := chat.ConversationID(args[0])
		peer := sendPeer
		switch {
		case id.IsTemporary() && peer == "":
			return errors.New("--peer is required to start a conversation from a match")
		case peer == "":
			conv, err := s.api.Conversation(cmd.Context(), id)
			if err != nil {
				return err
			}
			peer = conv.PeerID
		}
		sender := chatsync.NewSender(chatsync.NewStore(), chatsync.SenderConfig{
			UserID:       s.userID,
			Writer:       s.api,
			Blocks:       s.api,
			Materializer: s.api,
			Logger:       s.logger,
		})
		sender.SetTarget(chatsync.Target{ConversationID: id, MatchID: id.TemporaryMatchID(), PeerID: peer})

		msg, err := sender.Send(cmd.Context(), chatsync.SendInput{Content: strings.Join(args[1:], " ")})
		if errors.Is(err, chat.ErrRecipientBlocked) {
			return errors.New("this user is not accepting messages from you")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s in %s\n", msg.ID, msg.ConversationID)
		return nil
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
