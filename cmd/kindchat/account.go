package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kindbossing/internal/domain/chat"
)

func init() {
	rootCmd.AddCommand(blockCmd, unblockCmd, notificationsCmd, attachCmd)
}

var blockCmd = &cobra.Command{
	Use:   "block <user-id>",
	Short: "Stop a user from messaging you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()
		if err := s.api.Block(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s\n", args[0])
		return nil
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <user-id>",
	Short: "Allow a blocked user to message you again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()
		if err := s.api.Unblock(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unblocked %s\n", args[0])
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List your notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()
		list, err := s.api.Notifications(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "UNREAD: %d\n", list.Unread)
		for _, n := range list.Items {
			mark := " "
			if n.ReadAt == nil {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, n.CreatedAt.Local().Format("Jan 2 15:04"), n.Title, n.Link)
		}
		return w.Flush()
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <conversation-id> <file>",
	Short: "Upload a file and send it as a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		conv := chat.ConversationID(args[0])
		att, err := s.api.UploadAttachment(cmd.Context(), conv, filepath.Base(args[1]), f)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		msg, err := s.api.WriteMessage(cmd.Context(), chat.WriteRequest{
			ConversationID: conv,
			SenderID:       s.userID,
			Content:        att.Name,
			Kind:           chat.KindFile,
			FileRef:        att.FileRef,
		})
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s (%d bytes) as %s\n", att.Name, att.Size, msg.ID)
		return nil
	},
}
