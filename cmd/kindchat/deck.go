package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"kindbossing/internal/client/deck"
	"kindbossing/internal/client/tui"
)

var deckPageSize int

func init() {
	rootCmd.AddCommand(deckCmd)
	deckCmd.Flags().IntVar(&deckPageSize, "page-size", deck.DefaultPageSize, "candidates fetched per refill")
}

var deckCmd = &cobra.Command{
	Use:   "deck [job-id]",
	Short: "Swipe through the pending applicants of a job",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		jobID := s.cfg.JobID
		if len(args) == 1 {
			jobID = args[0]
		}
		if jobID == "" {
			return errors.New("no job given; pass one or run 'kindchat config set job_id <id>'")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		inbox := tui.NewInbox()
		queue := deck.NewQueue(deck.QueueConfig{
			Decider:   deck.RemoteDecider{Client: s.api},
			Navigator: inbox,
			OnError:   inbox.DecisionFailed,
			Logger:    s.logger,
		})
		d := deck.New(queue, s.api, jobID, deckPageSize)

		final, runErr := tea.NewProgram(tui.NewDeck(ctx, d, inbox, jobID), tea.WithContext(ctx)).Run()

		// let queued decisions reach the server before leaving
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Shutdown(drainCtx); err != nil {
			s.logger.Warn("decision queue did not drain", "pending", queue.Len(), "error", err)
		}
		if runErr != nil {
			return runErr
		}

		if m, ok := final.(tui.DeckModel); ok {
			if match, ok := m.Chat(); ok {
				return runChat(ctx, s, &match)
			}
		}
		return nil
	},
}
