package main

import (
	"chat-gateway/observability"
	"chat-gateway/pipeline"
	"chat-gateway/runtime/workers"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newDeadLettersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dead-letters",
		Aliases: []string{"dlq"},
		Short:   "Inspect and replay messages the pipeline gave up on",
	}
	cmd.AddCommand(newDeadLettersListCmd(), newDeadLettersReplayCmd())
	return cmd
}

func newDeadLettersListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			letters, err := b.deadLetters.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Failed At", "Chat", "Sender", "Attempts", "Reason", "Content")
			for _, letter := range letters {
				m := letter.Task.Message
				table.Append([]string{
					letter.FailedAt.Format(time.RFC3339),
					strconv.FormatInt(int64(m.ChatID), 10),
					string(m.SenderID),
					strconv.Itoa(letter.Task.Attempts),
					letter.Reason,
					m.Content,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum letters to show, 0 for all")
	return cmd
}

func newDeadLettersReplayCmd() *cobra.Command {
	var (
		limit     int
		consumers int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Push dead letters back through the persistence pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			cfg := pipeline.DefaultConfig()
			cfg.Workers = consumers
			replayed, err := replay(cmd.Context(), b, cfg, limit)
			if err != nil {
				return fmt.Errorf("replayed %d before failing: %w", replayed, err)
			}
			remaining, err := b.deadLetters.List(cmd.Context(), 0)
			if err != nil {
				return err
			}
			out := color.Green.Sprintf("replayed %d dead letters", replayed)
			if len(remaining) > 0 {
				out += color.Yellow.Sprintf(", %d still dead-lettered", len(remaining))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum letters to replay, 0 for all")
	cmd.Flags().IntVar(&consumers, "workers", 2, "Persistence consumers")
	return cmd
}

// replay runs the pipeline with its consumers until every replayed task was
// either stored or dead-lettered again.
func replay(ctx context.Context, b *backend, cfg pipeline.Config, limit int) (int, error) {
	log := logs.GetLoggerFromString(config.LogLevel)
	recorder := observability.NewRecorder(log, observability.NewMetrics(prometheus.NewRegistry()))
	persist := pipeline.New(log, cfg, b.store, b.deadLetters, recorder)

	sup := workers.NewSupervisor(log)
	sup.Add(persist.Consumers()...)
	workersCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(workersCtx)
	}()

	replayed, err := persist.Replay(ctx, limit)
	persist.Close()
	stop()
	<-done
	return replayed, err
}
