package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/playtrade/chatkit/internal/domain"
	"github.com/playtrade/chatkit/internal/pubsub"
	"github.com/playtrade/chatkit/internal/topics"
)

var watchCmd = &cobra.Command{
	Use:   "watch <conversation-id>",
	Short: "Attach to a conversation and exchange messages live",
	Long: `Attach to a conversation, print incoming messages and typing updates as
they arrive, and send whatever you type. Lines starting with "/" are
commands:

  /read        mark the visible messages as read
  /attach URL  add an attachment URL to the draft
  /quit        disconnect and exit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := subscribePrinters(ctx, rt); err != nil {
			return err
		}
		if err := rt.client.Start(ctx); err != nil {
			return fmt.Errorf("starting conversation client: %w", err)
		}

		go rt.manager.Run(ctx)

		rt.client.SetActive(ctx, args[0])

		go readInput(ctx, rt, stop)

		<-ctx.Done()
		fmt.Println("disconnected")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// subscribePrinters wires the bus events to stdout.
func subscribePrinters(ctx context.Context, rt *runtime) error {
	if err := pubsub.SubscribeTo(ctx, rt.bus, topics.ConnectionStatus, func(_ context.Context, s topics.StatusUpdate) error {
		fmt.Printf("* connection %s\n", s.Status)
		return nil
	}); err != nil {
		return err
	}

	selfID := rt.session.UserID
	if err := pubsub.SubscribeTo(ctx, rt.bus, topics.MessageReceived, func(_ context.Context, msg domain.Message) error {
		who := msg.SenderID
		if msg.Sender != nil && msg.Sender.Username != "" {
			who = msg.Sender.Username
		}
		if msg.SenderID == selfID {
			who = "you"
		}
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), who, msg.Content)
		for _, a := range msg.Attachments {
			fmt.Printf("  attachment: %s\n", a)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := pubsub.SubscribeTo(ctx, rt.bus, topics.TypingUpdated, func(_ context.Context, t topics.TypingUpdate) error {
		if len(t.UserIDs) == 0 {
			return nil
		}
		fmt.Printf("* typing: %s\n", strings.Join(t.UserIDs, ", "))
		return nil
	}); err != nil {
		return err
	}

	return pubsub.SubscribeTo(ctx, rt.bus, topics.Notices, func(_ context.Context, n topics.Notice) error {
		fmt.Printf("* %s: %s\n", n.Level, n.Message)
		return nil
	})
}

// readInput consumes stdin until EOF or /quit. Every plain line is composed
// and sent through the client so the typing and fallback behavior matches an
// interactive UI.
func readInput(ctx context.Context, rt *runtime, stop context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			stop()
			return
		case line == "/read":
			marked, err := rt.client.MarkVisible(ctx, true)
			if err != nil {
				fmt.Printf("* mark read failed: %v\n", err)
				continue
			}
			fmt.Printf("* marked %d read\n", marked)
		case strings.HasPrefix(line, "/attach "):
			rt.client.Attach(strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))
			fmt.Println("* attachment added to draft")
		case strings.HasPrefix(line, "/"):
			fmt.Printf("* unknown command %s\n", line)
		default:
			rt.client.Compose(ctx, line)
			if err := rt.client.Send(ctx); err != nil {
				fmt.Printf("* send failed, draft kept: %v\n", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("reading stdin", "error", err)
	}
	stop()
}
