package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/playtrade/chatkit/internal/domain"
)

var conversationsType string

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List the session's conversations",
	Long: `List every conversation the authenticated user participates in,
optionally filtered by type (casual, order or support).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		convs, err := rt.api.ListConversations(ctx, domain.ConversationType(conversationsType))
		if err != nil {
			return fmt.Errorf("listing conversations: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tUNREAD\tLAST MESSAGE")
		for _, conv := range convs {
			preview := ""
			if conv.LastMessage != nil {
				preview = conv.LastMessage.Content
				if len(preview) > 48 {
					preview = preview[:48] + "..."
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", conv.ID, conv.Type, conv.UnreadCount, preview)
		}
		return w.Flush()
	},
}

func init() {
	conversationsCmd.Flags().StringVar(&conversationsType, "type", "", "filter by conversation type (casual, order, support)")
	rootCmd.AddCommand(conversationsCmd)
}
