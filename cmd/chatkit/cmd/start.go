package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/playtrade/chatkit/internal/api"
)

var (
	startRecipient string
	startListing   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start or resume a direct conversation",
	Long: `Start a casual conversation with another user, or return the existing
one if you already share a thread.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		conv, err := rt.api.StartConversation(ctx, api.StartConversationRequest{
			RecipientID: startRecipient,
			ListingID:   startListing,
		})
		if err != nil {
			return fmt.Errorf("starting conversation: %w", err)
		}
		fmt.Println(conv.ID)
		return nil
	},
}

var orderCmd = &cobra.Command{
	Use:   "order <order-id>",
	Short: "Resolve the conversation attached to an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		conv, err := rt.api.OrderConversation(ctx, args[0])
		if err != nil {
			return fmt.Errorf("resolving order conversation: %w", err)
		}
		fmt.Println(conv.ID)
		return nil
	},
}

var inviteAdminCmd = &cobra.Command{
	Use:   "invite-admin <conversation-id>",
	Short: "Invite an admin into an order conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		conv, err := rt.api.InviteAdmin(ctx, args[0])
		if err != nil {
			return fmt.Errorf("inviting admin: %w", err)
		}
		if conv.AdminJoined {
			fmt.Printf("admin joined %s\n", conv.ID)
		} else {
			fmt.Printf("admin invited to %s\n", conv.ID)
		}
		return nil
	},
}

func init() {
	startCmd.Flags().StringVar(&startRecipient, "recipient", "", "user ID to start the conversation with")
	startCmd.Flags().StringVar(&startListing, "listing", "", "listing the conversation is about")
	_ = startCmd.MarkFlagRequired("recipient")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(inviteAdminCmd)
}
