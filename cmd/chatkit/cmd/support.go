package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/playtrade/chatkit/internal/api"
)

var supportSubject string

var supportCmd = &cobra.Command{
	Use:   "support",
	Short: "Manage support conversations",
}

var supportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new support request",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		conv, err := rt.api.CreateSupportRequest(ctx, api.SupportRequest{Subject: supportSubject})
		if err != nil {
			return fmt.Errorf("creating support request: %w", err)
		}
		fmt.Printf("support conversation %s (%s)\n", conv.ID, conv.SupportStatus)
		return nil
	},
}

var supportAcceptCmd = &cobra.Command{
	Use:   "accept <conversation-id>",
	Short: "Accept a pending support request (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return supportTransition(cmd, args[0], "accept")
	},
}

var supportCloseCmd = &cobra.Command{
	Use:   "close <conversation-id>",
	Short: "Close an active support request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return supportTransition(cmd, args[0], "close")
	},
}

func supportTransition(cmd *cobra.Command, conversationID, action string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	switch action {
	case "accept":
		c, err := rt.api.AcceptSupportRequest(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("accepting support request: %w", err)
		}
		fmt.Printf("support conversation %s is now %s\n", c.ID, c.SupportStatus)
	case "close":
		c, err := rt.api.CloseSupportRequest(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("closing support request: %w", err)
		}
		fmt.Printf("support conversation %s is now %s\n", c.ID, c.SupportStatus)
	}
	return nil
}

func init() {
	supportCreateCmd.Flags().StringVar(&supportSubject, "subject", "", "what the request is about")
	_ = supportCreateCmd.MarkFlagRequired("subject")

	supportCmd.AddCommand(supportCreateCmd)
	supportCmd.AddCommand(supportAcceptCmd)
	supportCmd.AddCommand(supportCloseCmd)
	rootCmd.AddCommand(supportCmd)
}
