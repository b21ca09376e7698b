package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/playtrade/chatkit/internal/api"
	"github.com/playtrade/chatkit/internal/upload"
)

var (
	sendMessage string
	sendAttach  []string
)

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id>",
	Short: "Send a single message over the REST API",
	Long: `Send one message to a conversation without attaching to the push
channel. Local files named with --attach are uploaded first and their
URLs attached to the message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendMessage == "" && len(sendAttach) == 0 {
			return fmt.Errorf("nothing to send: provide --message or --attach")
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		var urls []string
		if len(sendAttach) > 0 {
			uploader := upload.NewUploader(rt.cfg.UploadURL, rt.cfg.Token)
			for _, path := range sendAttach {
				url, err := uploader.Upload(ctx, path)
				if err != nil {
					return err
				}
				urls = append(urls, url)
			}
		}

		msg, err := rt.api.SendMessage(ctx, args[0], api.SendMessageRequest{
			Content:     sendMessage,
			Attachments: urls,
		})
		if err != nil {
			return fmt.Errorf("sending message: %w", err)
		}

		fmt.Printf("sent %s at %s\n", msg.ID, msg.CreatedAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "", "message text")
	sendCmd.Flags().StringSliceVar(&sendAttach, "attach", nil, "local file to upload and attach (repeatable)")
	rootCmd.AddCommand(sendCmd)
}
