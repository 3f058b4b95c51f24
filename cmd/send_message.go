package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chatterbox/api"
)

func newSendMessageCmd() *cobra.Command {
	var chat string
	cmd := &cobra.Command{
		Use:   "send --chat <chat-id> <text>...",
		Short: "Send a message to a chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chat == "" {
				return errors.New("chat is required (use --chat)")
			}
			chatID, err := parseID("chat", chat)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")

			return withSession(cmd, func(e *env, _ api.User) error {
				sync := e.client.Sync()
				target, err := findChat(cmd, sync, chatID)
				if err != nil {
					return err
				}
				if err := sync.SelectChat(cmd.Context(), chatID); err != nil {
					return err
				}
				msg, err := sync.SendMessage(cmd.Context(), text)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s (message %d).\n", target.Name, msg.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&chat, "chat", "", "Chat id")
	return cmd
}
