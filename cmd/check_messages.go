package cmd

import (
	"github.com/spf13/cobra"

	"chatterbox/api"
	"chatterbox/notifier"
)

func newCheckMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-messages",
		Short: "Print chats with unread messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(e *env, _ api.User) error {
				summaries, err := e.client.PollUnread(cmd.Context())
				if err != nil {
					return err
				}
				notifier.PrintSummaries(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
}
