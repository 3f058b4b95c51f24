package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatterbox/api"
	"chatterbox/callsim"
	"chatterbox/clock"
)

var callClock = clock.Real()

func newCallCmd() *cobra.Command {
	var duration time.Duration
	var muted bool
	cmd := &cobra.Command{
		Use:   "call <chat-id>",
		Short: "Place a simulated call and print its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID("chat", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(e *env, _ api.User) error {
				chat, err := findChat(cmd, e.client.Sync(), chatID)
				if err != nil {
					return err
				}

				call := callsim.Start(callsim.PeerFromChat(chat), callClock)
				if muted {
					call.ToggleMute()
				}
				e.log.Info().Str("call_id", call.ID.String()).Int64("chat_id", chatID).Msg("Call started")

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Calling %s...\n", chat.Name)
				ticker := callClock.NewTicker(time.Second)
				defer ticker.Stop()
				hangUp := callClock.After(duration)
			loop:
				for {
					select {
					case <-cmd.Context().Done():
						break loop
					case <-hangUp:
						break loop
					case <-ticker.C:
						fmt.Fprintln(out, call.Label())
					}
				}
				call.End()
				fmt.Fprintln(out, call.Label())
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "Hang up after this long")
	cmd.Flags().BoolVar(&muted, "muted", false, "Start with the microphone muted")
	return cmd
}
