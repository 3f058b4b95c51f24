package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chatterbox/api"
	"chatterbox/messaging"
	"chatterbox/notifier"
)

func newChatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List your chats, pinned first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(e *env, _ api.User) error {
				sync := e.client.Sync()
				if err := sync.RefreshChats(cmd.Context()); err != nil {
					return err
				}
				notifier.PrintChats(cmd.OutOrStdout(), sync.Chats())
				return nil
			})
		},
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <chat-id>",
		Short: "Print a chat's history and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID("chat", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(e *env, user api.User) error {
				sync := e.client.Sync()
				if err := sync.SelectChat(cmd.Context(), chatID); err != nil {
					return err
				}
				messages, _ := sync.Messages(chatID)
				notifier.PrintMessages(cmd.OutOrStdout(), messages, user.ID)
				return nil
			})
		},
	}
}

func newPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <chat-id>",
		Short: "Pin or unpin a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID("chat", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(e *env, _ api.User) error {
				sync := e.client.Sync()
				if _, err := findChat(cmd, sync, chatID); err != nil {
					return err
				}
				if err := sync.TogglePin(cmd.Context(), chatID); err != nil {
					return err
				}
				chat, _ := sync.Chat(chatID)
				state := "Unpinned"
				if chat.Pinned {
					state = "Pinned"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s.\n", state, chat.Name)
				return nil
			})
		},
	}
}

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage group chats",
	}

	var name string
	create := &cobra.Command{
		Use:   "create --name <name> <user-id>...",
		Short: "Create a group with the given members",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID("user", arg)
				if err != nil {
					return err
				}
				members = append(members, id)
			}
			return withSession(cmd, func(e *env, _ api.User) error {
				chatID, err := e.client.Sync().CreateGroup(cmd.Context(), name, members)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created group %q (chat %d).\n", strings.TrimSpace(name), chatID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Group name")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Find people by name or username",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(e *env, _ api.User) error {
				users, err := e.client.Sync().SearchUsers(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				notifier.PrintUsers(cmd.OutOrStdout(), users)
				return nil
			})
		},
	}
}

func newStartChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-chat <user-id>",
		Short: "Open a 1:1 chat with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(e *env, user api.User) error {
				sync := e.client.Sync()
				chatID, err := sync.StartChat(cmd.Context(), peerID)
				if err != nil {
					return err
				}
				chat, _ := sync.Chat(chatID)
				fmt.Fprintf(cmd.OutOrStdout(), "Chat %d with %s is open.\n", chatID, chat.Name)
				messages, _ := sync.Messages(chatID)
				notifier.PrintMessages(cmd.OutOrStdout(), messages, user.ID)
				return nil
			})
		},
	}
}

// findChat refreshes the list and looks chatID up in it.
func findChat(cmd *cobra.Command, sync *messaging.Synchronizer, chatID int64) (api.Chat, error) {
	if err := sync.RefreshChats(cmd.Context()); err != nil {
		return api.Chat{}, err
	}
	chat, ok := sync.Chat(chatID)
	if !ok {
		return api.Chat{}, fmt.Errorf("%w: %d", messaging.ErrChatNotFound, chatID)
	}
	return chat, nil
}
