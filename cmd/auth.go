package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"chatterbox/api"
	"chatterbox/notifier"
)

// readPassword returns the --password flag, or the first line of stdin.
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func newRegisterCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <username> <name>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, nil, false)
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := e.client.Register(cmd.Context(), args[0], args[1], pw)
			if err != nil {
				return fmt.Errorf("registration failed: %s", api.ErrorText(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! You are logged in as @%s.\n", user.Name, user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when omitted)")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, nil, false)
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := e.client.Login(cmd.Context(), args[0], pw)
			if err != nil {
				return fmt.Errorf("login failed: %s", api.ErrorText(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as @%s.\n", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, nil, false)
			if err != nil {
				return err
			}
			defer e.Close()

			e.client.Restore()
			if err := e.client.Logout(); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(_ *env, user api.User) error {
				notifier.PrintProfile(cmd.OutOrStdout(), user)
				return nil
			})
		},
	}
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(_ *env, user api.User) error {
				notifier.PrintProfile(cmd.OutOrStdout(), user)
				return nil
			})
		},
	}

	var name, username, bio, avatar, banner string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields; only the flags given are sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var change api.ProfileUpdate
			fields := map[string]struct {
				value string
				dst   **string
			}{
				"name":     {name, &change.Name},
				"username": {username, &change.Username},
				"bio":      {bio, &change.Bio},
				"avatar":   {avatar, &change.Avatar},
				"banner":   {banner, &change.Banner},
			}
			for flag, f := range fields {
				if cmd.Flags().Changed(flag) {
					v := f.value
					*f.dst = &v
				}
			}
			if change.IsEmpty() {
				return errors.New("nothing to update; pass at least one of --name, --username, --bio, --avatar, --banner")
			}

			return withSession(cmd, func(e *env, _ api.User) error {
				user, err := e.client.UpdateProfile(cmd.Context(), change)
				if err != nil {
					return fmt.Errorf("failed to update profile: %s", api.ErrorText(err))
				}
				notifier.PrintProfile(cmd.OutOrStdout(), user)
				return nil
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "Display name")
	update.Flags().StringVar(&username, "username", "", "Username")
	update.Flags().StringVar(&bio, "bio", "", "Bio")
	update.Flags().StringVar(&avatar, "avatar", "", "Avatar URL")
	update.Flags().StringVar(&banner, "banner", "", "Banner URL")

	cmd.AddCommand(show, update)
	return cmd
}
