package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatterbox/devserver"
)

func newServeDevCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-dev",
		Short: "Run an in-memory backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer closeLog()

			srv := devserver.New(devserver.Options{Logger: log})
			fmt.Fprintf(cmd.OutOrStdout(), "Auth endpoint:     http://%s%s\n", addr, devserver.AuthPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Messages endpoint: http://%s%s\n", addr, devserver.MessagesPath)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	return cmd
}
