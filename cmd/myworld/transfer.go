// cmd/myworld/transfer.go
package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vinizap/myworld/auth"
	"github.com/vinizap/myworld/filesystem"
)

func exportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export DIR",
		Short: "Write the server's tree to a directory of markdown files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.remote().FetchTree(cmd.Context())
			if err != nil {
				return err
			}
			if err := filesystem.Export(args[0], t); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			a.log.Info().Str("dir", args[0]).Msg("exported tree")
			return nil
		},
	}
}

func importCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import DIR",
		Short: "Create the folders and notes found in a markdown directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := filesystem.Load(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			stats, err := filesystem.Import(cmd.Context(), a.remote(), t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d folders and %d notes\n", stats.Folders, stats.Notes)
			return nil
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Print a bcrypt hash for server.password_hash",
		Long:  "Print a bcrypt hash for server.password_hash. Without an argument the password is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
