// cmd/myworld/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/vinizap/myworld/client"
	"github.com/vinizap/myworld/config"
	"github.com/vinizap/myworld/store"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
	log        zerolog.Logger
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = cfg.Logger()
	return nil
}

func (a *app) remote() *client.Client {
	return client.New(a.cfg.Client.BaseURL,
		client.WithToken(a.cfg.Client.Token),
		client.WithTimeout(a.cfg.Client.Timeout))
}

// openStore mirrors the server's tree into a local store.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	s := store.New(a.remote(),
		store.WithLogger(a.log),
		store.WithMoveConcurrency(a.cfg.Store.MoveConcurrency))
	if err := s.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load tree from %s: %w", a.cfg.Client.BaseURL, err)
	}
	return s, nil
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "myworld",
		Short: "Hierarchical notes server and client",
		Long: `myworld keeps notes in a tree of folders.

"myworld serve" runs the API server over an in-memory or Postgres
repository. The other commands talk to a running server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "hash-password" {
				return nil
			}
			return a.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "myworld.yaml", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file")

	cmd.AddCommand(
		serveCmd(a),
		treeCmd(a),
		mkdirCmd(a),
		newCmd(a),
		editCmd(a),
		mvCmd(a),
		rmCmd(a),
		renameCmd(a),
		showCmd(a),
		exportCmd(a),
		importCmd(a),
		hashPasswordCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "myworld version %s (build: %s)\n", Version, BuildTime)
			},
		},
	)
	return cmd
}
