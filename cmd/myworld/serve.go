// cmd/myworld/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/vinizap/myworld/events"
	"github.com/vinizap/myworld/filesystem"
	myhttp "github.com/vinizap/myworld/http"
	"github.com/vinizap/myworld/repository/memory"
	"github.com/vinizap/myworld/repository/postgres"
	"golang.org/x/sync/errgroup"
)

func serveCmd(a *app) *cobra.Command {
	var seedDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, seedDir)
		},
	}
	cmd.Flags().StringVar(&seedDir, "seed", "", "Import a markdown directory into the repository on startup")
	return cmd
}

func (a *app) openRepository(ctx context.Context) (myhttp.Repository, func(), error) {
	switch a.cfg.Database.Driver {
	case "postgres":
		repo, err := postgres.Open(ctx, a.cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func (a *app) serve(ctx context.Context, seedDir string) error {
	log := a.log.With().Str("component", "server").Logger()

	repo, closeRepo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	if seedDir != "" {
		t, err := filesystem.Load(seedDir)
		if err != nil {
			return fmt.Errorf("read seed directory: %w", err)
		}
		stats, err := filesystem.Import(ctx, repo, t)
		if err != nil {
			return fmt.Errorf("seed repository: %w", err)
		}
		log.Info().Int("folders", stats.Folders).Int("notes", stats.Notes).Str("dir", seedDir).Msg("seeded repository")
	}

	if a.cfg.Server.PasswordHash == "" {
		log.Warn().Msg("server.password_hash is empty, API is unauthenticated")
	}

	var reg *prometheus.Registry
	if a.cfg.Server.Metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	hub := events.NewHub(log)
	server := myhttp.NewServer(repo, hub, log)
	app := server.App(myhttp.AppConfig{
		PasswordHash: a.cfg.Server.PasswordHash,
		AllowOrigins: a.cfg.Server.AllowOrigins,
		Registry:     reg,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", a.cfg.Server.Addr).Str("driver", a.cfg.Database.Driver).Msg("server starting")
		return app.Listen(a.cfg.Server.Addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		return app.ShutdownWithTimeout(5 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
