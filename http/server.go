// http/server.go
//
// Package http serves the note tree over a JSON API and streams change
// events to connected clients.
package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/vinizap/myworld/auth"
	"github.com/vinizap/myworld/domain"
	"github.com/vinizap/myworld/events"
	"github.com/yuin/goldmark"
)

// Repository is the storage the server exposes. Missing entities are
// reported with domain.ErrNotFound.
type Repository interface {
	FetchTree(ctx context.Context) (*domain.Tree, error)
	GetNote(ctx context.Context, id domain.ID) (*domain.Note, error)
	CreateNote(ctx context.Context, draft domain.NoteDraft) (*domain.Note, error)
	UpdateNote(ctx context.Context, id domain.ID, patch domain.NotePatch) (*domain.Note, error)
	DeleteNote(ctx context.Context, id domain.ID) error
	CreateFolder(ctx context.Context, draft domain.FolderDraft) (*domain.Folder, error)
	UpdateFolder(ctx context.Context, id domain.ID, patch domain.FolderPatch) (*domain.Folder, error)
	DeleteFolder(ctx context.Context, id domain.ID) error
}

type Server struct {
	repo     Repository
	hub      *events.Hub
	log      zerolog.Logger
	markdown goldmark.Markdown
}

func NewServer(repo Repository, hub *events.Hub, log zerolog.Logger) *Server {
	return &Server{
		repo:     repo,
		hub:      hub,
		log:      log,
		markdown: goldmark.New(),
	}
}

type AppConfig struct {
	// PasswordHash is the bcrypt hash API requests must present. Empty
	// disables authentication.
	PasswordHash string
	AllowOrigins string
	// Registry receives the HTTP metrics and is served at /metrics. Nil
	// disables both.
	Registry *prometheus.Registry
}

// App builds the fiber application serving s.
func (s *Server) App(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "myworld",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	if cfg.AllowOrigins == "" {
		cfg.AllowOrigins = "*"
	}
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Content-Type, " + auth.Header,
	}))
	if cfg.Registry != nil {
		app.Use(newMetrics(cfg.Registry).middleware)
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", auth.Middleware(cfg.PasswordHash))
	s.Routes(api)
	return app
}

func (s *Server) Routes(r fiber.Router) {
	r.Get("/tree", s.HandleTree)
	r.Get("/events", s.HandleEvents)

	r.Post("/notes", s.HandleCreateNote)
	r.Get("/notes/:id", s.HandleGetNote)
	r.Get("/notes/:id/html", s.HandleNoteHTML)
	r.Patch("/notes/:id", s.HandleUpdateNote)
	r.Delete("/notes/:id", s.HandleDeleteNote)

	r.Post("/folders", s.HandleCreateFolder)
	r.Patch("/folders/:id", s.HandleUpdateFolder)
	r.Delete("/folders/:id", s.HandleDeleteFolder)
}
