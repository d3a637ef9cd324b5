// http/handlers.go
package http

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/vinizap/myworld/domain"
	"github.com/vinizap/myworld/events"
)

func idParam(c *fiber.Ctx) domain.ID {
	return domain.Confirmed(c.Params("id"))
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("decode body: %s: %w", err, domain.ErrInvalid)
	}
	return nil
}

func (s *Server) HandleTree(c *fiber.Ctx) error {
	tree, err := s.repo.FetchTree(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(tree)
}

func (s *Server) HandleGetNote(c *fiber.Ctx) error {
	note, err := s.repo.GetNote(c.UserContext(), idParam(c))
	if err != nil {
		return err
	}
	return c.JSON(note)
}

// HandleNoteHTML renders the note's markdown content.
func (s *Server) HandleNoteHTML(c *fiber.Ctx) error {
	note, err := s.repo.GetNote(c.UserContext(), idParam(c))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(note.Content), &buf); err != nil {
		return fmt.Errorf("render note %s: %w", note.ID, err)
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

func (s *Server) HandleCreateNote(c *fiber.Ctx) error {
	var req domain.NoteDraft
	if err := parseBody(c, &req); err != nil {
		return err
	}

	note, err := s.repo.CreateNote(c.UserContext(), req)
	if err != nil {
		return err
	}

	s.hub.NoteChanged(events.NoteCreated, note)
	return c.Status(fiber.StatusCreated).JSON(note)
}

func (s *Server) HandleUpdateNote(c *fiber.Ctx) error {
	var req domain.NotePatch
	if err := parseBody(c, &req); err != nil {
		return err
	}

	note, err := s.repo.UpdateNote(c.UserContext(), idParam(c), req)
	if err != nil {
		return err
	}

	s.hub.NoteChanged(events.NoteUpdated, note)
	return c.JSON(note)
}

func (s *Server) HandleDeleteNote(c *fiber.Ctx) error {
	id := idParam(c)
	if err := s.repo.DeleteNote(c.UserContext(), id); err != nil {
		return err
	}

	s.hub.Deleted(events.NoteDeleted, id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) HandleCreateFolder(c *fiber.Ctx) error {
	var req domain.FolderDraft
	if err := parseBody(c, &req); err != nil {
		return err
	}

	folder, err := s.repo.CreateFolder(c.UserContext(), req)
	if err != nil {
		return err
	}

	s.hub.FolderChanged(events.FolderCreated, folder)
	return c.Status(fiber.StatusCreated).JSON(folder)
}

// HandleUpdateFolder renames and/or moves a folder.
func (s *Server) HandleUpdateFolder(c *fiber.Ctx) error {
	var req domain.FolderPatch
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.IsEmpty() {
		return fmt.Errorf("empty folder patch: %w", domain.ErrInvalid)
	}

	folder, err := s.repo.UpdateFolder(c.UserContext(), idParam(c), req)
	if err != nil {
		return err
	}

	s.hub.FolderChanged(events.FolderUpdated, folder)
	return c.JSON(folder)
}

func (s *Server) HandleDeleteFolder(c *fiber.Ctx) error {
	id := idParam(c)
	if err := s.repo.DeleteFolder(c.UserContext(), id); err != nil {
		return err
	}

	s.hub.Deleted(events.FolderDeleted, id)
	return c.SendStatus(fiber.StatusNoContent)
}
