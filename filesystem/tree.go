// filesystem/tree.go
//
// Package filesystem mirrors a note tree as a directory of markdown files.
// Folders become directories holding a .folder.yaml with their name and id;
// notes become .md files with YAML frontmatter.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vinizap/myworld/domain"
)

const folderFile = ".folder.yaml"

// Export writes t below dir, creating dir if needed. Existing files with
// the same names are overwritten.
func Export(dir string, t *domain.Tree) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return exportLevel(dir, t.Folders, t.Notes)
}

func exportLevel(dir string, folders []*domain.Folder, notes []*domain.Note) error {
	used := make(map[string]bool)
	for _, f := range folders {
		sub := filepath.Join(dir, uniqueName(used, slug(f.Name), ""))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return err
		}
		if err := writeFolderMeta(sub, f); err != nil {
			return err
		}
		if err := exportLevel(sub, f.Folders, f.Notes); err != nil {
			return err
		}
	}
	for _, n := range notes {
		path := filepath.Join(dir, uniqueName(used, slug(n.Title), ".md"))
		if err := WriteNote(path, n); err != nil {
			return fmt.Errorf("write note %s: %w", n.ID, err)
		}
	}
	return nil
}

// slug makes a title safe to use as a file name.
func slug(title string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	s = strings.TrimLeft(s, ".")
	if s == "" {
		return "untitled"
	}
	return s
}

func uniqueName(used map[string]bool, base, ext string) string {
	name := base + ext
	for i := 2; used[strings.ToLower(name)]; i++ {
		name = base + "-" + strconv.Itoa(i) + ext
	}
	used[strings.ToLower(name)] = true
	return name
}

// Load reads a directory written by Export, or any directory of markdown
// files, back into a tree. Hidden entries are skipped; entries appear in
// file name order.
func Load(dir string) (*domain.Tree, error) {
	folders, notes, err := loadLevel(dir, domain.Root)
	if err != nil {
		return nil, err
	}
	return &domain.Tree{Folders: folders, Notes: notes}, nil
}

func loadLevel(dir string, parent domain.ID) ([]*domain.Folder, []*domain.Note, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var (
		folders []*domain.Folder
		notes   []*domain.Note
	)
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			meta, err := readFolderMeta(path)
			if err != nil {
				return nil, nil, err
			}
			f := &domain.Folder{
				ID:       domain.Confirmed(meta.ID),
				ParentID: parent,
				Name:     meta.Name,
			}
			if f.ID.IsRoot() {
				// directories without metadata still need distinct ids
				f.ID = domain.Confirmed(path)
			}
			if f.Folders, f.Notes, err = loadLevel(path, f.ID); err != nil {
				return nil, nil, err
			}
			folders = append(folders, f)
			continue
		}

		if !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		note, err := ReadNote(path)
		if err != nil {
			return nil, nil, err
		}
		if note.ID.IsRoot() {
			note.ID = domain.Confirmed(path)
		}
		note.FolderID = parent
		notes = append(notes, note)
	}
	return folders, notes, nil
}

// Creator is the part of a repository Import needs.
type Creator interface {
	CreateNote(ctx context.Context, draft domain.NoteDraft) (*domain.Note, error)
	CreateFolder(ctx context.Context, draft domain.FolderDraft) (*domain.Folder, error)
}

type ImportStats struct {
	Folders int
	Notes   int
}

// Import recreates t through dst. Ids are assigned by dst; the shape,
// names, titles and content of t are kept.
func Import(ctx context.Context, dst Creator, t *domain.Tree) (ImportStats, error) {
	var stats ImportStats
	err := importLevel(ctx, dst, domain.Root, t.Folders, t.Notes, &stats)
	return stats, err
}

func importLevel(ctx context.Context, dst Creator, parent domain.ID, folders []*domain.Folder, notes []*domain.Note, stats *ImportStats) error {
	for _, f := range folders {
		created, err := dst.CreateFolder(ctx, domain.FolderDraft{Name: f.Name, ParentID: parent})
		if err != nil {
			return fmt.Errorf("import folder %q: %w", f.Name, err)
		}
		stats.Folders++
		if err := importLevel(ctx, dst, created.ID, f.Folders, f.Notes, stats); err != nil {
			return err
		}
	}
	for _, n := range notes {
		draft := domain.NoteDraft{Title: n.Title, FolderID: parent, Content: n.Content}
		if _, err := dst.CreateNote(ctx, draft); err != nil {
			return fmt.Errorf("import note %q: %w", n.Title, err)
		}
		stats.Notes++
	}
	return nil
}
