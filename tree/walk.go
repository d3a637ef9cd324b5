// tree/walk.go
package tree

import (
	"fmt"

	"github.com/vinizap/myworld/domain"
)

// Entry is what the side index stores for every id in a tree.
type Entry struct {
	Kind   domain.Kind
	Parent domain.ID
}

// Index maps every note and folder id of a tree to its kind and container.
type Index map[domain.ID]Entry

func BuildIndex(t *domain.Tree) Index {
	idx := make(Index)
	Walk(t, func(kind domain.Kind, id, parent domain.ID) {
		idx[id] = Entry{Kind: kind, Parent: parent}
	})
	return idx
}

// Walk visits every entity in find order: root notes, then each folder
// followed by its notes and its subfolders.
func Walk(t *domain.Tree, fn func(kind domain.Kind, id, parent domain.ID)) {
	for _, n := range t.Notes {
		fn(domain.KindNote, n.ID, domain.Root)
	}
	walkFolders(t.Folders, domain.Root, fn)
}

// WalkFolder visits f and everything below it.
func WalkFolder(f *domain.Folder, fn func(kind domain.Kind, id, parent domain.ID)) {
	walkFolders([]*domain.Folder{f}, f.ParentID, fn)
}

func walkFolders(folders []*domain.Folder, parent domain.ID, fn func(kind domain.Kind, id, parent domain.ID)) {
	for _, f := range folders {
		fn(domain.KindFolder, f.ID, parent)
		for _, n := range f.Notes {
			fn(domain.KindNote, n.ID, f.ID)
		}
		walkFolders(f.Folders, f.ID, fn)
	}
}

// NoteIDs lists the notes of a folder's subtree.
func NoteIDs(f *domain.Folder) []domain.ID {
	var ids []domain.ID
	WalkFolder(f, func(kind domain.Kind, id, _ domain.ID) {
		if kind == domain.KindNote {
			ids = append(ids, id)
		}
	})
	return ids
}

// Validate checks the tree invariants: ids are unique and non-root, and
// every child points back at the container that lists it.
func Validate(t *domain.Tree) error {
	seen := make(map[domain.ID]bool)
	if err := validateNotes(t.Notes, domain.Root, seen); err != nil {
		return err
	}
	return validateFolders(t.Folders, domain.Root, seen)
}

func validateFolders(folders []*domain.Folder, parent domain.ID, seen map[domain.ID]bool) error {
	for _, f := range folders {
		if err := check(f.ID, f.ParentID, parent, seen); err != nil {
			return fmt.Errorf("folder %s: %w", f.ID, err)
		}
		if err := validateNotes(f.Notes, f.ID, seen); err != nil {
			return err
		}
		if err := validateFolders(f.Folders, f.ID, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateNotes(notes []*domain.Note, parent domain.ID, seen map[domain.ID]bool) error {
	for _, n := range notes {
		if err := check(n.ID, n.FolderID, parent, seen); err != nil {
			return fmt.Errorf("note %s: %w", n.ID, err)
		}
	}
	return nil
}

func check(id, ref, parent domain.ID, seen map[domain.ID]bool) error {
	switch {
	case id.IsRoot():
		return fmt.Errorf("empty id: %w", domain.ErrInvalid)
	case seen[id]:
		return fmt.Errorf("duplicate id: %w", domain.ErrInvalid)
	case ref != parent:
		return fmt.Errorf("parent is %s but listed under %s: %w", ref, parent, domain.ErrInvalid)
	}
	seen[id] = true
	return nil
}

// RewriteFolderIDs returns a deep copy of f where every id for which fn
// reports a replacement is swapped, parent references included. Rewritten
// entities lose their optimistic flag.
func RewriteFolderIDs(f *domain.Folder, fn func(domain.ID) (domain.ID, bool)) *domain.Folder {
	cp := f.Copy()
	if id, ok := fn(f.ID); ok {
		cp.ID = id
		cp.Optimistic = false
	}
	if id, ok := fn(f.ParentID); ok {
		cp.ParentID = id
	}
	if f.Notes != nil {
		cp.Notes = make([]*domain.Note, len(f.Notes))
		for i, n := range f.Notes {
			cp.Notes[i] = RewriteNoteIDs(n, fn)
		}
	}
	if f.Folders != nil {
		cp.Folders = make([]*domain.Folder, len(f.Folders))
		for i, sub := range f.Folders {
			cp.Folders[i] = RewriteFolderIDs(sub, fn)
		}
	}
	return cp
}

func RewriteNoteIDs(n *domain.Note, fn func(domain.ID) (domain.ID, bool)) *domain.Note {
	cp := n.Copy()
	if id, ok := fn(n.ID); ok {
		cp.ID = id
		cp.Optimistic = false
	}
	if id, ok := fn(n.FolderID); ok {
		cp.FolderID = id
	}
	return cp
}
