// tree/tree.go
//
// Package tree holds pure helpers over domain.Tree snapshots. Every helper
// returns a new tree that shares untouched subtrees with its input; the
// input is never modified. Helpers trust their arguments: cycle checks and
// pending-ID checks belong to the caller.
package tree

import "github.com/vinizap/myworld/domain"

// Location is where an entity sits: the container it is listed in and its
// position in that container's note or folder list.
type Location struct {
	Kind   domain.Kind
	Parent domain.ID
	Index  int
}

// FindNote searches root notes first, then each folder (its notes before
// its subfolders).
func FindNote(t *domain.Tree, id domain.ID) *domain.Note {
	for _, n := range t.Notes {
		if n.ID == id {
			return n
		}
	}
	return findNoteIn(t.Folders, id)
}

func findNoteIn(folders []*domain.Folder, id domain.ID) *domain.Note {
	for _, f := range folders {
		for _, n := range f.Notes {
			if n.ID == id {
				return n
			}
		}
		if n := findNoteIn(f.Folders, id); n != nil {
			return n
		}
	}
	return nil
}

func FindFolder(t *domain.Tree, id domain.ID) *domain.Folder {
	if id.IsRoot() {
		return nil
	}
	return findFolderIn(t.Folders, id)
}

func findFolderIn(folders []*domain.Folder, id domain.ID) *domain.Folder {
	for _, f := range folders {
		if f.ID == id {
			return f
		}
		if found := findFolderIn(f.Folders, id); found != nil {
			return found
		}
	}
	return nil
}

// Locate returns where the note or folder with the given id lives.
func Locate(t *domain.Tree, id domain.ID) (Location, bool) {
	if id.IsRoot() {
		return Location{}, false
	}
	return locateIn(domain.Root, t.Folders, t.Notes, id)
}

func locateIn(parent domain.ID, folders []*domain.Folder, notes []*domain.Note, id domain.ID) (Location, bool) {
	for i, n := range notes {
		if n.ID == id {
			return Location{Kind: domain.KindNote, Parent: parent, Index: i}, true
		}
	}
	for i, f := range folders {
		if f.ID == id {
			return Location{Kind: domain.KindFolder, Parent: parent, Index: i}, true
		}
	}
	for _, f := range folders {
		if loc, ok := locateIn(f.ID, f.Folders, f.Notes, id); ok {
			return loc, true
		}
	}
	return Location{}, false
}

type container struct {
	folders []*domain.Folder
	notes   []*domain.Note
}

// editContainer rebuilds the path from the root to the container with the
// given id and lets fn replace the container's child lists.
func editContainer(t *domain.Tree, id domain.ID, fn func(c *container)) (*domain.Tree, bool) {
	if id.IsRoot() {
		c := container{folders: t.Folders, notes: t.Notes}
		fn(&c)
		return &domain.Tree{Folders: c.folders, Notes: c.notes}, true
	}
	folders, ok := rewriteFolder(t.Folders, id, func(f *domain.Folder) *domain.Folder {
		cp := f.Copy()
		c := container{folders: cp.Folders, notes: cp.Notes}
		fn(&c)
		cp.Folders, cp.Notes = c.folders, c.notes
		return cp
	})
	if !ok {
		return t, false
	}
	return &domain.Tree{Folders: folders, Notes: t.Notes}, true
}

func rewriteFolder(folders []*domain.Folder, id domain.ID, fn func(*domain.Folder) *domain.Folder) ([]*domain.Folder, bool) {
	for i, f := range folders {
		if f.ID == id {
			return replaceAt(folders, i, fn(f)), true
		}
		if sub, ok := rewriteFolder(f.Folders, id, fn); ok {
			cp := f.Copy()
			cp.Folders = sub
			return replaceAt(folders, i, cp), true
		}
	}
	return folders, false
}

// RemoveNote detaches a note from wherever it lives. removed is nil when the
// note is already gone.
func RemoveNote(t *domain.Tree, id domain.ID) (out *domain.Tree, removed *domain.Note) {
	loc, ok := Locate(t, id)
	if !ok || loc.Kind != domain.KindNote {
		return t, nil
	}
	out, _ = editContainer(t, loc.Parent, func(c *container) {
		removed = c.notes[loc.Index]
		c.notes = removeAt(c.notes, loc.Index)
	})
	return out, removed
}

// InsertNote appends note to the folder with the given id, or to the root
// list. When the folder does not exist the note goes to the root list and
// placed is false. The inserted note is a copy whose FolderID matches its
// actual container.
func InsertNote(t *domain.Tree, note *domain.Note, folderID domain.ID) (out *domain.Tree, placed bool) {
	return InsertNoteAt(t, note, folderID, -1)
}

// InsertNoteAt is InsertNote at a given position; a negative or out of range
// index appends.
func InsertNoteAt(t *domain.Tree, note *domain.Note, folderID domain.ID, index int) (*domain.Tree, bool) {
	target, placed := resolveTarget(t, folderID)
	n := note.Copy()
	n.FolderID = target
	out, _ := editContainer(t, target, func(c *container) {
		if index < 0 {
			index = len(c.notes)
		}
		c.notes = insertAt(c.notes, index, n)
	})
	return out, placed
}

func resolveTarget(t *domain.Tree, id domain.ID) (domain.ID, bool) {
	if id.IsRoot() {
		return domain.Root, true
	}
	if FindFolder(t, id) == nil {
		return domain.Root, false
	}
	return id, true
}

// UpdateNote merges the title and content fields of patch into the note,
// keeping its position. FolderID in patch is ignored: moves are a remove
// followed by an insert.
func UpdateNote(t *domain.Tree, id domain.ID, patch domain.NotePatch) (*domain.Tree, bool) {
	return editNote(t, id, func(n *domain.Note) {
		if patch.Title != nil {
			n.Title = *patch.Title
		}
		if patch.Content != nil {
			n.Content = *patch.Content
		}
	})
}

// ReplaceNote puts note in place of the entry with the given id. note may
// carry a different ID (pending to confirmed swap).
func ReplaceNote(t *domain.Tree, id domain.ID, note *domain.Note) (*domain.Tree, bool) {
	return editNote(t, id, func(n *domain.Note) {
		folderID := n.FolderID
		*n = *note
		n.FolderID = folderID
	})
}

func editNote(t *domain.Tree, id domain.ID, fn func(n *domain.Note)) (*domain.Tree, bool) {
	loc, ok := Locate(t, id)
	if !ok || loc.Kind != domain.KindNote {
		return t, false
	}
	return editContainer(t, loc.Parent, func(c *container) {
		cp := c.notes[loc.Index].Copy()
		fn(cp)
		c.notes = replaceAt(c.notes, loc.Index, cp)
	})
}

// RemoveFolder detaches a folder together with its whole subtree.
func RemoveFolder(t *domain.Tree, id domain.ID) (out *domain.Tree, removed *domain.Folder) {
	loc, ok := Locate(t, id)
	if !ok || loc.Kind != domain.KindFolder {
		return t, nil
	}
	out, _ = editContainer(t, loc.Parent, func(c *container) {
		removed = c.folders[loc.Index]
		c.folders = removeAt(c.folders, loc.Index)
	})
	return out, removed
}

// InsertFolder appends folder (with its subtree) under parentID, falling
// back to the root list when the parent does not exist. The caller must
// make sure parentID is not inside folder.
func InsertFolder(t *domain.Tree, folder *domain.Folder, parentID domain.ID) (*domain.Tree, bool) {
	return InsertFolderAt(t, folder, parentID, -1)
}

func InsertFolderAt(t *domain.Tree, folder *domain.Folder, parentID domain.ID, index int) (*domain.Tree, bool) {
	target, placed := resolveTarget(t, parentID)
	f := folder.Copy()
	f.ParentID = target
	out, _ := editContainer(t, target, func(c *container) {
		if index < 0 {
			index = len(c.folders)
		}
		c.folders = insertAt(c.folders, index, f)
	})
	return out, placed
}

// UpdateFolder merges the name field of patch. ParentID is ignored.
func UpdateFolder(t *domain.Tree, id domain.ID, patch domain.FolderPatch) (*domain.Tree, bool) {
	return editFolder(t, id, func(f *domain.Folder) {
		if patch.Name != nil {
			f.Name = *patch.Name
		}
	})
}

// RekeyFolder replaces the header fields of a folder with those of header,
// keeping its children and position. When header.ID differs from id the
// direct children are repointed at the new ID.
func RekeyFolder(t *domain.Tree, id domain.ID, header *domain.Folder) (*domain.Tree, bool) {
	return editFolder(t, id, func(f *domain.Folder) {
		folders, notes, parentID := f.Folders, f.Notes, f.ParentID
		*f = *header
		f.ParentID = parentID
		f.Folders, f.Notes = folders, notes
		if header.ID != id {
			f.Folders = reparentFolders(folders, header.ID)
			f.Notes = reparentNotes(notes, header.ID)
		}
	})
}

func editFolder(t *domain.Tree, id domain.ID, fn func(f *domain.Folder)) (*domain.Tree, bool) {
	loc, ok := Locate(t, id)
	if !ok || loc.Kind != domain.KindFolder {
		return t, false
	}
	return editContainer(t, loc.Parent, func(c *container) {
		cp := c.folders[loc.Index].Copy()
		fn(cp)
		c.folders = replaceAt(c.folders, loc.Index, cp)
	})
}

func reparentFolders(in []*domain.Folder, parent domain.ID) []*domain.Folder {
	if in == nil {
		return nil
	}
	out := make([]*domain.Folder, len(in))
	for i, f := range in {
		cp := f.Copy()
		cp.ParentID = parent
		out[i] = cp
	}
	return out
}

func reparentNotes(in []*domain.Note, parent domain.ID) []*domain.Note {
	if in == nil {
		return nil
	}
	out := make([]*domain.Note, len(in))
	for i, n := range in {
		cp := n.Copy()
		cp.FolderID = parent
		out[i] = cp
	}
	return out
}

// IsDescendant reports whether id is ancestor itself or lies in its subtree.
func IsDescendant(t *domain.Tree, ancestor, id domain.ID) bool {
	if ancestor == id {
		return true
	}
	f := FindFolder(t, ancestor)
	if f == nil {
		return false
	}
	return findFolderIn(f.Folders, id) != nil
}
