// domain/note.go
package domain

import "time"

type Kind string

const (
	KindNote   Kind = "note"
	KindFolder Kind = "folder"
)

type Note struct {
	ID         ID        `json:"id" yaml:"id"`
	FolderID   ID        `json:"folder_id" yaml:"-"`
	Title      string    `json:"title" yaml:"title"`
	Content    string    `json:"content" yaml:"-"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
	Optimistic bool      `json:"-" yaml:"-"`
}

func (n *Note) Copy() *Note {
	cp := *n
	return &cp
}

type Folder struct {
	ID         ID        `json:"id"`
	ParentID   ID        `json:"parent_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Folders    []*Folder `json:"folders"`
	Notes      []*Note   `json:"notes"`
	Optimistic bool      `json:"-"`
}

// Copy returns a shallow copy. The child slices are shared with f.
func (f *Folder) Copy() *Folder {
	cp := *f
	return &cp
}

func (f *Folder) DeepCopy() *Folder {
	cp := *f
	cp.Folders = deepCopyFolders(f.Folders)
	cp.Notes = deepCopyNotes(f.Notes)
	return &cp
}

// Tree is the aggregate root: top-level folders and top-level notes.
// Trees handed out by the store are snapshots and must be treated as
// read-only.
type Tree struct {
	Folders []*Folder `json:"folders"`
	Notes   []*Note   `json:"notes"`
}

func (t *Tree) DeepCopy() *Tree {
	return &Tree{
		Folders: deepCopyFolders(t.Folders),
		Notes:   deepCopyNotes(t.Notes),
	}
}

func deepCopyFolders(in []*Folder) []*Folder {
	if in == nil {
		return nil
	}
	out := make([]*Folder, len(in))
	for i, f := range in {
		out[i] = f.DeepCopy()
	}
	return out
}

func deepCopyNotes(in []*Note) []*Note {
	if in == nil {
		return nil
	}
	out := make([]*Note, len(in))
	for i, n := range in {
		out[i] = n.Copy()
	}
	return out
}

type NoteDraft struct {
	Title    string `json:"title"`
	FolderID ID     `json:"folder_id"`
	Content  string `json:"content"`
}

type FolderDraft struct {
	Name     string `json:"name"`
	ParentID ID     `json:"parent_id"`
}

// NotePatch lists the note fields to change. Nil fields are left as is.
// A non-nil FolderID moves the note.
type NotePatch struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	FolderID *ID     `json:"folder_id,omitempty"`
}

func (p NotePatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.FolderID == nil
}

type FolderPatch struct {
	Name     *string `json:"name,omitempty"`
	ParentID *ID     `json:"parent_id,omitempty"`
}

func (p FolderPatch) IsEmpty() bool {
	return p.Name == nil && p.ParentID == nil
}
