// repository/memory/memory.go
//
// Package memory is an in-process note repository. It applies the same
// normalization and integrity rules as the Postgres repository and is used
// for development servers and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/vinizap/myworld/domain"
)

type noteRow struct {
	note domain.Note
	seq  uint64
}

type folderRow struct {
	folder domain.Folder
	seq    uint64
}

type Repository struct {
	mu      sync.RWMutex
	seq     uint64
	notes   map[domain.ID]*noteRow
	folders map[domain.ID]*folderRow
	now     func() time.Time
}

func New() *Repository {
	return &Repository{
		notes:   make(map[domain.ID]*noteRow),
		folders: make(map[domain.ID]*folderRow),
		now:     time.Now,
	}
}

func newID() domain.ID {
	return domain.Confirmed(ulid.Make().String())
}

func (r *Repository) FetchTree(ctx context.Context) (*domain.Tree, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notesByFolder := make(map[domain.ID][]*noteRow)
	for _, row := range r.notes {
		notesByFolder[row.note.FolderID] = append(notesByFolder[row.note.FolderID], row)
	}
	foldersByParent := make(map[domain.ID][]*folderRow)
	for _, row := range r.folders {
		foldersByParent[row.folder.ParentID] = append(foldersByParent[row.folder.ParentID], row)
	}

	var build func(parent domain.ID) ([]*domain.Folder, []*domain.Note)
	build = func(parent domain.ID) ([]*domain.Folder, []*domain.Note) {
		folderRows := foldersByParent[parent]
		slices.SortFunc(folderRows, func(a, b *folderRow) int { return cmp.Compare(a.seq, b.seq) })
		noteRows := notesByFolder[parent]
		slices.SortFunc(noteRows, func(a, b *noteRow) int { return cmp.Compare(a.seq, b.seq) })

		folders := make([]*domain.Folder, 0, len(folderRows))
		for _, row := range folderRows {
			f := row.folder
			f.Folders, f.Notes = build(f.ID)
			folders = append(folders, &f)
		}
		notes := make([]*domain.Note, 0, len(noteRows))
		for _, row := range noteRows {
			n := row.note
			notes = append(notes, &n)
		}
		return folders, notes
	}

	folders, notes := build(domain.Root)
	return &domain.Tree{Folders: folders, Notes: notes}, nil
}

func (r *Repository) GetNote(ctx context.Context, id domain.ID) (*domain.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	n := row.note
	return &n, nil
}

func (r *Repository) CreateNote(ctx context.Context, draft domain.NoteDraft) (*domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFolderLocked(draft.FolderID); err != nil {
		return nil, err
	}
	now := r.now()
	r.seq++
	row := &noteRow{
		seq: r.seq,
		note: domain.Note{
			ID:        newID(),
			FolderID:  draft.FolderID,
			Title:     domain.NormalizeTitle(draft.Title),
			Content:   draft.Content,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	r.notes[row.note.ID] = row
	n := row.note
	return &n, nil
}

func (r *Repository) UpdateNote(ctx context.Context, id domain.ID, patch domain.NotePatch) (*domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	if patch.FolderID != nil {
		if err := r.checkFolderLocked(*patch.FolderID); err != nil {
			return nil, err
		}
		if *patch.FolderID != row.note.FolderID {
			// moved notes go to the end of their new folder
			r.seq++
			row.seq = r.seq
		}
		row.note.FolderID = *patch.FolderID
	}
	if patch.Title != nil {
		row.note.Title = domain.NormalizeTitle(*patch.Title)
	}
	if patch.Content != nil {
		row.note.Content = *patch.Content
	}
	row.note.UpdatedAt = r.now()
	n := row.note
	return &n, nil
}

func (r *Repository) DeleteNote(ctx context.Context, id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notes[id]; !ok {
		return fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	delete(r.notes, id)
	return nil
}

func (r *Repository) CreateFolder(ctx context.Context, draft domain.FolderDraft) (*domain.Folder, error) {
	name, err := domain.NormalizeFolderName(draft.Name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFolderLocked(draft.ParentID); err != nil {
		return nil, err
	}
	now := r.now()
	r.seq++
	row := &folderRow{
		seq: r.seq,
		folder: domain.Folder{
			ID:        newID(),
			ParentID:  draft.ParentID,
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	r.folders[row.folder.ID] = row
	f := row.folder
	return &f, nil
}

func (r *Repository) UpdateFolder(ctx context.Context, id domain.ID, patch domain.FolderPatch) (*domain.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	name := row.folder.Name
	if patch.Name != nil {
		var err error
		if name, err = domain.NormalizeFolderName(*patch.Name); err != nil {
			return nil, err
		}
	}
	move := patch.ParentID != nil && *patch.ParentID != row.folder.ParentID
	if move {
		if err := r.checkFolderLocked(*patch.ParentID); err != nil {
			return nil, err
		}
		if r.isDescendantLocked(id, *patch.ParentID) {
			return nil, fmt.Errorf("move folder %s under %s: %w", id, *patch.ParentID, domain.ErrCycle)
		}
	}

	row.folder.Name = name
	if move {
		row.folder.ParentID = *patch.ParentID
		r.seq++
		row.seq = r.seq
	}
	row.folder.UpdatedAt = r.now()
	f := row.folder
	return &f, nil
}

// DeleteFolder removes a folder with every folder and note below it.
func (r *Repository) DeleteFolder(ctx context.Context, id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.folders[id]; !ok {
		return fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	doomed := map[domain.ID]bool{id: true}
	for changed := true; changed; {
		changed = false
		for fid, row := range r.folders {
			if !doomed[fid] && doomed[row.folder.ParentID] {
				doomed[fid] = true
				changed = true
			}
		}
	}
	for fid := range doomed {
		delete(r.folders, fid)
	}
	for nid, row := range r.notes {
		if doomed[row.note.FolderID] {
			delete(r.notes, nid)
		}
	}
	return nil
}

func (r *Repository) checkFolderLocked(id domain.ID) error {
	if id.IsPending() {
		return fmt.Errorf("folder %s: %w", id, domain.ErrInvalid)
	}
	if id.IsRoot() {
		return nil
	}
	if _, ok := r.folders[id]; !ok {
		return fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// isDescendantLocked reports whether id is ancestor or lies below it.
func (r *Repository) isDescendantLocked(ancestor, id domain.ID) bool {
	for !id.IsRoot() {
		if id == ancestor {
			return true
		}
		row, ok := r.folders[id]
		if !ok {
			return false
		}
		id = row.folder.ParentID
	}
	return false
}
