// store/notes.go
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vinizap/myworld/domain"
	"github.com/vinizap/myworld/tree"
	"golang.org/x/sync/errgroup"
)

// CreateNote inserts a pending note, makes it the active tab and asks the
// service to create it. Once confirmed, the pending id is replaced by the
// canonical one in the tree and in the selection. A draft under a pending
// folder is sent once that folder is confirmed.
func (s *Store) CreateNote(ctx context.Context, draft domain.NoteDraft) *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return settled(domain.Root, ErrClosed)
	}

	draft.FolderID = s.currentIDLocked(draft.FolderID)
	now := s.now()
	note := &domain.Note{
		ID:         domain.NewPending(),
		FolderID:   draft.FolderID,
		Title:      draft.Title,
		Content:    draft.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
		Optimistic: true,
	}
	pre := s.stateLocked()
	t, placed := tree.InsertNote(s.tree, note, draft.FolderID)
	if !placed {
		s.log.Warn().Stringer("note", note.ID).Stringer("folder", draft.FolderID).
			Msg("target folder missing, creating note at root")
		draft.FolderID = domain.Root
	}
	s.commitLocked(t, s.sel.SetActive(note.ID))
	s.metrics.mutation("create_note")

	op := newOp(note.ID)
	s.creates[note.ID] = op
	epoch := s.epoch
	s.goLocked(func() { s.finishCreateNote(ctx, op, draft, pre, epoch) })
	return op
}

func (s *Store) finishCreateNote(ctx context.Context, op *Op, draft domain.NoteDraft, pre state, epoch uint64) {
	folderID, err := s.resolve(ctx, draft.FolderID)
	var created *domain.Note
	if err == nil {
		draft.FolderID = folderID
		created, err = s.remote.CreateNote(ctx, draft)
	}

	s.mu.Lock()
	delete(s.creates, op.id)
	if err != nil {
		s.log.Warn().Err(err).Stringer("note", op.id).Msg("create note failed, rolling back")
		s.metrics.rollback("create_note")
		s.rollbackLocked(pre, epoch, func() (*domain.Tree, Selection) {
			t, _ := tree.RemoveNote(s.tree, op.id)
			return t, s.sel.Discard(op.id)
		})
		s.mu.Unlock()
		op.finish(domain.Root, fmt.Errorf("create note: %w", err))
		return
	}

	s.aliases[op.id] = created.ID
	confirmed := created.Copy()
	confirmed.Optimistic = false
	if t, ok := tree.ReplaceNote(s.tree, op.id, confirmed); ok {
		s.commitLocked(t, s.sel.Replace(op.id, created.ID))
	} else {
		s.epoch++
		s.log.Debug().Stringer("note", op.id).Msg("created note no longer in tree")
	}
	s.mu.Unlock()
	op.finish(created.ID, nil)
}

// UpdateNote applies patch optimistically and sends it to the service. A
// patch with a FolderID moves the note. Pending notes are not updated: the
// Op fails with domain.ErrUnconfirmed and nothing changes.
//
// If a later write to the same note is issued before this one settles, this
// one's response is discarded, whether it succeeded or failed.
func (s *Store) UpdateNote(ctx context.Context, id domain.ID, patch domain.NotePatch) *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return settled(id, ErrClosed)
	}
	if id.IsPending() {
		return settled(id, fmt.Errorf("update note %s: %w", id, domain.ErrUnconfirmed))
	}
	loc, ok := tree.Locate(s.tree, id)
	if !ok || loc.Kind != domain.KindNote {
		return settled(id, fmt.Errorf("update note %s: %w", id, domain.ErrNotFound))
	}
	prev := tree.FindNote(s.tree, id)
	if prev.Optimistic {
		return settled(id, fmt.Errorf("update note %s: %w", id, domain.ErrUnconfirmed))
	}
	if patch.FolderID != nil {
		target, err := s.moveTargetLocked(*patch.FolderID)
		if err != nil {
			return settled(id, fmt.Errorf("update note %s: %w", id, err))
		}
		patch.FolderID = &target
	}

	pre := s.stateLocked()
	seq := s.bumpLocked(id)
	t, _ := tree.UpdateNote(s.tree, id, patch)
	if patch.FolderID != nil && *patch.FolderID != loc.Parent {
		var n *domain.Note
		t, n = tree.RemoveNote(t, id)
		var placed bool
		if t, placed = tree.InsertNote(t, n, *patch.FolderID); !placed {
			s.log.Warn().Stringer("note", id).Stringer("folder", *patch.FolderID).
				Msg("target folder missing, moving note to root")
			root := domain.Root
			patch.FolderID = &root
		}
	}
	s.commitLocked(t, s.sel)
	s.metrics.mutation("update_note")

	op := newOp(id)
	epoch := s.epoch
	s.goLocked(func() { s.finishUpdateNote(ctx, op, patch, pre, epoch, seq, prev, loc) })
	return op
}

func (s *Store) finishUpdateNote(ctx context.Context, op *Op, patch domain.NotePatch, pre state, epoch, seq uint64, prev *domain.Note, from tree.Location) {
	id := op.id
	updated, err := s.remote.UpdateNote(ctx, id, patch)

	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		op.finish(id, err)
	}()

	if !s.currentLocked(id, seq) {
		s.log.Debug().Err(err).Stringer("note", id).Msg("discarding superseded update response")
		s.metrics.staleResponse("update_note")
		return
	}
	if err != nil {
		err = fmt.Errorf("update note %s: %w", id, err)
		s.log.Warn().Err(err).Msg("rolling back")
		s.metrics.rollback("update_note")
		s.rollbackLocked(pre, epoch, func() (*domain.Tree, Selection) {
			t, cur := tree.RemoveNote(s.tree, id)
			if cur == nil {
				return s.tree, s.sel
			}
			t, _ = tree.InsertNoteAt(t, prev, s.currentIDLocked(from.Parent), from.Index)
			return t, s.sel
		})
		return
	}
	s.reconcileNoteLocked(updated)
}

// reconcileNoteLocked merges the service's canonical note into the tree in
// place. The note's position is the client's.
func (s *Store) reconcileNoteLocked(canonical *domain.Note) {
	n := canonical.Copy()
	n.Optimistic = false
	if t, ok := tree.ReplaceNote(s.tree, n.ID, n); ok {
		s.commitLocked(t, s.sel)
	}
}

type movedNote struct {
	note *domain.Note
	from tree.Location
	seq  uint64
}

// MoveNotes moves a batch of notes to a folder (domain.Root for the top
// level) with one notification, then updates each note on the service
// concurrently. If any call fails the whole batch is rolled back. Pending
// and unknown ids are skipped.
func (s *Store) MoveNotes(ctx context.Context, ids []domain.ID, folderID domain.ID) *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return settled(folderID, ErrClosed)
	}
	folderID, err := s.moveTargetLocked(folderID)
	if err != nil {
		return settled(folderID, fmt.Errorf("move notes: %w", err))
	}
	if !folderID.IsRoot() && s.index[folderID].Kind != domain.KindFolder {
		s.log.Warn().Stringer("folder", folderID).Msg("target folder missing, moving notes to root")
		folderID = domain.Root
	}

	pre := s.stateLocked()
	t := s.tree
	var batch []movedNote
	for _, id := range ids {
		if id.IsPending() {
			s.log.Debug().Stringer("note", id).Msg("skipping unconfirmed note in move")
			continue
		}
		loc, ok := tree.Locate(t, id)
		if !ok || loc.Kind != domain.KindNote || loc.Parent == folderID {
			continue
		}
		var n *domain.Note
		t, n = tree.RemoveNote(t, id)
		batch = append(batch, movedNote{note: n, from: loc})
	}
	if len(batch) == 0 {
		return settled(folderID, nil)
	}
	for i := range batch {
		t, _ = tree.InsertNote(t, batch[i].note, folderID)
		batch[i].seq = s.bumpLocked(batch[i].note.ID)
	}
	s.commitLocked(t, s.sel)
	s.metrics.mutation("move_notes")

	op := newOp(folderID)
	epoch := s.epoch
	s.goLocked(func() { s.finishMoveNotes(ctx, op, batch, pre, epoch) })
	return op
}

func (s *Store) finishMoveNotes(ctx context.Context, op *Op, batch []movedNote, pre state, epoch uint64) {
	results := make([]*domain.Note, len(batch))
	folderID := op.id
	var g errgroup.Group
	g.SetLimit(s.moveLimit())
	for i, m := range batch {
		g.Go(func() error {
			n, err := s.remote.UpdateNote(ctx, m.note.ID, domain.NotePatch{FolderID: &folderID})
			if err != nil {
				return fmt.Errorf("move note %s: %w", m.note.ID, err)
			}
			results[i] = n
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		op.finish(folderID, err)
	}()

	if err != nil {
		s.log.Warn().Err(err).Int("notes", len(batch)).Msg("move failed, rolling back batch")
		s.metrics.rollback("move_notes")
		s.rollbackLocked(pre, epoch, func() (*domain.Tree, Selection) {
			t := s.tree
			for i := len(batch) - 1; i >= 0; i-- {
				m := batch[i]
				if s.ledger[m.note.ID] != m.seq {
					continue
				}
				var cur *domain.Note
				if t, cur = tree.RemoveNote(t, m.note.ID); cur != nil {
					t, _ = tree.InsertNoteAt(t, cur, s.currentIDLocked(m.from.Parent), m.from.Index)
				}
			}
			return t, s.sel
		})
		for _, m := range batch {
			s.currentLocked(m.note.ID, m.seq)
		}
		return
	}

	for i, m := range batch {
		if !s.currentLocked(m.note.ID, m.seq) {
			s.metrics.staleResponse("move_notes")
			continue
		}
		s.reconcileNoteLocked(results[i])
	}
}

func (s *Store) moveLimit() int {
	if s.moveConcurrency <= 0 {
		return -1
	}
	return s.moveConcurrency
}

// DeleteItem removes a note or a folder with its whole subtree, closes the
// affected tabs and asks the service to delete it. A failed delete restores
// the tree and the tabs. Deleting something that is already gone is a no-op.
func (s *Store) DeleteItem(ctx context.Context, id domain.ID, kind domain.Kind) *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return settled(id, ErrClosed)
	}
	loc, ok := tree.Locate(s.tree, id)
	if !ok || loc.Kind != kind {
		return settled(id, nil)
	}

	pre := s.stateLocked()
	var (
		t      *domain.Tree
		note   *domain.Note
		folder *domain.Folder
		notes  []domain.ID
	)
	switch kind {
	case domain.KindNote:
		t, note = tree.RemoveNote(s.tree, id)
		notes = []domain.ID{id}
	case domain.KindFolder:
		t, folder = tree.RemoveFolder(s.tree, id)
		notes = tree.NoteIDs(folder)
	}
	seq := s.bumpLocked(id)
	s.commitLocked(t, s.sel.Remove(notes...))
	s.metrics.mutation("delete_" + string(kind))

	op := newOp(id)
	epoch := s.epoch
	restore := func() (*domain.Tree, Selection) {
		return s.reinsertLocked(note, folder, loc), s.reopenLocked(pre.sel, notes)
	}
	s.goLocked(func() { s.finishDelete(ctx, op, kind, pre, epoch, seq, restore) })
	return op
}

func (s *Store) finishDelete(ctx context.Context, op *Op, kind domain.Kind, pre state, epoch, seq uint64, restore func() (*domain.Tree, Selection)) {
	id, err := s.resolve(ctx, op.id)
	switch {
	case errors.Is(err, domain.ErrUnconfirmed):
		// the create failed, so there is nothing on the service to delete
		err = nil
	case err != nil:
	case kind == domain.KindFolder:
		err = s.remote.DeleteFolder(ctx, id)
	default:
		err = s.remote.DeleteNote(ctx, id)
	}
	if errors.Is(err, domain.ErrNotFound) {
		err = nil
	}

	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		op.finish(id, err)
	}()

	if !s.currentLocked(op.id, seq) {
		s.metrics.staleResponse("delete_" + string(kind))
		return
	}
	if err != nil {
		err = fmt.Errorf("delete %s %s: %w", kind, op.id, err)
		s.log.Warn().Err(err).Msg("rolling back")
		s.metrics.rollback("delete_" + string(kind))
		s.rollbackLocked(pre, epoch, restore)
	}
}

// reinsertLocked puts a deleted entity back where it was. Pending ids that
// were confirmed meanwhile are replaced by their canonical ids.
func (s *Store) reinsertLocked(note *domain.Note, folder *domain.Folder, from tree.Location) *domain.Tree {
	parent := s.currentIDLocked(from.Parent)
	var t *domain.Tree
	switch {
	case note != nil:
		t, _ = tree.InsertNoteAt(s.tree, tree.RewriteNoteIDs(note, s.canonicalLocked), parent, from.Index)
	case folder != nil:
		t, _ = tree.InsertFolderAt(s.tree, tree.RewriteFolderIDs(folder, s.canonicalLocked), parent, from.Index)
	default:
		return s.tree
	}
	return t
}

// reopenLocked reopens the tabs a delete closed, and restores the active tab
// if it was one of them.
func (s *Store) reopenLocked(before Selection, closed []domain.ID) Selection {
	sel := s.sel
	for _, id := range before.open {
		if !slices.Contains(closed, id) {
			continue
		}
		if c, ok := s.canonicalLocked(id); ok {
			id = c
		}
		sel = sel.open1(id)
	}
	if active := before.active; slices.Contains(closed, active) {
		if c, ok := s.canonicalLocked(active); ok {
			active = c
		}
		sel = sel.SetActive(active)
	}
	return sel
}

