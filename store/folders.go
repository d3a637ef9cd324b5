// store/folders.go
package store

import (
	"context"
	"fmt"

	"github.com/vinizap/myworld/domain"
	"github.com/vinizap/myworld/tree"
)

// CreateFolder inserts a pending folder under parentID and asks the service
// to create it. If the create fails the folder is pruned together with
// anything created under it in the meantime.
func (s *Store) CreateFolder(ctx context.Context, draft domain.FolderDraft) *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return settled(domain.Root, ErrClosed)
	}

	draft.ParentID = s.currentIDLocked(draft.ParentID)
	now := s.now()
	folder := &domain.Folder{
		ID:         domain.NewPending(),
		ParentID:   draft.ParentID,
		Name:       draft.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
		Optimistic: true,
	}
	pre := s.stateLocked()
	t, placed := tree.InsertFolder(s.tree, folder, draft.ParentID)
	if !placed {
		s.log.Warn().Stringer("folder", folder.ID).Stringer("parent", draft.ParentID).
			Msg("parent folder missing, creating folder at root")
		draft.ParentID = domain.Root
	}
	s.commitLocked(t, s.sel)
	s.metrics.mutation("create_folder")

	op := newOp(folder.ID)
	s.creates[folder.ID] = op
	epoch := s.epoch
	s.goLocked(func() { s.finishCreateFolder(ctx, op, draft, pre, epoch) })
	return op
}

func (s *Store) finishCreateFolder(ctx context.Context, op *Op, draft domain.FolderDraft, pre state, epoch uint64) {
	parentID, err := s.resolve(ctx, draft.ParentID)
	var created *domain.Folder
	if err == nil {
		draft.ParentID = parentID
		created, err = s.remote.CreateFolder(ctx, draft)
	}

	s.mu.Lock()
	delete(s.creates, op.id)
	if err != nil {
		s.log.Warn().Err(err).Stringer("folder", op.id).Msg("create folder failed, rolling back")
		s.metrics.rollback("create_folder")
		s.rollbackLocked(pre, epoch, func() (*domain.Tree, Selection) {
			t, removed := tree.RemoveFolder(s.tree, op.id)
			if removed == nil {
				return s.tree, s.sel
			}
			sel := s.sel
			for _, id := range tree.NoteIDs(removed) {
				sel = sel.Discard(id)
			}
			return t, sel
		})
		s.mu.Unlock()
		op.finish(domain.Root, fmt.Errorf("create folder: %w", err))
		return
	}

	s.aliases[op.id] = created.ID
	header := created.Copy()
	header.Optimistic = false
	if t, ok := tree.RekeyFolder(s.tree, op.id, header); ok {
		s.commitLocked(t, s.sel)
	} else {
		s.epoch++
		s.log.Debug().Stringer("folder", op.id).Msg("created folder no longer in tree")
	}
	s.mu.Unlock()
	op.finish(created.ID, nil)
}

// RenameFolder changes a folder's name with the same staleness and rollback
// rules as UpdateNote.
func (s *Store) RenameFolder(ctx context.Context, id domain.ID, name string) *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return settled(id, ErrClosed)
	}
	prev, err := s.confirmedFolderLocked(id)
	if err != nil {
		return settled(id, fmt.Errorf("rename folder: %w", err))
	}

	pre := s.stateLocked()
	seq := s.bumpLocked(id)
	t, _ := tree.UpdateFolder(s.tree, id, domain.FolderPatch{Name: &name})
	s.commitLocked(t, s.sel)
	s.metrics.mutation("rename_folder")

	op := newOp(id)
	epoch := s.epoch
	s.goLocked(func() {
		updated, err := s.remote.UpdateFolder(ctx, id, domain.FolderPatch{Name: &name})
		s.finishFolderUpdate(op, "rename_folder", updated, err, pre, epoch, seq, func() (*domain.Tree, Selection) {
			t, _ := tree.UpdateFolder(s.tree, id, domain.FolderPatch{Name: &prev.Name})
			return t, s.sel
		})
	})
	return op
}

// MoveFolder reparents a folder with its subtree. Moving a folder into
// itself or one of its descendants fails with domain.ErrCycle before
// anything changes.
func (s *Store) MoveFolder(ctx context.Context, id, parentID domain.ID) *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return settled(id, ErrClosed)
	}
	if _, err := s.confirmedFolderLocked(id); err != nil {
		return settled(id, fmt.Errorf("move folder: %w", err))
	}
	parentID, err := s.moveTargetLocked(parentID)
	if err != nil {
		return settled(id, fmt.Errorf("move folder: %w", err))
	}
	if tree.IsDescendant(s.tree, id, parentID) {
		return settled(id, fmt.Errorf("move folder %s under %s: %w", id, parentID, domain.ErrCycle))
	}
	from, _ := tree.Locate(s.tree, id)
	if from.Parent == parentID {
		return settled(id, nil)
	}

	pre := s.stateLocked()
	seq := s.bumpLocked(id)
	t, f := tree.RemoveFolder(s.tree, id)
	t, placed := tree.InsertFolder(t, f, parentID)
	if !placed {
		s.log.Warn().Stringer("folder", id).Stringer("parent", parentID).
			Msg("parent folder missing, moving folder to root")
		parentID = domain.Root
	}
	s.commitLocked(t, s.sel)
	s.metrics.mutation("move_folder")

	op := newOp(id)
	epoch := s.epoch
	s.goLocked(func() {
		updated, err := s.remote.UpdateFolder(ctx, id, domain.FolderPatch{ParentID: &parentID})
		s.finishFolderUpdate(op, "move_folder", updated, err, pre, epoch, seq, func() (*domain.Tree, Selection) {
			t, cur := tree.RemoveFolder(s.tree, id)
			if cur == nil {
				return s.tree, s.sel
			}
			t, _ = tree.InsertFolderAt(t, cur, s.currentIDLocked(from.Parent), from.Index)
			return t, s.sel
		})
	})
	return op
}

func (s *Store) confirmedFolderLocked(id domain.ID) (*domain.Folder, error) {
	if id.IsPending() {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrUnconfirmed)
	}
	f := tree.FindFolder(s.tree, id)
	if f == nil {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrNotFound)
	}
	if f.Optimistic {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrUnconfirmed)
	}
	return f, nil
}

func (s *Store) finishFolderUpdate(op *Op, name string, updated *domain.Folder, err error, pre state, epoch, seq uint64, undo func() (*domain.Tree, Selection)) {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		op.finish(op.id, err)
	}()

	if !s.currentLocked(op.id, seq) {
		s.log.Debug().Err(err).Stringer("folder", op.id).Msg("discarding superseded folder response")
		s.metrics.staleResponse(name)
		return
	}
	if err != nil {
		err = fmt.Errorf("%s %s: %w", name, op.id, err)
		s.log.Warn().Err(err).Msg("rolling back")
		s.metrics.rollback(name)
		s.rollbackLocked(pre, epoch, undo)
		return
	}
	header := updated.Copy()
	header.Optimistic = false
	if t, ok := tree.RekeyFolder(s.tree, op.id, header); ok {
		s.commitLocked(t, s.sel)
	}
}
