package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinizap/myworld/domain"
	"github.com/vinizap/myworld/tree"
)

func cid(s string) domain.ID { return domain.Confirmed(s) }

func ptr[T any](v T) *T { return &v }

// seeded builds:
//
//	n0
//	f1 Work
//	  n1 Plan
//	  f2 Archive
//	    n2 Old
//	f3 Home
func seeded() *domain.Tree {
	return &domain.Tree{
		Notes: []*domain.Note{{ID: cid("n0"), Title: "Inbox"}},
		Folders: []*domain.Folder{
			{
				ID:    cid("f1"),
				Name:  "Work",
				Notes: []*domain.Note{{ID: cid("n1"), FolderID: cid("f1"), Title: "Plan"}},
				Folders: []*domain.Folder{{
					ID:       cid("f2"),
					ParentID: cid("f1"),
					Name:     "Archive",
					Notes:    []*domain.Note{{ID: cid("n2"), FolderID: cid("f2"), Title: "Old"}},
				}},
			},
			{ID: cid("f3"), Name: "Home"},
		},
	}
}

func newTestStore(t *testing.T, initial *domain.Tree) (*Store, *gatedRemote) {
	t.Helper()
	remote := newGatedRemote()
	s := New(remote, WithInitialTree(initial))
	t.Cleanup(func() { s.Close() })
	return s, remote
}

func wait(t *testing.T, op *Op) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := op.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

// pendingIDs lists every pending id visible in a snapshot.
func pendingIDs(snap Snapshot) []domain.ID {
	var ids []domain.ID
	tree.Walk(snap.Tree, func(_ domain.Kind, id, parent domain.ID) {
		if id.IsPending() {
			ids = append(ids, id)
		}
		if parent.IsPending() {
			ids = append(ids, parent)
		}
	})
	for _, id := range snap.Open {
		if id.IsPending() {
			ids = append(ids, id)
		}
	}
	if snap.Active.IsPending() {
		ids = append(ids, snap.Active)
	}
	return ids
}

func TestCreateNoteIsVisibleBeforeServiceResponds(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	op := s.CreateNote(ctx, domain.NoteDraft{Title: "Draft", FolderID: cid("f3")})

	snap := s.Snapshot()
	n := tree.FindNote(snap.Tree, op.ID())
	require.NotNil(t, n)
	assert.True(t, n.Optimistic)
	assert.True(t, op.ID().IsPending())
	assert.Equal(t, op.ID(), snap.Active)
	assert.Equal(t, []domain.ID{op.ID()}, snap.Open)

	c := remote.next(t)
	assert.Equal(t, "CreateNote", c.method)
	assert.Equal(t, cid("f3"), c.noteDraft.FolderID)
	c.note(&domain.Note{ID: cid("n9"), FolderID: cid("f3"), Title: "Draft"})

	require.NoError(t, wait(t, op))
	assert.Equal(t, cid("n9"), op.Canonical())

	snap = s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	confirmed := tree.FindNote(snap.Tree, cid("n9"))
	require.NotNil(t, confirmed)
	assert.False(t, confirmed.Optimistic)
	assert.Nil(t, tree.FindNote(snap.Tree, op.ID()))
	assert.Equal(t, cid("n9"), snap.Active)
}

func TestTemporaryIDSubstitution(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	require.NoError(t, s.SetActive(cid("n0")))
	op := s.CreateNote(ctx, domain.NoteDraft{Title: "Draft"})
	c := remote.next(t)

	require.NoError(t, s.SetActive(cid("n1")))
	require.NoError(t, s.SetActive(op.ID()))

	c.note(&domain.Note{ID: cid("n9"), Title: "Draft"})
	require.NoError(t, wait(t, op))

	snap := s.Snapshot()
	assert.Empty(t, pendingIDs(snap))
	assert.Equal(t, []domain.ID{cid("n0"), cid("n9"), cid("n1")}, snap.Open)
	assert.Equal(t, cid("n9"), snap.Active)
	assert.NotNil(t, tree.FindNote(snap.Tree, cid("n9")))
}

func TestCreateNoteFailureRollsBack(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	require.NoError(t, s.SetActive(cid("n1")))
	before := s.Snapshot()

	op := s.CreateNote(context.Background(), domain.NoteDraft{Title: "Draft"})
	remote.next(t).fail(errNetwork)

	assert.ErrorIs(t, wait(t, op), errNetwork)
	after := s.Snapshot()
	assert.Equal(t, before.Tree, after.Tree)
	assert.Equal(t, before.Open, after.Open)
	assert.Equal(t, cid("n1"), after.Active)
}

func TestCreateNoteFailureAfterOtherEditsOnlyRemovesTheNote(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	op := s.CreateNote(ctx, domain.NoteDraft{Title: "Draft"})
	create := remote.next(t)
	rename := s.RenameFolder(ctx, cid("f3"), "House")
	remote.next(t).folder(&domain.Folder{ID: cid("f3"), Name: "House"})
	require.NoError(t, wait(t, rename))

	create.fail(errNetwork)
	require.Error(t, wait(t, op))

	snap := s.Snapshot()
	assert.Nil(t, tree.FindNote(snap.Tree, op.ID()))
	assert.Equal(t, "House", tree.FindFolder(snap.Tree, cid("f3")).Name)
	assert.Empty(t, snap.Open)
	assert.True(t, snap.Active.IsRoot())
}

func TestCreateFolderAndNoteUnderIt(t *testing.T) {
	s, remote := newTestStore(t, &domain.Tree{})
	ctx := context.Background()

	folderOp := s.CreateFolder(ctx, domain.FolderDraft{Name: "Work"})
	noteOp := s.CreateNote(ctx, domain.NoteDraft{Title: "Plan", FolderID: folderOp.ID()})

	snap := s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	assert.NotNil(t, tree.FindNote(snap.Tree, noteOp.ID()))

	c := remote.next(t)
	require.Equal(t, "CreateFolder", c.method)
	remote.none(t)
	c.folder(&domain.Folder{ID: cid("f1"), Name: "Work"})

	c = remote.next(t)
	require.Equal(t, "CreateNote", c.method)
	assert.Equal(t, cid("f1"), c.noteDraft.FolderID)
	c.note(&domain.Note{ID: cid("n1"), FolderID: cid("f1"), Title: "Plan"})

	require.NoError(t, wait(t, folderOp))
	require.NoError(t, wait(t, noteOp))

	snap = s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	assert.Empty(t, pendingIDs(snap))
	require.Len(t, snap.Tree.Folders, 1)
	assert.Equal(t, cid("n1"), snap.Tree.Folders[0].Notes[0].ID)
}

func TestCreateFolderFailurePrunesChildren(t *testing.T) {
	s, remote := newTestStore(t, &domain.Tree{})
	ctx := context.Background()

	folderOp := s.CreateFolder(ctx, domain.FolderDraft{Name: "Work"})
	noteOp := s.CreateNote(ctx, domain.NoteDraft{Title: "Plan", FolderID: folderOp.ID()})

	remote.next(t).fail(errNetwork)

	assert.ErrorIs(t, wait(t, folderOp), errNetwork)
	assert.ErrorIs(t, wait(t, noteOp), domain.ErrUnconfirmed)
	remote.none(t)

	snap := s.Snapshot()
	assert.Empty(t, snap.Tree.Folders)
	assert.Empty(t, snap.Tree.Notes)
	assert.Empty(t, snap.Open)
	assert.True(t, snap.Active.IsRoot())
}

func TestCreateNoteInMissingFolderFallsBackToRoot(t *testing.T) {
	s, remote := newTestStore(t, seeded())

	op := s.CreateNote(context.Background(), domain.NoteDraft{Title: "Lost", FolderID: cid("ghost")})
	n := tree.FindNote(s.Snapshot().Tree, op.ID())
	require.NotNil(t, n)
	assert.True(t, n.FolderID.IsRoot())

	c := remote.next(t)
	assert.True(t, c.noteDraft.FolderID.IsRoot())
	c.note(&domain.Note{ID: cid("n9"), Title: "Lost"})
	require.NoError(t, wait(t, op))
}

func TestUpdateNoteReconcilesCanonicalFields(t *testing.T) {
	s, remote := newTestStore(t, seeded())

	op := s.UpdateNote(context.Background(), cid("n1"), domain.NotePatch{Title: ptr("  Q1 Plan  ")})
	assert.Equal(t, "  Q1 Plan  ", tree.FindNote(s.Snapshot().Tree, cid("n1")).Title)

	c := remote.next(t)
	assert.Equal(t, cid("n1"), c.id)
	c.note(&domain.Note{ID: cid("n1"), FolderID: cid("f1"), Title: "Q1 Plan"})
	require.NoError(t, wait(t, op))

	snap := s.Snapshot()
	assert.Equal(t, "Q1 Plan", tree.FindNote(snap.Tree, cid("n1")).Title)
	loc, _ := tree.Locate(snap.Tree, cid("n1"))
	assert.Equal(t, cid("f1"), loc.Parent)
}

func TestUpdateNoteRollbackRestoresTree(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	before := s.Snapshot().Tree.DeepCopy()

	op := s.UpdateNote(context.Background(), cid("n2"), domain.NotePatch{Title: ptr("New"), FolderID: ptr(cid("f3"))})
	assert.NotNil(t, tree.FindFolder(s.Snapshot().Tree, cid("f3")).Notes)

	remote.next(t).fail(errNetwork)
	assert.ErrorIs(t, wait(t, op), errNetwork)

	assert.Equal(t, before, s.Snapshot().Tree)
}

func TestUpdateNoteOnPendingNoteIsIgnored(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	create := s.CreateNote(ctx, domain.NoteDraft{Title: "Draft"})
	version := s.Snapshot().Version

	op := s.UpdateNote(ctx, create.ID(), domain.NotePatch{Title: ptr("Edited")})
	assert.ErrorIs(t, wait(t, op), domain.ErrUnconfirmed)
	assert.Equal(t, version, s.Snapshot().Version)
	assert.Equal(t, "Draft", tree.FindNote(s.Snapshot().Tree, create.ID()).Title)

	remote.next(t).note(&domain.Note{ID: cid("n9"), Title: "Draft"})
	require.NoError(t, wait(t, create))
}

func TestUpdateMissingNote(t *testing.T) {
	s, remote := newTestStore(t, seeded())

	op := s.UpdateNote(context.Background(), cid("ghost"), domain.NotePatch{Title: ptr("x")})
	assert.ErrorIs(t, wait(t, op), domain.ErrNotFound)
	remote.none(t)
}

// takeUpdates collects n UpdateNote calls keyed by the title they carry.
func takeUpdates(t *testing.T, remote *gatedRemote, n int) map[string]*call {
	t.Helper()
	calls := make(map[string]*call)
	for range n {
		c := remote.next(t)
		calls[c.title()] = c
	}
	return calls
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	a := s.UpdateNote(ctx, cid("n1"), domain.NotePatch{Title: ptr("A")})
	b := s.UpdateNote(ctx, cid("n1"), domain.NotePatch{Title: ptr("B")})
	calls := takeUpdates(t, remote, 2)

	calls["B"].note(&domain.Note{ID: cid("n1"), FolderID: cid("f1"), Title: "B"})
	require.NoError(t, wait(t, b))
	calls["A"].note(&domain.Note{ID: cid("n1"), FolderID: cid("f1"), Title: "A"})
	require.NoError(t, wait(t, a))

	assert.Equal(t, "B", tree.FindNote(s.Snapshot().Tree, cid("n1")).Title)
}

func TestStaleResponseIsDiscardedWhileNewerIsPending(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	a := s.UpdateNote(ctx, cid("n1"), domain.NotePatch{Title: ptr("A")})
	b := s.UpdateNote(ctx, cid("n1"), domain.NotePatch{Title: ptr("B")})
	calls := takeUpdates(t, remote, 2)

	calls["A"].note(&domain.Note{ID: cid("n1"), FolderID: cid("f1"), Title: "A"})
	require.NoError(t, wait(t, a))
	assert.Equal(t, "B", tree.FindNote(s.Snapshot().Tree, cid("n1")).Title)

	calls["B"].note(&domain.Note{ID: cid("n1"), FolderID: cid("f1"), Title: "B"})
	require.NoError(t, wait(t, b))
	assert.Equal(t, "B", tree.FindNote(s.Snapshot().Tree, cid("n1")).Title)
}

func TestStaleFailureDoesNotRollBack(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	a := s.UpdateNote(ctx, cid("n1"), domain.NotePatch{Title: ptr("A")})
	b := s.UpdateNote(ctx, cid("n1"), domain.NotePatch{Title: ptr("B")})
	calls := takeUpdates(t, remote, 2)

	calls["A"].fail(errNetwork)
	assert.ErrorIs(t, wait(t, a), errNetwork)
	assert.Equal(t, "B", tree.FindNote(s.Snapshot().Tree, cid("n1")).Title)

	calls["B"].note(&domain.Note{ID: cid("n1"), FolderID: cid("f1"), Title: "B"})
	require.NoError(t, wait(t, b))
	assert.Equal(t, "B", tree.FindNote(s.Snapshot().Tree, cid("n1")).Title)
}

func TestMoveNotesNotifiesOnce(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()
	version := s.Snapshot().Version

	op := s.MoveNotes(ctx, []domain.ID{cid("n0"), cid("n1"), cid("n2")}, cid("f3"))

	snap := s.Snapshot()
	assert.Equal(t, version+1, snap.Version)
	require.NoError(t, tree.Validate(snap.Tree))
	home := tree.FindFolder(snap.Tree, cid("f3"))
	require.Len(t, home.Notes, 3)
	assert.Equal(t, cid("n0"), home.Notes[0].ID)

	for range 3 {
		c := remote.next(t)
		require.Equal(t, cid("f3"), *c.notePatch.FolderID)
		c.note(&domain.Note{ID: c.id, FolderID: cid("f3"), Title: "moved " + c.id.Value()})
	}
	require.NoError(t, wait(t, op))

	snap = s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	assert.Equal(t, "moved n1", tree.FindNote(snap.Tree, cid("n1")).Title)
}

func TestMoveNotesRollsBackWholeBatch(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	before := s.Snapshot().Tree.DeepCopy()

	op := s.MoveNotes(context.Background(), []domain.ID{cid("n0"), cid("n1"), cid("n2")}, cid("f3"))
	for i := range 3 {
		c := remote.next(t)
		if i == 1 {
			c.fail(errNetwork)
			continue
		}
		c.note(&domain.Note{ID: c.id, FolderID: cid("f3")})
	}

	assert.ErrorIs(t, wait(t, op), errNetwork)
	assert.Equal(t, before, s.Snapshot().Tree)
}

func TestMoveNotesSkipsPendingAndMissing(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	create := s.CreateNote(ctx, domain.NoteDraft{Title: "Draft"})
	createCall := remote.next(t)

	op := s.MoveNotes(ctx, []domain.ID{create.ID(), cid("ghost"), cid("n0")}, cid("f3"))
	c := remote.next(t)
	assert.Equal(t, cid("n0"), c.id)
	c.note(&domain.Note{ID: cid("n0"), FolderID: cid("f3")})
	require.NoError(t, wait(t, op))

	createCall.note(&domain.Note{ID: cid("n9")})
	require.NoError(t, wait(t, create))
	remote.none(t)
}

func TestDeleteFolderCascades(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	require.NoError(t, s.SetActive(cid("n0")))
	require.NoError(t, s.SetActive(cid("n1")))
	require.NoError(t, s.SetActive(cid("n2")))

	op := s.DeleteItem(context.Background(), cid("f1"), domain.KindFolder)

	snap := s.Snapshot()
	for _, id := range []domain.ID{cid("f1"), cid("f2"), cid("n1"), cid("n2")} {
		_, found := tree.Locate(snap.Tree, id)
		assert.False(t, found, id.String())
	}
	assert.Equal(t, []domain.ID{cid("n0")}, snap.Open)
	assert.Equal(t, cid("n0"), snap.Active)

	c := remote.next(t)
	assert.Equal(t, "DeleteFolder", c.method)
	c.ok()
	require.NoError(t, wait(t, op))
}

func TestDeleteFailureRestoresTreeAndTabs(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	require.NoError(t, s.SetActive(cid("n0")))
	require.NoError(t, s.SetActive(cid("n2")))
	before := s.Snapshot()

	op := s.DeleteItem(context.Background(), cid("n2"), domain.KindNote)
	assert.Equal(t, cid("n0"), s.Snapshot().Active)

	remote.next(t).fail(errNetwork)
	assert.ErrorIs(t, wait(t, op), errNetwork)

	after := s.Snapshot()
	assert.Equal(t, before.Tree, after.Tree)
	assert.Equal(t, before.Open, after.Open)
	assert.Equal(t, cid("n2"), after.Active)
}

func TestDeleteFailureAfterOtherEdits(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()
	require.NoError(t, s.SetActive(cid("n2")))

	del := s.DeleteItem(ctx, cid("f2"), domain.KindFolder)
	delCall := remote.next(t)
	rename := s.RenameFolder(ctx, cid("f3"), "House")
	remote.next(t).folder(&domain.Folder{ID: cid("f3"), Name: "House"})
	require.NoError(t, wait(t, rename))

	delCall.fail(errNetwork)
	require.Error(t, wait(t, del))

	snap := s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	loc, ok := tree.Locate(snap.Tree, cid("f2"))
	require.True(t, ok)
	assert.Equal(t, cid("f1"), loc.Parent)
	assert.NotNil(t, tree.FindNote(snap.Tree, cid("n2")))
	assert.Equal(t, "House", tree.FindFolder(snap.Tree, cid("f3")).Name)
	assert.Equal(t, []domain.ID{cid("n2")}, snap.Open)
	assert.Equal(t, cid("n2"), snap.Active)
}

func TestDeletePendingNoteWaitsForCreate(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	create := s.CreateNote(ctx, domain.NoteDraft{Title: "Draft"})
	createCall := remote.next(t)
	del := s.DeleteItem(ctx, create.ID(), domain.KindNote)
	remote.none(t)

	createCall.note(&domain.Note{ID: cid("n9"), Title: "Draft"})
	c := remote.next(t)
	assert.Equal(t, "DeleteNote", c.method)
	assert.Equal(t, cid("n9"), c.id)
	c.ok()

	require.NoError(t, wait(t, create))
	require.NoError(t, wait(t, del))
	assert.Nil(t, tree.FindNote(s.Snapshot().Tree, cid("n9")))
}

func TestDeletePendingNoteWhoseCreateFailed(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	create := s.CreateNote(ctx, domain.NoteDraft{Title: "Draft"})
	createCall := remote.next(t)
	del := s.DeleteItem(ctx, create.ID(), domain.KindNote)

	createCall.fail(errNetwork)
	require.Error(t, wait(t, create))
	require.NoError(t, wait(t, del))
	remote.none(t)
	assert.Nil(t, tree.FindNote(s.Snapshot().Tree, create.ID()))
}

func TestDeleteAlreadyGoneIsNoop(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	version := s.Snapshot().Version

	require.NoError(t, wait(t, s.DeleteItem(context.Background(), cid("ghost"), domain.KindNote)))
	assert.Equal(t, version, s.Snapshot().Version)
	remote.none(t)
}

func TestRenameFolder(t *testing.T) {
	s, remote := newTestStore(t, seeded())

	op := s.RenameFolder(context.Background(), cid("f1"), " Job ")
	assert.Equal(t, " Job ", tree.FindFolder(s.Snapshot().Tree, cid("f1")).Name)

	c := remote.next(t)
	assert.Equal(t, " Job ", *c.folderPatch.Name)
	c.folder(&domain.Folder{ID: cid("f1"), Name: "Job"})
	require.NoError(t, wait(t, op))

	f := tree.FindFolder(s.Snapshot().Tree, cid("f1"))
	assert.Equal(t, "Job", f.Name)
	assert.Len(t, f.Notes, 1)
	assert.Len(t, f.Folders, 1)
}

func TestRenameFolderRollback(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	before := s.Snapshot().Tree.DeepCopy()

	op := s.RenameFolder(context.Background(), cid("f1"), "Job")
	remote.next(t).fail(errNetwork)

	assert.ErrorIs(t, wait(t, op), errNetwork)
	assert.Equal(t, before, s.Snapshot().Tree)
}

func TestMoveFolder(t *testing.T) {
	s, remote := newTestStore(t, seeded())

	op := s.MoveFolder(context.Background(), cid("f2"), cid("f3"))
	snap := s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	loc, _ := tree.Locate(snap.Tree, cid("f2"))
	assert.Equal(t, cid("f3"), loc.Parent)

	c := remote.next(t)
	assert.Equal(t, cid("f3"), *c.folderPatch.ParentID)
	c.folder(&domain.Folder{ID: cid("f2"), ParentID: cid("f3"), Name: "Archive"})
	require.NoError(t, wait(t, op))
	assert.NotNil(t, tree.FindNote(s.Snapshot().Tree, cid("n2")))
}

func TestMoveFolderRejectsCycle(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	version := s.Snapshot().Version

	assert.ErrorIs(t, wait(t, s.MoveFolder(context.Background(), cid("f1"), cid("f2"))), domain.ErrCycle)
	assert.ErrorIs(t, wait(t, s.MoveFolder(context.Background(), cid("f1"), cid("f1"))), domain.ErrCycle)
	assert.Equal(t, version, s.Snapshot().Version)
	remote.none(t)
}

func TestCloseTabIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, seeded())
	require.NoError(t, s.SetActive(cid("n0")))
	require.NoError(t, s.SetActive(cid("n1")))

	s.CloseTab(cid("n1"))
	snap := s.Snapshot()
	assert.Equal(t, []domain.ID{cid("n0")}, snap.Open)
	assert.Equal(t, cid("n0"), snap.Active)

	s.CloseTab(cid("n1"))
	assert.Equal(t, snap.Version, s.Snapshot().Version)
}

func TestSetActiveUnknownNote(t *testing.T) {
	s, _ := newTestStore(t, seeded())

	assert.ErrorIs(t, s.SetActive(cid("f1")), domain.ErrNotFound)
	assert.NoError(t, s.SetActive(domain.Root))
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ch, unsubscribe := s.Subscribe()

	first := <-ch
	assert.Equal(t, s.Snapshot().Version, first.Version)

	op := s.UpdateNote(context.Background(), cid("n0"), domain.NotePatch{Title: ptr("Today")})
	snap := <-ch
	assert.Equal(t, "Today", tree.FindNote(snap.Tree, cid("n0")).Title)

	remote.next(t).note(&domain.Note{ID: cid("n0"), Title: "Today"})
	require.NoError(t, wait(t, op))

	unsubscribe()
	for range ch {
	}
	unsubscribe()
}

func TestLoad(t *testing.T) {
	remote := newGatedRemote()
	remote.tree = seeded()
	s := New(remote)
	defer s.Close()

	require.NoError(t, s.Load(context.Background()))
	assert.NotNil(t, tree.FindNote(s.Snapshot().Tree, cid("n2")))
}

func TestLoadRejectsBrokenTree(t *testing.T) {
	remote := newGatedRemote()
	remote.tree = seeded()
	remote.tree.Notes = append(remote.tree.Notes, &domain.Note{ID: cid("n1")})
	s := New(remote)
	defer s.Close()

	assert.ErrorIs(t, s.Load(context.Background()), domain.ErrInvalid)
}

func TestClosedStore(t *testing.T) {
	s := New(newGatedRemote())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, wait(t, s.CreateNote(context.Background(), domain.NoteDraft{})), ErrClosed)
	assert.ErrorIs(t, s.SetActive(domain.Root), ErrClosed)

	ch, _ := s.Subscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestCreateNoteUsesStoreClock(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	remote := newGatedRemote()
	s := New(remote, WithInitialTree(seeded()), WithClock(func() time.Time { return stamp }))
	t.Cleanup(func() { s.Close() })

	op := s.CreateNote(context.Background(), domain.NoteDraft{Title: "Draft"})
	n := tree.FindNote(s.Snapshot().Tree, op.ID())
	require.NotNil(t, n)
	assert.True(t, stamp.Equal(n.CreatedAt))
	assert.True(t, stamp.Equal(n.UpdatedAt))

	remote.next(t).note(&domain.Note{ID: cid("n9"), Title: "Draft"})
	require.NoError(t, wait(t, op))
}

func TestUpdateNoteMovesNote(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	stamp := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

	op := s.UpdateNote(context.Background(), cid("n2"), domain.NotePatch{Title: ptr("Old plans"), FolderID: ptr(cid("f3"))})

	snap := s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	loc, ok := tree.Locate(snap.Tree, cid("n2"))
	require.True(t, ok)
	assert.Equal(t, cid("f3"), loc.Parent)
	assert.Empty(t, tree.FindFolder(snap.Tree, cid("f2")).Notes)

	c := remote.next(t)
	assert.Equal(t, "UpdateNote", c.method)
	assert.Equal(t, cid("n2"), c.id)
	assert.Equal(t, cid("f3"), *c.notePatch.FolderID)
	assert.Equal(t, "Old plans", c.title())
	c.note(&domain.Note{ID: cid("n2"), FolderID: cid("f3"), Title: "Old plans", Content: "archived", UpdatedAt: stamp})
	require.NoError(t, wait(t, op))

	snap = s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	loc, ok = tree.Locate(snap.Tree, cid("n2"))
	require.True(t, ok)
	assert.Equal(t, cid("f3"), loc.Parent)
	n := tree.FindNote(snap.Tree, cid("n2"))
	assert.Equal(t, "Old plans", n.Title)
	assert.Equal(t, "archived", n.Content)
	assert.True(t, stamp.Equal(n.UpdatedAt))
	assert.False(t, n.Optimistic)
	assert.Len(t, tree.FindFolder(snap.Tree, cid("f3")).Notes, 1)
}

func TestMoveIntoUnconfirmedFolderIsRejected(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	folderOp := s.CreateFolder(ctx, domain.FolderDraft{Name: "Later"})
	createCall := remote.next(t)
	version := s.Snapshot().Version

	update := s.UpdateNote(ctx, cid("n0"), domain.NotePatch{FolderID: ptr(folderOp.ID())})
	assert.ErrorIs(t, wait(t, update), domain.ErrUnconfirmed)
	move := s.MoveNotes(ctx, []domain.ID{cid("n1")}, folderOp.ID())
	assert.ErrorIs(t, wait(t, move), domain.ErrUnconfirmed)
	moveFolder := s.MoveFolder(ctx, cid("f3"), folderOp.ID())
	assert.ErrorIs(t, wait(t, moveFolder), domain.ErrUnconfirmed)

	assert.Equal(t, version, s.Snapshot().Version)
	remote.none(t)

	createCall.fail(errNetwork)
	require.Error(t, wait(t, folderOp))

	snap := s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	for id, parent := range map[domain.ID]domain.ID{
		cid("n0"): domain.Root,
		cid("n1"): cid("f1"),
		cid("f3"): domain.Root,
	} {
		loc, ok := tree.Locate(snap.Tree, id)
		require.True(t, ok, id.String())
		assert.Equal(t, parent, loc.Parent, id.String())
	}
}

func TestMoveNotesRollbackFollowsConfirmedSourceFolder(t *testing.T) {
	pending := domain.NewPending()
	initial := &domain.Tree{Folders: []*domain.Folder{
		{ID: pending, Name: "Drafts", Notes: []*domain.Note{{ID: cid("n5"), FolderID: pending, Title: "Kept"}}},
		{ID: cid("f3"), Name: "Home"},
	}}
	s, remote := newTestStore(t, initial)

	op := s.MoveNotes(context.Background(), []domain.ID{cid("n5")}, cid("f3"))
	c := remote.next(t)

	// the source folder is confirmed while the move is in flight
	s.mu.Lock()
	s.aliases[pending] = cid("f9")
	rekeyed, ok := tree.RekeyFolder(s.tree, pending, &domain.Folder{ID: cid("f9"), Name: "Drafts"})
	if ok {
		s.commitLocked(rekeyed, s.sel)
	}
	s.mu.Unlock()
	require.True(t, ok)

	c.fail(errNetwork)
	assert.ErrorIs(t, wait(t, op), errNetwork)

	snap := s.Snapshot()
	require.NoError(t, tree.Validate(snap.Tree))
	loc, ok := tree.Locate(snap.Tree, cid("n5"))
	require.True(t, ok)
	assert.Equal(t, cid("f9"), loc.Parent)
}

func TestAliasesAreDroppedWhenIdle(t *testing.T) {
	s, remote := newTestStore(t, seeded())
	ctx := context.Background()

	create := s.CreateNote(ctx, domain.NoteDraft{Title: "Draft"})
	createCall := remote.next(t)
	rename := s.RenameFolder(ctx, cid("f3"), "House")
	renameCall := remote.next(t)

	createCall.note(&domain.Note{ID: cid("n9"), Title: "Draft"})
	require.NoError(t, wait(t, create))

	s.mu.Lock()
	alias, ok := s.aliases[create.ID()]
	s.mu.Unlock()
	assert.True(t, ok)
	assert.Equal(t, cid("n9"), alias)

	renameCall.folder(&domain.Folder{ID: cid("f3"), Name: "House"})
	require.NoError(t, wait(t, rename))

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.inflight == 0 && len(s.aliases) == 0
	}, time.Second, 5*time.Millisecond)
}
