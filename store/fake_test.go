package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vinizap/myworld/domain"
)

var errNetwork = errors.New("network down")

// call is one request received by gatedRemote. The test answers it through
// reply.
type call struct {
	method      string
	id          domain.ID
	noteDraft   domain.NoteDraft
	folderDraft domain.FolderDraft
	notePatch   domain.NotePatch
	folderPatch domain.FolderPatch
	reply       chan reply
}

type reply struct {
	note   *domain.Note
	folder *domain.Folder
	err    error
}

func (c *call) note(n *domain.Note) { c.reply <- reply{note: n} }
func (c *call) folder(f *domain.Folder) { c.reply <- reply{folder: f} }
func (c *call) fail(err error) { c.reply <- reply{err: err} }
func (c *call) ok() { c.reply <- reply{} }
func (c *call) title() string { return *c.notePatch.Title }

// gatedRemote hands every request to the test and blocks until the test
// replies.
type gatedRemote struct {
	calls chan *call
	tree  *domain.Tree
}

func newGatedRemote() *gatedRemote {
	return &gatedRemote{calls: make(chan *call, 64), tree: &domain.Tree{}}
}

func (r *gatedRemote) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-r.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a remote call")
		return nil
	}
}

func (r *gatedRemote) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-r.calls:
		t.Fatalf("unexpected remote call %s %s", c.method, c.id)
	case <-time.After(50 * time.Millisecond):
	}
}

func (r *gatedRemote) do(ctx context.Context, c *call) reply {
	c.reply = make(chan reply, 1)
	r.calls <- c
	select {
	case rep := <-c.reply:
		return rep
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
}

func (r *gatedRemote) FetchTree(ctx context.Context) (*domain.Tree, error) {
	return r.tree, nil
}

func (r *gatedRemote) CreateNote(ctx context.Context, draft domain.NoteDraft) (*domain.Note, error) {
	rep := r.do(ctx, &call{method: "CreateNote", noteDraft: draft})
	return rep.note, rep.err
}

func (r *gatedRemote) UpdateNote(ctx context.Context, id domain.ID, patch domain.NotePatch) (*domain.Note, error) {
	rep := r.do(ctx, &call{method: "UpdateNote", id: id, notePatch: patch})
	return rep.note, rep.err
}

func (r *gatedRemote) DeleteNote(ctx context.Context, id domain.ID) error {
	return r.do(ctx, &call{method: "DeleteNote", id: id}).err
}

func (r *gatedRemote) CreateFolder(ctx context.Context, draft domain.FolderDraft) (*domain.Folder, error) {
	rep := r.do(ctx, &call{method: "CreateFolder", folderDraft: draft})
	return rep.folder, rep.err
}

func (r *gatedRemote) UpdateFolder(ctx context.Context, id domain.ID, patch domain.FolderPatch) (*domain.Folder, error) {
	rep := r.do(ctx, &call{method: "UpdateFolder", id: id, folderPatch: patch})
	return rep.folder, rep.err
}

func (r *gatedRemote) DeleteFolder(ctx context.Context, id domain.ID) error {
	return r.do(ctx, &call{method: "DeleteFolder", id: id}).err
}
