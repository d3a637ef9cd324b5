// store/remote.go
package store

import (
	"context"

	"github.com/vinizap/myworld/domain"
)

// Remote is the persistence service the store mirrors. Every call returns
// the canonical representation of the entity it touched. Implementations
// should report missing entities with domain.ErrNotFound.
type Remote interface {
	FetchTree(ctx context.Context) (*domain.Tree, error)
	CreateNote(ctx context.Context, draft domain.NoteDraft) (*domain.Note, error)
	UpdateNote(ctx context.Context, id domain.ID, patch domain.NotePatch) (*domain.Note, error)
	DeleteNote(ctx context.Context, id domain.ID) error
	CreateFolder(ctx context.Context, draft domain.FolderDraft) (*domain.Folder, error)
	UpdateFolder(ctx context.Context, id domain.ID, patch domain.FolderPatch) (*domain.Folder, error)
	DeleteFolder(ctx context.Context, id domain.ID) error
}
