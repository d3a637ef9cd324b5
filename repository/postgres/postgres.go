// repository/postgres/postgres.go
//
// Package postgres stores the note tree in PostgreSQL. Folder and note
// ordering follows insertion, with moved entities going to the end of their
// new container, matching the memory repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vinizap/myworld/domain"
)

type Repository struct {
	pool *pgxpool.Pool
}

// Open migrates the database and connects a pool to it.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) FetchTree(ctx context.Context) (*domain.Tree, error) {
	folderRows, err := r.pool.Query(ctx,
		`SELECT id, parent_id, name, created_at, updated_at FROM folders ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("fetch folders: %w", err)
	}
	folders, err := pgx.CollectRows(folderRows, scanFolder)
	if err != nil {
		return nil, fmt.Errorf("fetch folders: %w", err)
	}

	noteRows, err := r.pool.Query(ctx,
		`SELECT id, folder_id, title, content, created_at, updated_at FROM notes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("fetch notes: %w", err)
	}
	notes, err := pgx.CollectRows(noteRows, scanNote)
	if err != nil {
		return nil, fmt.Errorf("fetch notes: %w", err)
	}

	return assemble(folders, notes), nil
}

// assemble links flat rows, already in display order, into a tree.
func assemble(folders []*domain.Folder, notes []*domain.Note) *domain.Tree {
	byID := make(map[domain.ID]*domain.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	t := &domain.Tree{}
	for _, f := range folders {
		if parent, ok := byID[f.ParentID]; ok {
			parent.Folders = append(parent.Folders, f)
		} else {
			t.Folders = append(t.Folders, f)
		}
	}
	for _, n := range notes {
		if parent, ok := byID[n.FolderID]; ok {
			parent.Notes = append(parent.Notes, n)
		} else {
			t.Notes = append(t.Notes, n)
		}
	}
	return t
}

func (r *Repository) GetNote(ctx context.Context, id domain.ID) (*domain.Note, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, folder_id, title, content, created_at, updated_at FROM notes WHERE id = $1`, id.Value())
	if err != nil {
		return nil, fmt.Errorf("get note %s: %w", id, err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, scanNote)
	if err != nil {
		return nil, mapErr("note", id, err)
	}
	return n, nil
}

func (r *Repository) CreateNote(ctx context.Context, draft domain.NoteDraft) (*domain.Note, error) {
	folderID, err := ref(draft.FolderID)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		INSERT INTO notes (id, folder_id, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, folder_id, title, content, created_at, updated_at`,
		uuid.NewString(), folderID, domain.NormalizeTitle(draft.Title), draft.Content)
	if err != nil {
		return nil, mapErr("folder", draft.FolderID, err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, scanNote)
	if err != nil {
		return nil, mapErr("folder", draft.FolderID, err)
	}
	return n, nil
}

func (r *Repository) UpdateNote(ctx context.Context, id domain.ID, patch domain.NotePatch) (*domain.Note, error) {
	var n *domain.Note
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, folder_id, title, content, created_at, updated_at
			FROM notes WHERE id = $1 FOR UPDATE`, id.Value())
		if err != nil {
			return err
		}
		cur, err := pgx.CollectExactlyOneRow(rows, scanNote)
		if err != nil {
			return mapErr("note", id, err)
		}

		moved := false
		if patch.FolderID != nil && *patch.FolderID != cur.FolderID {
			if _, err := ref(*patch.FolderID); err != nil {
				return err
			}
			cur.FolderID = *patch.FolderID
			moved = true
		}
		if patch.Title != nil {
			cur.Title = domain.NormalizeTitle(*patch.Title)
		}
		if patch.Content != nil {
			cur.Content = *patch.Content
		}
		folderID, _ := ref(cur.FolderID)

		rows, err = tx.Query(ctx, `
			UPDATE notes
			SET folder_id = $2, title = $3, content = $4, updated_at = now(),
			    seq = CASE WHEN $5 THEN nextval('item_seq') ELSE seq END
			WHERE id = $1
			RETURNING id, folder_id, title, content, created_at, updated_at`,
			id.Value(), folderID, cur.Title, cur.Content, moved)
		if err != nil {
			return mapErr("folder", cur.FolderID, err)
		}
		n, err = pgx.CollectExactlyOneRow(rows, scanNote)
		if err != nil {
			return mapErr("folder", cur.FolderID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *Repository) DeleteNote(ctx context.Context, id domain.ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id.Value())
	if err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *Repository) CreateFolder(ctx context.Context, draft domain.FolderDraft) (*domain.Folder, error) {
	name, err := domain.NormalizeFolderName(draft.Name)
	if err != nil {
		return nil, err
	}
	parentID, err := ref(draft.ParentID)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		INSERT INTO folders (id, parent_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, parent_id, name, created_at, updated_at`,
		uuid.NewString(), parentID, name)
	if err != nil {
		return nil, mapErr("folder", draft.ParentID, err)
	}
	f, err := pgx.CollectExactlyOneRow(rows, scanFolder)
	if err != nil {
		return nil, mapErr("folder", draft.ParentID, err)
	}
	return f, nil
}

func (r *Repository) UpdateFolder(ctx context.Context, id domain.ID, patch domain.FolderPatch) (*domain.Folder, error) {
	var f *domain.Folder
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, parent_id, name, created_at, updated_at
			FROM folders WHERE id = $1 FOR UPDATE`, id.Value())
		if err != nil {
			return err
		}
		cur, err := pgx.CollectExactlyOneRow(rows, scanFolder)
		if err != nil {
			return mapErr("folder", id, err)
		}

		if patch.Name != nil {
			if cur.Name, err = domain.NormalizeFolderName(*patch.Name); err != nil {
				return err
			}
		}
		moved := false
		if patch.ParentID != nil && *patch.ParentID != cur.ParentID {
			if _, err := ref(*patch.ParentID); err != nil {
				return err
			}
			cycle, err := isDescendant(ctx, tx, id, *patch.ParentID)
			if err != nil {
				return err
			}
			if cycle {
				return fmt.Errorf("move folder %s under %s: %w", id, *patch.ParentID, domain.ErrCycle)
			}
			cur.ParentID = *patch.ParentID
			moved = true
		}
		parentID, _ := ref(cur.ParentID)

		rows, err = tx.Query(ctx, `
			UPDATE folders
			SET parent_id = $2, name = $3, updated_at = now(),
			    seq = CASE WHEN $4 THEN nextval('item_seq') ELSE seq END
			WHERE id = $1
			RETURNING id, parent_id, name, created_at, updated_at`,
			id.Value(), parentID, cur.Name, moved)
		if err != nil {
			return mapErr("folder", cur.ParentID, err)
		}
		f, err = pgx.CollectExactlyOneRow(rows, scanFolder)
		if err != nil {
			return mapErr("folder", cur.ParentID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteFolder removes a folder; foreign keys cascade to its subtree.
func (r *Repository) DeleteFolder(ctx context.Context, id domain.ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM folders WHERE id = $1`, id.Value())
	if err != nil {
		return fmt.Errorf("delete folder %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// isDescendant reports whether id is ancestor or lies below it.
func isDescendant(ctx context.Context, tx pgx.Tx, ancestor, id domain.ID) (bool, error) {
	if id.IsRoot() {
		return false, nil
	}
	var found bool
	err := tx.QueryRow(ctx, `
		WITH RECURSIVE up (id, parent_id) AS (
			SELECT id, parent_id FROM folders WHERE id = $1
			UNION ALL
			SELECT f.id, f.parent_id FROM folders f JOIN up ON f.id = up.parent_id
		)
		SELECT EXISTS (SELECT 1 FROM up WHERE id = $2)`,
		id.Value(), ancestor.Value()).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check ancestry of %s: %w", id, err)
	}
	return found, nil
}

// ref converts a container id to its column value; the root is NULL.
func ref(id domain.ID) (*string, error) {
	if id.IsPending() {
		return nil, fmt.Errorf("folder %s: %w", id, domain.ErrInvalid)
	}
	if id.IsRoot() {
		return nil, nil
	}
	v := id.Value()
	return &v, nil
}

func deref(v *string) domain.ID {
	if v == nil {
		return domain.Root
	}
	return domain.Confirmed(*v)
}

func scanNote(row pgx.CollectableRow) (*domain.Note, error) {
	var (
		id, title, content   string
		folderID             *string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &folderID, &title, &content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &domain.Note{
		ID:        domain.Confirmed(id),
		FolderID:  deref(folderID),
		Title:     title,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func scanFolder(row pgx.CollectableRow) (*domain.Folder, error) {
	var (
		id, name             string
		parentID             *string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &parentID, &name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &domain.Folder{
		ID:        domain.Confirmed(id),
		ParentID:  deref(parentID),
		Name:      name,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// mapErr translates driver errors into domain errors. A foreign key
// violation means the referenced container does not exist.
func mapErr(kind string, id domain.ID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%s %s: %w", kind, id, domain.ErrConflict)
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return fmt.Errorf("%s %s: %s: %w", kind, id, pgErr.Message, domain.ErrInvalid)
		}
	}
	return fmt.Errorf("%s %s: %w", kind, id, err)
}
