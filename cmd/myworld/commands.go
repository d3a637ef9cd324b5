// cmd/myworld/commands.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vinizap/myworld/domain"
	"github.com/vinizap/myworld/store"
	"github.com/vinizap/myworld/tree"
)

func parseID(s string) domain.ID {
	if s == "" || s == "root" {
		return domain.Root
	}
	return domain.Confirmed(s)
}

// withStore runs fn against a freshly loaded store and waits for the
// operation it returns.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, s *store.Store) (*store.Op, error)) error {
	ctx := cmd.Context()
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	op, err := fn(ctx, s)
	if err != nil {
		return err
	}
	if err := op.Wait(ctx); err != nil {
		return err
	}
	if id := op.Canonical(); !id.IsRoot() {
		fmt.Fprintln(cmd.OutOrStdout(), id.Value())
	}
	return nil
}

func kindOf(s *store.Store, id domain.ID) (domain.Kind, error) {
	loc, ok := tree.Locate(s.Snapshot().Tree, id)
	if !ok {
		return "", fmt.Errorf("%s: %w", id, domain.ErrNotFound)
	}
	return loc.Kind, nil
}

// readContent resolves --content and --file; "-" reads stdin.
func readContent(cmd *cobra.Command, content, file string) (*string, error) {
	if file == "" {
		if !cmd.Flags().Changed("content") {
			return nil, nil
		}
		return &content, nil
	}
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func treeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the folder and note tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.remote().FetchTree(cmd.Context())
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func printTree(w io.Writer, t *domain.Tree) {
	var walk func(folders []*domain.Folder, notes []*domain.Note, depth int)
	walk = func(folders []*domain.Folder, notes []*domain.Note, depth int) {
		indent := strings.Repeat("  ", depth)
		for _, f := range folders {
			fmt.Fprintf(w, "%s%s/  [%s]\n", indent, f.Name, f.ID.Value())
			walk(f.Folders, f.Notes, depth+1)
		}
		for _, n := range notes {
			fmt.Fprintf(w, "%s%s  [%s]\n", indent, n.Title, n.ID.Value())
		}
	}
	walk(t.Folders, t.Notes, 0)
}

func mkdirCmd(a *app) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "mkdir NAME",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s *store.Store) (*store.Op, error) {
				return s.CreateFolder(ctx, domain.FolderDraft{Name: args[0], ParentID: parseID(parent)}), nil
			})
		},
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Parent folder id")
	return cmd
}

func newCmd(a *app) *cobra.Command {
	var folder, content, file string
	cmd := &cobra.Command{
		Use:   "new [TITLE]",
		Short: "Create a note",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := domain.NoteDraft{FolderID: parseID(folder)}
			if len(args) == 1 {
				draft.Title = args[0]
			}
			body, err := readContent(cmd, content, file)
			if err != nil {
				return err
			}
			if body != nil {
				draft.Content = *body
			}
			return a.withStore(cmd, func(ctx context.Context, s *store.Store) (*store.Op, error) {
				return s.CreateNote(ctx, draft), nil
			})
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "Folder id")
	cmd.Flags().StringVar(&content, "content", "", "Note content")
	cmd.Flags().StringVar(&file, "file", "", "Read content from a file, - for stdin")
	return cmd
}

func editCmd(a *app) *cobra.Command {
	var title, content, file string
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a note's title or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.NotePatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			body, err := readContent(cmd, content, file)
			if err != nil {
				return err
			}
			patch.Content = body
			if patch.IsEmpty() {
				return fmt.Errorf("nothing to change: pass --title, --content or --file")
			}
			return a.withStore(cmd, func(ctx context.Context, s *store.Store) (*store.Op, error) {
				return s.UpdateNote(ctx, parseID(args[0]), patch), nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVar(&content, "content", "", "New content")
	cmd.Flags().StringVar(&file, "file", "", "Read content from a file, - for stdin")
	return cmd
}

func mvCmd(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "mv ID... --to FOLDER",
		Short: "Move notes, or a single folder, into a folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := parseID(to)
			return a.withStore(cmd, func(ctx context.Context, s *store.Store) (*store.Op, error) {
				first := parseID(args[0])
				kind, err := kindOf(s, first)
				if err != nil {
					return nil, err
				}
				if kind == domain.KindFolder {
					if len(args) > 1 {
						return nil, fmt.Errorf("folders move one at a time")
					}
					return s.MoveFolder(ctx, first, target), nil
				}
				ids := make([]domain.ID, len(args))
				for i, arg := range args {
					ids[i] = parseID(arg)
				}
				return s.MoveNotes(ctx, ids, target), nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Destination folder id (empty for the top level)")
	return cmd
}

func rmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a note, or a folder with everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s *store.Store) (*store.Op, error) {
				id := parseID(args[0])
				kind, err := kindOf(s, id)
				if err != nil {
					return nil, err
				}
				return s.DeleteItem(ctx, id, kind), nil
			})
		},
	}
}

func renameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s *store.Store) (*store.Op, error) {
				return s.RenameFolder(ctx, parseID(args[0]), args[1]), nil
			})
		},
	}
}

func showCmd(a *app) *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := parseID(args[0])
			if html {
				out, err := a.remote().NoteHTML(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}
			n, err := a.remote().GetNote(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n\n%s\n", n.Title, n.Content)
			return nil
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Render markdown as HTML")
	return cmd
}
