// filesystem/parser.go
package filesystem

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinizap/myworld/domain"
	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// ReadNote parses a markdown file with YAML frontmatter. Files without
// frontmatter are read as plain content titled after the file name.
func ReadNote(path string) (*domain.Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	note := &domain.Note{}
	front, body, ok := splitFrontmatter(data)
	if !ok {
		note.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		note.Content = string(bytes.TrimSpace(data))
		return note, nil
	}

	if err := yaml.Unmarshal(front, note); err != nil {
		return nil, fmt.Errorf("parse frontmatter of %s: %w", path, err)
	}
	note.Title = domain.NormalizeTitle(note.Title)
	note.Content = string(bytes.TrimSpace(body))
	return note, nil
}

func splitFrontmatter(data []byte) (front, body []byte, ok bool) {
	if !bytes.HasPrefix(data, []byte(delimiter+"\n")) {
		return nil, data, false
	}
	rest := data[len(delimiter)+1:]
	end := bytes.Index(rest, []byte("\n"+delimiter))
	if end < 0 {
		return nil, data, false
	}
	body = rest[end+len(delimiter)+1:]
	return rest[:end], body, true
}

// WriteNote stores note at path. Pending notes are written without an id.
func WriteNote(path string, note *domain.Note) error {
	var buf bytes.Buffer

	buf.WriteString(delimiter + "\n")

	out := note
	if note.ID.IsPending() {
		out = note.Copy()
		out.ID = domain.Root
	}
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}
	encoder.Close()

	buf.WriteString(delimiter + "\n\n")
	buf.WriteString(note.Content)
	if !strings.HasSuffix(note.Content, "\n") {
		buf.WriteString("\n")
	}

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

type folderMeta struct {
	ID   string `yaml:"id,omitempty"`
	Name string    `yaml:"name"`
}

func readFolderMeta(dir string) (folderMeta, error) {
	meta := folderMeta{Name: filepath.Base(dir)}
	data, err := os.ReadFile(filepath.Join(dir, folderFile))
	if os.IsNotExist(err) {
		return meta, nil
	}
	if err != nil {
		return meta, err
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", filepath.Join(dir, folderFile), err)
	}
	return meta, nil
}

func writeFolderMeta(dir string, f *domain.Folder) error {
	meta := folderMeta{Name: f.Name}
	if !f.ID.IsPending() {
		meta.ID = f.ID.Value()
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode folder %s: %w", f.ID, err)
	}
	return os.WriteFile(filepath.Join(dir, folderFile), data, 0o644)
}
