// domain/normalize.go
package domain

import (
	"fmt"
	"strings"
)

const Untitled = "Untitled"

// NormalizeTitle is the service-side form of a note title: trimmed, and
// never empty.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return Untitled
	}
	return title
}

func NormalizeFolderName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("folder name required: %w", ErrInvalid)
	}
	return name, nil
}
