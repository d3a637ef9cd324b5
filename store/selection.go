// store/selection.go
package store

import (
	"slices"

	"github.com/vinizap/myworld/domain"
)

// Selection is the open-tabs list and the active note. The zero value has
// nothing open. Methods return a new Selection and never modify the
// receiver's backing slice.
type Selection struct {
	open   []domain.ID
	active domain.ID
}

func (s Selection) Open() []domain.ID {
	return slices.Clone(s.open)
}

// Active returns domain.Root when no note is active.
func (s Selection) Active() domain.ID {
	return s.active
}

func (s Selection) IsOpen(id domain.ID) bool {
	return slices.Contains(s.open, id)
}

func (s Selection) open1(id domain.ID) Selection {
	if id.IsRoot() || s.IsOpen(id) {
		return s
	}
	s.open = appendTo(s.open, id)
	return s
}

// SetActive makes id the active note, opening it if needed. Root clears the
// active note.
func (s Selection) SetActive(id domain.ID) Selection {
	s = s.open1(id)
	s.active = id
	return s
}

// Close removes id from the open list. Closing the active note activates the
// last remaining open note. Closing a note that is not open is a no-op.
func (s Selection) Close(id domain.ID) Selection {
	return s.Remove(id)
}

// Remove closes every id in ids, promoting the last remaining open note when
// the active one goes away.
func (s Selection) Remove(ids ...domain.ID) Selection {
	open := slices.DeleteFunc(slices.Clone(s.open), func(o domain.ID) bool {
		return slices.Contains(ids, o)
	})
	if len(open) == len(s.open) {
		return s
	}
	s.open = open
	if slices.Contains(ids, s.active) {
		s.active = domain.Root
		if len(open) > 0 {
			s.active = open[len(open)-1]
		}
	}
	return s
}

// Discard drops id without promoting another note: if id was active,
// nothing is active afterwards.
func (s Selection) Discard(id domain.ID) Selection {
	wasActive := s.active == id
	s = s.Remove(id)
	if wasActive {
		s.active = domain.Root
	}
	return s
}

// Replace substitutes newID for oldID in place.
func (s Selection) Replace(oldID, newID domain.ID) Selection {
	if i := slices.Index(s.open, oldID); i >= 0 {
		s.open = replaceAt(s.open, i, newID)
	}
	if s.active == oldID {
		s.active = newID
	}
	return s
}

func (s Selection) Equal(o Selection) bool {
	return s.active == o.active && slices.Equal(s.open, o.open)
}

func appendTo(s []domain.ID, id domain.ID) []domain.ID {
	out := make([]domain.ID, 0, len(s)+1)
	out = append(out, s...)
	return append(out, id)
}

func replaceAt(s []domain.ID, i int, id domain.ID) []domain.ID {
	out := slices.Clone(s)
	out[i] = id
	return out
}
