// domain/id.go
package domain

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ID identifies a note or a folder. An ID is either pending (generated on
// the client before the service has seen the entity) or confirmed (assigned
// by the service). The tag is part of the value, so a pending ID never
// compares equal to a confirmed one even when the strings match.
//
// The zero ID is Root, the implicit container of top-level entities.
type ID struct {
	value   string
	pending bool
}

// Root is the parent reference of top-level folders and notes.
var Root ID

func Confirmed(serverID string) ID {
	return ID{value: serverID}
}

func Pending(localID string) ID {
	return ID{value: localID, pending: true}
}

// NewPending returns a fresh client-side ID.
func NewPending() ID {
	return Pending(uuid.NewString())
}

func (id ID) IsRoot() bool {
	return id.value == ""
}

func (id ID) IsPending() bool {
	return id.pending
}

// Value returns the raw identifier without its tag.
func (id ID) Value() string {
	return id.value
}

func (id ID) String() string {
	switch {
	case id.IsRoot():
		return "root"
	case id.pending:
		return "pending:" + id.value
	default:
		return id.value
	}
}

// MarshalText only accepts confirmed IDs: pending IDs must never leave the
// process.
func (id ID) MarshalText() ([]byte, error) {
	if id.pending {
		return nil, fmt.Errorf("marshal %s: %w", id, ErrUnconfirmed)
	}
	return []byte(id.value), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	*id = Confirmed(string(b))
	return nil
}

func (id ID) MarshalYAML() (interface{}, error) {
	b, err := id.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (id *ID) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*id = Confirmed(s)
	return nil
}
