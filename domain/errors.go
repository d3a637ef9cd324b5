// domain/errors.go
package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrUnconfirmed = errors.New("not confirmed by the service")
	ErrCycle       = errors.New("cannot move folder into itself")
	ErrInvalid     = errors.New("invalid input")
	ErrConflict    = errors.New("conflict")
)

var codes = map[string]error{
	"not_found":   ErrNotFound,
	"unconfirmed": ErrUnconfirmed,
	"cycle":       ErrCycle,
	"invalid":     ErrInvalid,
	"conflict":    ErrConflict,
}

// Code names the sentinel err wraps, for transport in error responses.
// It returns "" for errors outside this package.
func Code(err error) string {
	for code, sentinel := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// FromCode is the inverse of Code.
func FromCode(code string) (error, bool) {
	err, ok := codes[code]
	return err, ok
}
