// store/op.go
package store

import (
	"context"

	"github.com/vinizap/myworld/domain"
)

// Op tracks the remote phase of a mutation. The optimistic change is already
// visible when the Op is returned; Done is closed once the mutation has been
// reconciled, rolled back or discarded as stale.
type Op struct {
	id        domain.ID
	done      chan struct{}
	err       error
	canonical domain.ID
}

func newOp(id domain.ID) *Op {
	return &Op{id: id, done: make(chan struct{})}
}

func settled(id domain.ID, err error) *Op {
	op := newOp(id)
	op.finish(id, err)
	return op
}

func (o *Op) finish(canonical domain.ID, err error) {
	o.canonical, o.err = canonical, err
	close(o.done)
}

// ID is the id the mutation was issued for. Creates return the pending id.
func (o *Op) ID() domain.ID {
	return o.id
}

func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Err returns the outcome of the remote call, or nil while it is in flight.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Canonical returns the confirmed id once a create succeeded. For other
// mutations it is the id the mutation targeted.
func (o *Op) Canonical() domain.ID {
	select {
	case <-o.done:
		return o.canonical
	default:
		return domain.Root
	}
}

func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
