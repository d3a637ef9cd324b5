// store/store.go
//
// Package store keeps the client-side copy of the note tree. Mutations are
// applied optimistically and published to subscribers before the remote
// call is made; the remote outcome is then reconciled into the tree or
// rolled back.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vinizap/myworld/domain"
	"github.com/vinizap/myworld/tree"
)

var ErrClosed = errors.New("store closed")

// Snapshot is a consistent view of the store. Tree is shared with the store
// and must not be modified.
type Snapshot struct {
	Tree    *domain.Tree
	Open    []domain.ID
	Active  domain.ID
	Version uint64
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithInitialTree seeds the store without a FetchTree round trip.
func WithInitialTree(t *domain.Tree) Option {
	return func(s *Store) { s.tree = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMoveConcurrency limits the concurrent remote calls of one MoveNotes
// batch. n <= 0 means no limit.
func WithMoveConcurrency(n int) Option {
	return func(s *Store) { s.moveConcurrency = n }
}

type Store struct {
	remote          Remote
	log             zerolog.Logger
	metrics         *Metrics
	now             func() time.Time
	moveConcurrency int

	mu      sync.Mutex
	tree    *domain.Tree
	index   tree.Index
	sel     Selection
	version uint64

	// epoch advances on every commit and whenever a pending id is confirmed
	// without a commit. A rollback may only restore a whole snapshot when the
	// epoch has not moved since the mutation committed.
	epoch uint64

	// seq orders issued writes; ledger holds the seq of the latest write
	// issued per entity.
	seq    uint64
	ledger map[domain.ID]uint64

	// aliases maps confirmed pending ids to canonical ids while remote
	// phases that may still hold the pending id are in flight.
	creates  map[domain.ID]*Op
	aliases  map[domain.ID]domain.ID
	inflight int

	subs   map[*subscriber]struct{}
	closed bool
	wg     sync.WaitGroup
}

func New(remote Remote, opts ...Option) *Store {
	s := &Store{
		remote:  remote,
		log:     zerolog.Nop(),
		now:     time.Now,
		tree:    &domain.Tree{},
		ledger:  make(map[domain.ID]uint64),
		creates: make(map[domain.ID]*Op),
		aliases: make(map[domain.ID]domain.ID),
		subs:    make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.index = tree.BuildIndex(s.tree)
	return s
}

// Load replaces the tree with the service's current one. Open tabs that no
// longer exist are closed.
func (s *Store) Load(ctx context.Context) error {
	t, err := s.remote.FetchTree(ctx)
	if err != nil {
		return fmt.Errorf("fetch tree: %w", err)
	}
	if err := tree.Validate(t); err != nil {
		return fmt.Errorf("fetch tree: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	idx := tree.BuildIndex(t)
	sel := s.sel
	for _, id := range s.sel.open {
		if _, ok := idx[id]; !ok {
			sel = sel.Remove(id)
		}
	}
	s.commitLocked(t, sel)
	s.log.Info().Int("entities", len(idx)).Msg("tree loaded")
	return nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Tree:    s.tree,
		Open:    s.sel.Open(),
		Active:  s.sel.Active(),
		Version: s.version,
	}
}

// Subscribe returns a channel that receives the current snapshot and then
// every later one. A subscriber that falls behind only misses intermediate
// snapshots: the latest one is always delivered. The returned function
// unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	sub := &subscriber{ch: make(chan Snapshot, 1)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	s.subs[sub] = struct{}{}
	sub.offer(s.snapshotLocked())

	return sub.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.ch)
		}
	}
}

type subscriber struct {
	ch chan Snapshot
}

// offer replaces any undelivered snapshot with snap. Callers hold the store
// mutex, so offer is the only writer and the send never blocks.
func (sub *subscriber) offer(snap Snapshot) {
	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- snap
}

// SetActive makes a note the active tab, opening it if needed. domain.Root
// clears the active tab.
func (s *Store) SetActive(id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !id.IsRoot() && s.index[id].Kind != domain.KindNote {
		return fmt.Errorf("set active %s: %w", id, domain.ErrNotFound)
	}
	if sel := s.sel.SetActive(id); !sel.Equal(s.sel) {
		s.commitLocked(s.tree, sel)
	}
	return nil
}

// CloseTab closes a note tab. Closing a tab that is not open does nothing.
func (s *Store) CloseTab(id domain.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sel := s.sel.Close(id); !sel.Equal(s.sel) {
		s.commitLocked(s.tree, sel)
	}
}

// Close waits for in-flight remote calls to settle and closes every
// subscription. Mutations issued afterwards fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		close(sub.ch)
		delete(s.subs, sub)
	}
	return nil
}

// state is what a wholesale rollback restores.
type state struct {
	tree *domain.Tree
	sel  Selection
}

func (s *Store) stateLocked() state {
	return state{tree: s.tree, sel: s.sel}
}

// commitLocked publishes a new snapshot. Every replacement of the tree goes
// through here so subscribers never miss one.
func (s *Store) commitLocked(t *domain.Tree, sel Selection) {
	if t != s.tree {
		s.index = tree.BuildIndex(t)
	}
	s.tree, s.sel = t, sel
	s.version++
	s.epoch++
	snap := s.snapshotLocked()
	for sub := range s.subs {
		sub.offer(snap)
	}
}

// rollbackLocked restores pre when nothing happened after the mutation's
// own optimistic commit (epoch). Otherwise undo is applied to the current
// state so unrelated later commits survive.
func (s *Store) rollbackLocked(pre state, epoch uint64, undo func() (*domain.Tree, Selection)) {
	if s.epoch == epoch {
		s.commitLocked(pre.tree, pre.sel)
		return
	}
	t, sel := undo()
	if t != s.tree || !sel.Equal(s.sel) {
		s.commitLocked(t, sel)
	}
}

// bumpLocked records a new write for id and returns its sequence number.
func (s *Store) bumpLocked(id domain.ID) uint64 {
	s.seq++
	s.ledger[id] = s.seq
	return s.seq
}

// currentLocked reports whether seq is still the latest write for id, and
// forgets the entry when it is.
func (s *Store) currentLocked(id domain.ID, seq uint64) bool {
	if s.ledger[id] != seq {
		return false
	}
	delete(s.ledger, id)
	return true
}

// canonicalLocked maps a pending id to its confirmed id once known.
func (s *Store) canonicalLocked(id domain.ID) (domain.ID, bool) {
	c, ok := s.aliases[id]
	return c, ok
}

// currentIDLocked returns the canonical id for a confirmed pending id and id
// itself otherwise.
func (s *Store) currentIDLocked(id domain.ID) domain.ID {
	if c, ok := s.aliases[id]; ok {
		return c
	}
	return id
}

// moveTargetLocked maps the destination of a move to a confirmed folder id.
// A folder whose create has not been confirmed cannot receive moves.
func (s *Store) moveTargetLocked(id domain.ID) (domain.ID, error) {
	if !id.IsPending() {
		return id, nil
	}
	if c, ok := s.canonicalLocked(id); ok {
		return c, nil
	}
	return id, fmt.Errorf("move into %s: %w", id, domain.ErrUnconfirmed)
}

// resolve waits until a pending id is confirmed. It fails with
// domain.ErrUnconfirmed when the entity's create failed.
func (s *Store) resolve(ctx context.Context, id domain.ID) (domain.ID, error) {
	if !id.IsPending() {
		return id, nil
	}
	s.mu.Lock()
	if c, ok := s.aliases[id]; ok {
		s.mu.Unlock()
		return c, nil
	}
	op := s.creates[id]
	s.mu.Unlock()
	if op == nil {
		return id, fmt.Errorf("resolve %s: %w", id, domain.ErrUnconfirmed)
	}

	select {
	case <-op.Done():
	case <-ctx.Done():
		return id, ctx.Err()
	}
	if op.Err() != nil {
		return id, fmt.Errorf("resolve %s: %w", id, domain.ErrUnconfirmed)
	}
	return op.Canonical(), nil
}

// goLocked runs the remote phase of a mutation. Close waits for it. Aliases
// are dropped once no remote phase is left that could refer to them.
func (s *Store) goLocked(fn func()) {
	s.wg.Add(1)
	s.inflight++
	s.metrics.started()
	go func() {
		defer s.wg.Done()
		defer s.metrics.finished()
		fn()

		s.mu.Lock()
		s.inflight--
		if s.inflight == 0 {
			clear(s.aliases)
		}
		s.mu.Unlock()
	}()
}
