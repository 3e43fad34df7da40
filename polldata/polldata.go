// Package polldata implements the Poll-Data Store (spec.md §3, §4.B):
// the persistent bookkeeping the reconciliation loop uses to detect
// offer-state transitions exactly once and to know when a terminal
// offer is old enough to forget about.
package polldata

import (
	"sync"

	"github.com/arkmire/steamtrade/offer"
)

// Side distinguishes the two offer directions the store tracks
// independently.
type Side int

const (
	SentSide Side = iota
	ReceivedSide
)

// pruneMarginSeconds is the 30-minute server-backdate tolerance spec.md
// §3 and §4.B both cite.
const pruneMarginSeconds int64 = 1800

// Snapshot is the exact value shape (five maps + one scalar) spec.md §3
// and §6 describe for persistence: what a Loader returns and what gets
// handed to a Saver. It is the wire/storage shape — Store is the live,
// mutex-guarded copy callers actually operate on.
type Snapshot struct {
	Sent               map[string]offer.State `json:"sent"`
	Received           map[string]offer.State `json:"received"`
	Timestamps         map[string]int64       `json:"timestamps"`
	CancelTimes        map[string]int64       `json:"cancel_times"`
	PendingCancelTimes map[string]int64       `json:"pending_cancel_times"`
	OffersSince        int64                  `json:"offers_since"`
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Sent:               map[string]offer.State{},
		Received:           map[string]offer.State{},
		Timestamps:         map[string]int64{},
		CancelTimes:        map[string]int64{},
		PendingCancelTimes: map[string]int64{},
	}
}

// LoadFunc fetches a previously saved Snapshot for username. A nil
// result with a nil error means "nothing saved yet" — that is not an
// error per spec.md §4.B.
type LoadFunc func(username string) (*Snapshot, error)

// SaveFunc persists data for username. Per spec.md §4.D step 11, save
// failures are logged by the caller and never abort a tick.
type SaveFunc func(data Snapshot, username string) error

// Store is the live poll-data table, owned by the reconciliation loop
// (spec.md §3 "Ownership") but safe to touch from C's send on success,
// per spec.md §5's shared-resource policy: a single mutex serializes
// writers.
type Store struct {
	mu   sync.Mutex
	data Snapshot

	loaded bool
}

// New returns an empty, already-"loaded" Store — useful for tests and
// for hosts that don't configure persistence callbacks.
func New() *Store {
	return &Store{data: emptySnapshot(), loaded: true}
}

// IsLoaded reports whether a lazy Load has happened yet.
func (s *Store) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Load performs the one-shot lazy load spec.md §4.D step 1 describes:
// any in-memory entries accumulated before this call win over the
// loaded ones on id collision, then the merged result replaces the
// in-memory map. Load is idempotent after the first successful or
// failed attempt — subsequent calls are no-ops, matching the "mark
// loaded even on failure" instruction.
func (s *Store) Load(load LoadFunc, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	defer func() { s.loaded = true }()

	if load == nil {
		return nil
	}
	snap, err := load(username)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	merged := cloneSnapshot(*snap)
	overlay(merged.Sent, s.data.Sent)
	overlay(merged.Received, s.data.Received)
	overlayInt(merged.Timestamps, s.data.Timestamps)
	overlayInt(merged.CancelTimes, s.data.CancelTimes)
	overlayInt(merged.PendingCancelTimes, s.data.PendingCancelTimes)
	if s.data.OffersSince > merged.OffersSince {
		merged.OffersSince = s.data.OffersSince
	}
	s.data = merged
	return nil
}

func overlay(dst, src map[string]offer.State) {
	for k, v := range src {
		dst[k] = v
	}
}

func overlayInt(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}

func cloneSnapshot(in Snapshot) Snapshot {
	out := emptySnapshot()
	for k, v := range in.Sent {
		out.Sent[k] = v
	}
	for k, v := range in.Received {
		out.Received[k] = v
	}
	for k, v := range in.Timestamps {
		out.Timestamps[k] = v
	}
	for k, v := range in.CancelTimes {
		out.CancelTimes[k] = v
	}
	for k, v := range in.PendingCancelTimes {
		out.PendingCancelTimes[k] = v
	}
	out.OffersSince = in.OffersSince
	return out
}

// Snapshot returns a deep copy of the current table, suitable for
// handing to a SaveFunc or for inspection in tests.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSnapshot(s.data)
}

// Record sets the last-known state and last-seen timestamp for id on
// the given side — the write both C.send and the reconciliation loop's
// walk perform.
func (s *Store) Record(side Side, id string, state offer.State, updatedAtSeconds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == SentSide {
		s.data.Sent[id] = state
	} else {
		s.data.Received[id] = state
	}
	s.data.Timestamps[id] = updatedAtSeconds
}

// State returns the last-known state for id on the given side, and
// whether an entry exists at all.
func (s *Store) State(side Side, id string) (offer.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == SentSide {
		st, ok := s.data.Sent[id]
		return st, ok
	}
	st, ok := s.data.Received[id]
	return st, ok
}

// Timestamp returns the last-seen updated_at (seconds) recorded for id.
func (s *Store) Timestamp(id string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.data.Timestamps[id]
	return ts, ok
}

// SetCancel records a per-offer cancel_time override, milliseconds.
func (s *Store) SetCancel(id string, ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CancelTimes[id] = ms
}

// SetPendingCancel records a per-offer pending_cancel_time override.
func (s *Store) SetPendingCancel(id string, ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PendingCancelTimes[id] = ms
}

// CancelOverride returns the per-offer cancel_time override for id, if
// any.
func (s *Store) CancelOverride(id string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data.CancelTimes[id]
	return v, ok
}

// PendingCancelOverride returns the per-offer pending_cancel_time
// override for id, if any.
func (s *Store) PendingCancelOverride(id string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data.PendingCancelTimes[id]
	return v, ok
}

// DeleteTimeProps clears the per-offer cancel_time and
// pending_cancel_time overrides for id (spec.md §4.D steps 6-7, fired
// after a successful auto-cancel).
func (s *Store) DeleteTimeProps(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.CancelTimes, id)
	delete(s.data.PendingCancelTimes, id)
}

// DeleteAll removes every trace of id from the store — sent, received,
// timestamps, and both override maps. Used by prune and directly by
// tests exercising the GC rule.
func (s *Store) DeleteAll(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteAllLocked(id)
}

func (s *Store) deleteAllLocked(id string) {
	delete(s.data.Sent, id)
	delete(s.data.Received, id)
	delete(s.data.Timestamps, id)
	delete(s.data.CancelTimes, id)
	delete(s.data.PendingCancelTimes, id)
}

// OffersSince returns the current historical cutoff.
func (s *Store) OffersSince() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.OffersSince
}

// SetOffersSince advances the cutoff. Callers (the poller) are
// responsible for the monotonicity invariant (spec.md §3, §8 property
// 4); this setter does not enforce it so tests can exercise edge cases
// directly.
func (s *Store) SetOffersSince(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.OffersSince = v
}

// Prune implements spec.md §4.B's GC rule: an id is eligible for
// pruning iff its recorded state is terminal and
// timestamps[id] < offers_since - 1800.
func (s *Store) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := s.data.OffersSince - pruneMarginSeconds

	candidates := make(map[string]struct{}, len(s.data.Sent)+len(s.data.Received))
	for id, st := range s.data.Sent {
		if st.Terminal() {
			candidates[id] = struct{}{}
		}
	}
	for id, st := range s.data.Received {
		if st.Terminal() {
			candidates[id] = struct{}{}
		}
	}

	for id := range candidates {
		ts, ok := s.data.Timestamps[id]
		if ok && ts < threshold {
			s.deleteAllLocked(id)
		}
	}
}
