package polldata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkmire/steamtrade/offer"
)

func TestRecordAndState(t *testing.T) {
	s := New()
	s.Record(SentSide, "1", offer.StateActive, 1000)

	st, ok := s.State(SentSide, "1")
	require.True(t, ok)
	assert.Equal(t, offer.StateActive, st)

	_, ok = s.State(ReceivedSide, "1")
	assert.False(t, ok)

	ts, ok := s.Timestamp("1")
	require.True(t, ok)
	assert.Equal(t, int64(1000), ts)
}

func TestCancelOverrides(t *testing.T) {
	s := New()
	s.SetCancel("1", 5000)
	s.SetPendingCancel("1", 9000)

	v, ok := s.CancelOverride("1")
	require.True(t, ok)
	assert.Equal(t, int64(5000), v)

	v, ok = s.PendingCancelOverride("1")
	require.True(t, ok)
	assert.Equal(t, int64(9000), v)

	s.DeleteTimeProps("1")
	_, ok = s.CancelOverride("1")
	assert.False(t, ok)
	_, ok = s.PendingCancelOverride("1")
	assert.False(t, ok)
}

func TestLoadIsIdempotentAndInMemoryWins(t *testing.T) {
	s := &Store{data: emptySnapshot()}
	s.Record(SentSide, "1", offer.StateActive, 500)

	called := 0
	load := func(username string) (*Snapshot, error) {
		called++
		return &Snapshot{
			Sent:        map[string]offer.State{"1": offer.StateCanceled, "2": offer.StateDeclined},
			Received:    map[string]offer.State{},
			Timestamps:  map[string]int64{"1": 100, "2": 200},
			OffersSince: 50,
		}, nil
	}

	require.NoError(t, s.Load(load, "alice"))
	assert.Equal(t, 1, called)

	st, ok := s.State(SentSide, "1")
	require.True(t, ok)
	assert.Equal(t, offer.StateActive, st, "in-memory entry recorded before Load must win on collision")

	st, ok = s.State(SentSide, "2")
	require.True(t, ok)
	assert.Equal(t, offer.StateDeclined, st, "loaded entries with no in-memory collision survive the merge")

	require.NoError(t, s.Load(load, "alice"))
	assert.Equal(t, 1, called, "a second Load must be a no-op")
}

func TestLoadMarksLoadedEvenOnFailure(t *testing.T) {
	s := &Store{data: emptySnapshot()}
	boom := errors.New("boom")
	err := s.Load(func(string) (*Snapshot, error) { return nil, boom }, "alice")
	assert.ErrorIs(t, err, boom)
	assert.True(t, s.IsLoaded())

	err = s.Load(func(string) (*Snapshot, error) {
		t.Fatal("load should not be called again")
		return nil, nil
	}, "alice")
	assert.NoError(t, err)
}

func TestOffersSinceMonotonicityIsCallerEnforced(t *testing.T) {
	s := New()
	s.SetOffersSince(100)
	assert.Equal(t, int64(100), s.OffersSince())
	s.SetOffersSince(50)
	assert.Equal(t, int64(50), s.OffersSince(), "setter itself does not clamp; callers enforce monotonicity")
}

func TestPruneRemovesOldTerminalEntriesOnly(t *testing.T) {
	s := New()
	s.Record(SentSide, "old-terminal", offer.StateCanceled, 0)
	s.Record(SentSide, "recent-terminal", offer.StateCanceled, 9000)
	s.Record(ReceivedSide, "nonterminal", offer.StateAccepted, 0)
	s.SetOffersSince(10000)

	s.Prune()

	_, ok := s.State(SentSide, "old-terminal")
	assert.False(t, ok, "terminal entry older than offers_since-1800 must be pruned")

	_, ok = s.State(SentSide, "recent-terminal")
	assert.True(t, ok, "terminal entry newer than the cutoff survives")

	_, ok = s.State(ReceivedSide, "nonterminal")
	assert.True(t, ok, "non-terminal entries are never pruned regardless of age")
}

func TestSnapshotIsADeepCopy(t *testing.T) {
	s := New()
	s.Record(SentSide, "1", offer.StateActive, 1)
	snap := s.Snapshot()
	snap.Sent["1"] = offer.StateCanceled

	st, _ := s.State(SentSide, "1")
	assert.Equal(t, offer.StateActive, st, "mutating a snapshot must not affect the live store")
}
