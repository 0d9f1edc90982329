package deck

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindbossing/internal/domain/matching"
)

type fakeSource struct {
	mu      sync.Mutex
	pending []Candidate
	calls   int
	limits  []int
}

func candidates(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range n {
		out[i] = Candidate{ApplicationID: matching.ApplicationID(fmt.Sprintf("app-%d", i)), JobID: "job-1", Name: fmt.Sprintf("Seeker %d", i)}
	}
	return out
}

func (s *fakeSource) Candidates(_ context.Context, _ string, limit, offset int) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.limits = append(s.limits, limit)
	if offset >= len(s.pending) {
		return nil, nil
	}
	end := min(offset+limit, len(s.pending))
	return append([]Candidate(nil), s.pending[offset:end]...), nil
}

func newTestDeck(t *testing.T, n, pageSize int) (*Deck, *recordingDecider, *Queue) {
	t.Helper()
	decider := &recordingDecider{}
	q := NewQueue(QueueConfig{Decider: decider, Logger: quietLogger()})
	d := New(q, &fakeSource{pending: candidates(n)}, "job-1", pageSize)
	_, err := d.Refill(context.Background())
	require.NoError(t, err)
	return d, decider, q
}

func TestRewindRestoresViewOnly(t *testing.T) {
	d, decider, q := newTestDeck(t, 3, 10)

	card, err := d.Approve()
	require.NoError(t, err)
	assert.Equal(t, matching.ApplicationID("app-0"), card.ApplicationID)

	require.True(t, d.Rewind())
	cur, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, matching.ApplicationID("app-0"), cur.ApplicationID)
	waitIdle(t, q)

	calls, _ := decider.snapshot()
	assert.Equal(t, []call{{decision: matching.DecisionApprove, id: "app-0"}}, calls)

	// swiping the rewound card again does not issue another call
	_, err = d.Skip()
	require.NoError(t, err)
	waitIdle(t, q)
	calls, _ = decider.snapshot()
	assert.Len(t, calls, 1)
	dec, _ := d.Decided("app-0")
	assert.Equal(t, matching.DecisionApprove, dec)

	cur, _ = d.Current()
	assert.Equal(t, matching.ApplicationID("app-1"), cur.ApplicationID)
}

func TestRewindOnlyUndoesLastStep(t *testing.T) {
	d, _, q := newTestDeck(t, 5, 10)
	_, _ = d.Skip()
	_, _ = d.Skip()
	_, _ = d.Approve()

	require.True(t, d.Rewind())
	cur, _ := d.Current()
	assert.Equal(t, matching.ApplicationID("app-2"), cur.ApplicationID)
	require.True(t, d.Rewind())
	require.True(t, d.Rewind())
	assert.False(t, d.Rewind())
	cur, _ = d.Current()
	assert.Equal(t, matching.ApplicationID("app-0"), cur.ApplicationID)
	waitIdle(t, q)
}

func TestDeckEmpty(t *testing.T) {
	d, _, _ := newTestDeck(t, 1, 10)
	_, err := d.Skip()
	require.NoError(t, err)
	_, err = d.Approve()
	assert.ErrorIs(t, err, ErrDeckEmpty)
	assert.False(t, d.NeedsRefill())
}

func TestRefillSkipsHeldAndDecided(t *testing.T) {
	source := &fakeSource{pending: candidates(5)}
	q := NewQueue(QueueConfig{Decider: &recordingDecider{}, Logger: quietLogger()})
	d := New(q, source, "job-1", 2)
	ctx := context.Background()

	added, err := d.Refill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	_, _ = d.Skip()
	_, _ = d.Skip()
	assert.True(t, d.NeedsRefill())

	added, err = d.Refill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	cur, _ := d.Current()
	assert.Equal(t, matching.ApplicationID("app-2"), cur.ApplicationID)
	assert.Equal(t, []int{2, 4}, source.limits)

	added, err = d.Refill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 3, d.Remaining())

	added, _ = d.Refill(ctx)
	assert.Zero(t, added)
	assert.Equal(t, 3, source.calls)
	waitIdle(t, q)
}
