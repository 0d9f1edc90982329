package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPending(t *testing.T) *Application {
	t.Helper()
	app, err := NewApplication(CreateParams{
		ID:          "app-1",
		JobID:       "job-1",
		EmployerID:  "boss",
		ApplicantID: "tao",
		AppliedAt:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return app
}

func TestDecideExactlyOnce(t *testing.T) {
	app := newPending(t)
	now := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, app.Decide(DecisionApprove, "boss", now))
	assert.Equal(t, StatusApproved, app.Status)
	assert.Equal(t, now, app.DecidedAt)

	assert.ErrorIs(t, app.Decide(DecisionSkip, "boss", now), ErrAlreadyDecided)
	assert.Equal(t, StatusApproved, app.Status)

	evs := app.DrainEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, "application.approved", evs[0].EventName())
}

func TestDecideRequiresOwner(t *testing.T) {
	app := newPending(t)
	assert.ErrorIs(t, app.Decide(DecisionSkip, "someone-else", time.Now()), ErrNotJobOwner)
	assert.Equal(t, StatusPending, app.Status)
}

func TestIsMatch(t *testing.T) {
	app := newPending(t)
	assert.False(t, app.IsMatch("boss", "tao"))

	require.NoError(t, app.Decide(DecisionApprove, "boss", time.Now()))
	assert.True(t, app.IsMatch("boss", "tao"))
	assert.True(t, app.IsMatch("tao", "boss"))
	assert.False(t, app.IsMatch("boss", "other"))
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d)

	_, err = ParseDecision("maybe")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}
