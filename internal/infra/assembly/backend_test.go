package assembly

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	matchingapp "kindbossing/internal/app/handlers/matching"
	"kindbossing/internal/app/middleware"
	appoutbox "kindbossing/internal/app/outbox"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/user"
	"kindbossing/internal/infra/config"
)

type recordingReactor struct {
	name string
	mu   sync.Mutex
	seen []string
}

func (r *recordingReactor) Name() string { return r.name }

func (r *recordingReactor) OnEvent(_ context.Context, ev appoutbox.EventRecord) error {
	r.mu.Lock()
	r.seen = append(r.seen, ev.Name)
	r.mu.Unlock()
	return nil
}

func (r *recordingReactor) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestMemoryBackendRoutesToSharedAndLocalReactors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "applications.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "app-1", "job_id": "job-1", "employer_id": "boss", "applicant_id": "seeker", "applied_at": "2026-09-01T08:00:00Z"}
	]`), 0o600))

	ctx := context.Background()
	b, err := Open(ctx, config.Config{StorageDriver: config.DriverMemory, FixturesPath: path}, logger, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.False(t, b.Durable())
	assert.NoError(t, b.Ready(ctx))
	b.LoadFixtures(ctx)

	shared := &recordingReactor{name: "shared"}
	local := &recordingReactor{name: "local"}
	b.RegisterShared(shared)
	b.RegisterLocal(local)

	actorCtx := middleware.WithActor(ctx, middleware.Actor{ID: "boss", Roles: []user.Role{user.RoleEmployer}})
	_, err = commands.Dispatch[matchingapp.DecideApplicationCommand, dto.Decision](actorCtx, b.Buses.Commands, matchingapp.DecideApplicationCommand{
		ApplicationID: "app-1",
		EmployerID:    "boss",
		Decision:      string(matching.DecisionApprove),
	})
	require.NoError(t, err)

	want := []string{matching.ApplicationApproved{}.EventName()}
	assert.Equal(t, want, shared.events())
	assert.Equal(t, want, local.events())
}

func TestMemoryBackendRunStopsWithContext(t *testing.T) {
	b, err := Open(context.Background(), config.Config{StorageDriver: config.DriverMemory}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunAllReturnsFirstFailure(t *testing.T) {
	boom := errors.New("broker down")
	stopped := make(chan struct{})
	err := runAll(context.Background(), []func(context.Context) error{
		func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		},
		func(context.Context) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	default:
		t.Fatal("sibling loop was not cancelled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, runAll(ctx, []func(context.Context) error{
		func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
	}))
}
