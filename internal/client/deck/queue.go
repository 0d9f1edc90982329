package deck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
)

var ErrQueueClosed = errors.New("deck: action queue is closed")

type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// Entry is one swipe decision waiting for its backend call.
type Entry struct {
	ID            uint64
	Decision      matching.Decision
	ApplicationID matching.ApplicationID
	JobID         string
	ApplicantID   string
	ApplicantName string
	EnqueuedAt    time.Time
	State         State
	Err           error
}

// Result is what a committed decision leads to.
type Result struct {
	ConversationID chat.ConversationID
	Path           string
}

// Decider performs the backend calls. Approve and Skip are separate calls.
type Decider interface {
	Approve(ctx context.Context, e Entry) (Result, error)
	Skip(ctx context.Context, e Entry) (Result, error)
}

type Navigator interface {
	Push(path string)
}

type QueueConfig struct {
	Decider   Decider
	Navigator Navigator
	// OnError receives failed entries; the queue moves on regardless.
	OnError   func(Entry, error)
	OnSuccess func(Entry, Result)
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Queue runs decisions one at a time in enqueue order.
type Queue struct {
	cfg    QueueConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []*Entry
	done    []Entry
	running bool
	closed  bool
	idle    chan struct{}
	seq     uint64
}

func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Queue{cfg: cfg, ctx: ctx, cancel: cancel, idle: idle}
}

// Enqueue appends e and starts the drain if the queue is idle.
func (q *Queue) Enqueue(e Entry) (Entry, error) {
	switch e.Decision {
	case matching.DecisionApprove, matching.DecisionSkip:
	default:
		return Entry{}, matching.ErrInvalidDecision
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Entry{}, ErrQueueClosed
	}
	q.seq++
	e.ID = q.seq
	e.State = StatePending
	e.EnqueuedAt = q.cfg.Clock()
	q.pending = append(q.pending, &e)
	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.drain()
	}
	return e, nil
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending = q.pending[1:]
		e.State = StateProcessing
		entry := *e
		q.mu.Unlock()

		entry = q.process(entry)

		q.mu.Lock()
		q.done = append(q.done, entry)
		q.mu.Unlock()
	}
}

func (q *Queue) process(e Entry) Entry {
	var (
		res Result
		err error
	)
	switch e.Decision {
	case matching.DecisionApprove:
		res, err = q.cfg.Decider.Approve(q.ctx, e)
	case matching.DecisionSkip:
		res, err = q.cfg.Decider.Skip(q.ctx, e)
	}
	if err != nil {
		e.State = StateFailed
		e.Err = fmt.Errorf("%s %s: %w", e.Decision, e.ApplicationID, err)
		q.cfg.Logger.Error("swipe decision failed", "application_id", e.ApplicationID, "decision", e.Decision, "error", err)
		if q.cfg.OnError != nil {
			q.cfg.OnError(e, e.Err)
		}
		return e
	}
	e.State = StateCommitted
	q.cfg.Logger.Info("swipe decision committed", "application_id", e.ApplicationID, "decision", e.Decision)
	if q.cfg.Navigator != nil && res.Path != "" {
		q.cfg.Navigator.Push(res.Path)
	}
	if q.cfg.OnSuccess != nil {
		q.cfg.OnSuccess(e, res)
	}
	return e
}

// Wait blocks until every enqueued entry has been processed.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries. Entries already queued still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Shutdown closes the queue and waits for it to drain. In-flight calls are
// cancelled when ctx expires first.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Close()
	err := q.Wait(ctx)
	if err != nil {
		q.cancel()
	}
	return err
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Processed returns finished entries in completion order.
func (q *Queue) Processed() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.done))
	copy(out, q.done)
	return out
}
