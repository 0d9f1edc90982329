package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
)

const DefaultPageSize = 10

var ErrDeckEmpty = errors.New("deck: no candidate to decide")

// Candidate is one applicant card.
type Candidate struct {
	ApplicationID matching.ApplicationID
	JobID         string
	ApplicantID   string
	Name          string
	Headline      string
	AppliedAt     time.Time
}

// CandidateSource lists pending applications of a job, oldest first.
type CandidateSource interface {
	Candidates(ctx context.Context, jobID string, limit, offset int) ([]Candidate, error)
}

// Deck is the swipe view over a job's candidates. Decisions move the view
// forward immediately and are handed to the Queue for the backend call.
type Deck struct {
	queue    *Queue
	source   CandidateSource
	jobID    string
	pageSize int

	mu        sync.Mutex
	cards     []Candidate
	held      map[matching.ApplicationID]struct{}
	index     int
	history   []int
	decided   map[matching.ApplicationID]matching.Decision
	exhausted bool
}

func New(queue *Queue, source CandidateSource, jobID string, pageSize int) *Deck {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Deck{
		queue:    queue,
		source:   source,
		jobID:    jobID,
		pageSize: pageSize,
		held:     make(map[matching.ApplicationID]struct{}),
		decided:  make(map[matching.ApplicationID]matching.Decision),
	}
}

func (d *Deck) Current() (Candidate, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index >= len(d.cards) {
		return Candidate{}, false
	}
	return d.cards[d.index], true
}

func (d *Deck) Approve() (Candidate, error) {
	return d.decide(matching.DecisionApprove)
}

func (d *Deck) Skip() (Candidate, error) {
	return d.decide(matching.DecisionSkip)
}

// decide advances the view and enqueues the decision unless this candidate
// was already decided earlier in the session.
func (d *Deck) decide(decision matching.Decision) (Candidate, error) {
	d.mu.Lock()
	if d.index >= len(d.cards) {
		d.mu.Unlock()
		return Candidate{}, ErrDeckEmpty
	}
	card := d.cards[d.index]
	d.history = append(d.history, d.index)
	d.index++
	_, already := d.decided[card.ApplicationID]
	if !already {
		d.decided[card.ApplicationID] = decision
	}
	d.mu.Unlock()

	if already {
		return card, nil
	}
	_, err := d.queue.Enqueue(Entry{
		Decision:      decision,
		ApplicationID: card.ApplicationID,
		JobID:         card.JobID,
		ApplicantID:   card.ApplicantID,
		ApplicantName: card.Name,
	})
	if err != nil {
		return card, fmt.Errorf("enqueue %s: %w", decision, err)
	}
	return card, nil
}

// Rewind moves the view back to the previous card. The decision already
// queued for it is neither cancelled nor issued again.
func (d *Deck) Rewind() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.history) == 0 {
		return false
	}
	d.index = d.history[len(d.history)-1]
	d.history = d.history[:len(d.history)-1]
	return true
}

// Decided reports the session decision for id.
func (d *Deck) Decided(id matching.ApplicationID) (matching.Decision, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dec, ok := d.decided[id]
	return dec, ok
}

func (d *Deck) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cards) - d.index
}

// NeedsRefill reports whether the view ran out of cards while more may exist.
func (d *Deck) NeedsRefill() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index >= len(d.cards) && !d.exhausted
}

// Refill fetches candidates not yet held or decided. The source lists only
// pending applications, so the request always starts from the first page
// and widens the limit by the cards already held.
func (d *Deck) Refill(ctx context.Context) (int, error) {
	d.mu.Lock()
	if d.exhausted {
		d.mu.Unlock()
		return 0, nil
	}
	limit := d.pageSize + len(d.held)
	d.mu.Unlock()

	page, err := d.source.Candidates(ctx, d.jobID, limit, 0)
	if err != nil {
		return 0, fmt.Errorf("load candidates: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	added := 0
	for _, c := range page {
		if _, ok := d.held[c.ApplicationID]; ok {
			continue
		}
		if _, ok := d.decided[c.ApplicationID]; ok {
			continue
		}
		d.held[c.ApplicationID] = struct{}{}
		d.cards = append(d.cards, c)
		added++
	}
	if added == 0 || len(page) < limit {
		d.exhausted = true
	}
	return added, nil
}

// ChatPath is where an approval navigates: the match's conversation, which
// stays temporary until its first message.
func ChatPath(applicationID matching.ApplicationID) string {
	return "/chat/" + string(chat.TemporaryConversationID(string(applicationID)))
}

// DecisionClient is the backend call behind both decisions.
type DecisionClient interface {
	DecideApplication(ctx context.Context, id matching.ApplicationID, decision matching.Decision) error
}

// RemoteDecider adapts a DecisionClient to the Decider port.
type RemoteDecider struct {
	Client DecisionClient
}

func (r RemoteDecider) Approve(ctx context.Context, e Entry) (Result, error) {
	if err := r.Client.DecideApplication(ctx, e.ApplicationID, matching.DecisionApprove); err != nil {
		return Result{}, err
	}
	return Result{
		ConversationID: chat.TemporaryConversationID(string(e.ApplicationID)),
		Path:           ChatPath(e.ApplicationID),
	}, nil
}

func (r RemoteDecider) Skip(ctx context.Context, e Entry) (Result, error) {
	if err := r.Client.DecideApplication(ctx, e.ApplicationID, matching.DecisionSkip); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}
