package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"kindbossing/internal/domain/chat"
)

const (
	DefaultPageSize       = 20
	DefaultCooldown       = time.Second
	DefaultScrollCooldown = 500 * time.Millisecond
	DefaultScrollTrigger  = 100.0
)

var ErrNoConversation = errors.New("chatsync: no conversation loaded")

// Fetcher returns up to limit messages of a conversation, newest first,
// skipping offset messages from the newest end.
type Fetcher interface {
	FetchMessages(ctx context.Context, conversationID chat.ConversationID, limit, offset int) ([]chat.Message, error)
}

type PaginatorConfig struct {
	PageSize       int
	Cooldown       time.Duration
	ScrollCooldown time.Duration
	ScrollTrigger  float64
	Clock          func() time.Time
	Logger         *slog.Logger
}

func (c *PaginatorConfig) defaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.ScrollCooldown <= 0 {
		c.ScrollCooldown = DefaultScrollCooldown
	}
	if c.ScrollTrigger <= 0 {
		c.ScrollTrigger = DefaultScrollTrigger
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Paginator loads a conversation's history page by page into a Store.
type Paginator struct {
	fetcher Fetcher
	store   *Store
	cfg     PaginatorConfig

	mu             sync.Mutex
	conversationID chat.ConversationID
	cursor         int
	hasMore        bool
	loading        bool
	lastLoad       time.Time
	lastScroll     time.Time
	generation     uint64
	err            error
}

func NewPaginator(fetcher Fetcher, store *Store, cfg PaginatorConfig) *Paginator {
	cfg.defaults()
	return &Paginator{fetcher: fetcher, store: store, cfg: cfg}
}

// LoadInitial resets the cursor and the store, then loads the newest page.
func (p *Paginator) LoadInitial(ctx context.Context, id chat.ConversationID) error {
	return p.loadFirst(ctx, id, true)
}

// loadFirst loads the newest page of id. Without reset the page is merged
// into whatever the store already holds for id.
func (p *Paginator) loadFirst(ctx context.Context, id chat.ConversationID, reset bool) error {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.conversationID = id
	p.cursor = 0
	p.hasMore = false
	p.lastLoad = time.Time{}
	p.err = nil
	p.loading = true
	p.mu.Unlock()

	if reset {
		p.store.Reset()
	}

	page, err := p.fetcher.FetchMessages(ctx, id, p.cfg.PageSize, 0)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return nil
	}
	p.loading = false
	if err != nil {
		p.err = fmt.Errorf("load messages: %w", err)
		return p.err
	}
	p.store.Prepend(chronological(page))
	p.hasMore = len(page) == p.cfg.PageSize
	p.cursor = p.cfg.PageSize
	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug("initial page loaded", "conversation_id", id, "count", len(page), "has_more", p.hasMore)
	}
	return nil
}

// LoadMore fetches the next older page. It reports whether a fetch happened;
// concurrent calls, exhausted history and calls inside the cool-down window
// are no-ops.
func (p *Paginator) LoadMore(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.conversationID == "" {
		p.mu.Unlock()
		return false, ErrNoConversation
	}
	now := p.cfg.Clock()
	if p.loading || !p.hasMore || (!p.lastLoad.IsZero() && now.Sub(p.lastLoad) < p.cfg.Cooldown) {
		p.mu.Unlock()
		return false, nil
	}
	p.loading = true
	gen := p.generation
	id := p.conversationID
	offset := p.cursor
	p.mu.Unlock()

	page, err := p.fetcher.FetchMessages(ctx, id, p.cfg.PageSize, offset)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return false, nil
	}
	p.loading = false
	if err != nil {
		p.err = fmt.Errorf("load older messages: %w", err)
		return true, p.err
	}
	p.err = nil
	p.lastLoad = p.cfg.Clock()
	p.store.Prepend(chronological(page))
	p.cursor += p.cfg.PageSize
	if len(page) < p.cfg.PageSize {
		p.hasMore = false
	}
	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug("older page loaded", "conversation_id", id, "offset", offset, "count", len(page), "has_more", p.hasMore)
	}
	return true, nil
}

// OnSentinelVisible is called when the top-of-list sentinel becomes visible.
func (p *Paginator) OnSentinelVisible(ctx context.Context) (bool, error) {
	return p.LoadMore(ctx)
}

// OnScroll is the fallback trigger for views without visibility callbacks.
func (p *Paginator) OnScroll(ctx context.Context, scrollTop float64) (bool, error) {
	if scrollTop > p.cfg.ScrollTrigger {
		return false, nil
	}
	p.mu.Lock()
	now := p.cfg.Clock()
	if !p.lastScroll.IsZero() && now.Sub(p.lastScroll) < p.cfg.ScrollCooldown {
		p.mu.Unlock()
		return false, nil
	}
	p.lastScroll = now
	p.mu.Unlock()
	return p.LoadMore(ctx)
}

// Forget detaches the paginator from its conversation; in-flight results are discarded.
func (p *Paginator) Forget() {
	p.mu.Lock()
	p.generation++
	p.conversationID = ""
	p.loading = false
	p.hasMore = false
	p.mu.Unlock()
}

// Rekey follows a temporary conversation to its durable id without reloading.
func (p *Paginator) Rekey(id chat.ConversationID) {
	p.mu.Lock()
	p.conversationID = id
	p.mu.Unlock()
}

func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

func (p *Paginator) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the last load failure, cleared by the next successful load.
func (p *Paginator) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Paginator) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func chronological(page []chat.Message) []chat.Message {
	out := slices.Clone(page)
	slices.Reverse(out)
	return out
}
