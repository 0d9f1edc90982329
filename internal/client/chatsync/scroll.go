package chatsync

import "sync"

// Viewport is the scroll geometry of a message list.
type Viewport struct {
	ScrollTop    float64
	ScrollHeight float64
}

// Anchor remembers the geometry before older content is inserted above.
type Anchor struct {
	scrollTop    float64
	scrollHeight float64
}

func Capture(v Viewport) Anchor {
	return Anchor{scrollTop: v.ScrollTop, scrollHeight: v.ScrollHeight}
}

// Restore returns the scroll offset that keeps the previously visible
// content in place. A view pinned to the top stays there.
func (a Anchor) Restore(newScrollHeight float64) float64 {
	if a.scrollTop == 0 {
		return 0
	}
	top := a.scrollTop + (newScrollHeight - a.scrollHeight)
	if top < 0 {
		return 0
	}
	return top
}

// Preserver holds the anchor between a prepend and the next render.
type Preserver struct {
	mu      sync.Mutex
	pending *Anchor
}

func (p *Preserver) BeforePrepend(v Viewport) {
	a := Capture(v)
	p.mu.Lock()
	p.pending = &a
	p.mu.Unlock()
}

// AfterRender consumes the pending anchor. ok is false when nothing was captured.
func (p *Preserver) AfterRender(newScrollHeight float64) (top float64, ok bool) {
	p.mu.Lock()
	a := p.pending
	p.pending = nil
	p.mu.Unlock()
	if a == nil {
		return 0, false
	}
	return a.Restore(newScrollHeight), true
}

func (p *Preserver) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}
