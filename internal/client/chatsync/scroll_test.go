package chatsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnchorRestore(t *testing.T) {
	tests := []struct {
		name      string
		before    Viewport
		newHeight float64
		want      float64
	}{
		{name: "keeps visible content", before: Viewport{ScrollTop: 500, ScrollHeight: 2000}, newHeight: 2300, want: 800},
		{name: "pinned to top", before: Viewport{ScrollTop: 0, ScrollHeight: 2000}, newHeight: 2300, want: 0},
		{name: "no growth", before: Viewport{ScrollTop: 120, ScrollHeight: 900}, newHeight: 900, want: 120},
		{name: "shrunk below zero", before: Viewport{ScrollTop: 10, ScrollHeight: 900}, newHeight: 100, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Capture(tt.before).Restore(tt.newHeight))
		})
	}
}

func TestPreserverConsumesAnchorOnce(t *testing.T) {
	var p Preserver
	_, ok := p.AfterRender(1000)
	assert.False(t, ok)

	p.BeforePrepend(Viewport{ScrollTop: 500, ScrollHeight: 2000})
	assert.True(t, p.Pending())

	top, ok := p.AfterRender(2300)
	assert.True(t, ok)
	assert.Equal(t, 800.0, top)

	_, ok = p.AfterRender(2600)
	assert.False(t, ok)
}
