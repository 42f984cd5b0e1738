package voting

import (
	"sync"

	"sketchvote/core"
)

// ChannelFeed adapts a plain channel of game records to the Feed interface.
// The realtime layer (or a test) pushes full-record replacements into it;
// closing it signals connection loss to the client.
type ChannelFeed struct {
	mu     sync.Mutex
	ch     chan core.Game
	closed bool
}

func NewChannelFeed(buffer int) *ChannelFeed {
	return &ChannelFeed{ch: make(chan core.Game, buffer)}
}

func (f *ChannelFeed) Updates() <-chan core.Game {
	return f.ch
}

// Push delivers a record, dropping it if the feed is already closed.
func (f *ChannelFeed) Push(game core.Game) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.ch <- game
}

// Close marks the feed disconnected.
func (f *ChannelFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}
