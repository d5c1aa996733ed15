package service_test

import (
	"sync"

	"github.com/courier-chat/courier/internal/service"
)

// fakePeer records every frame sent to it.
type fakePeer struct {
	mu          sync.Mutex
	name        string
	frames      []any
	closed      bool
	closeReason string
}

var _ service.Peer = (*fakePeer)(nil)

func newFakePeer(name string) *fakePeer {
	return &fakePeer{name: name}
}

func (p *fakePeer) Send(frame any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
}

func (p *fakePeer) Close(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeReason = reason
}

func (p *fakePeer) sent() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]any, len(p.frames))
	copy(out, p.frames)
	return out
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// framesOf filters a peer's received frames down to one type.
func framesOf[T any](p *fakePeer) []T {
	var out []T
	for _, f := range p.sent() {
		if v, ok := f.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
