package stream

import (
	"sync"
	"time"
)

// Frame is an encoded image held by a Publisher. Seq increases by one on every
// publish so consumers can tell a repeated frame from a fresh one.
type Frame struct {
	Data []byte
	Seq  uint64
}

// Publisher is a single-slot mailbox. Publish overwrites the slot and wakes
// every waiting consumer; frames nobody read in time are simply replaced.
type Publisher struct {
	mu      sync.Mutex
	current Frame
	signal  chan struct{} // closed and replaced on every publish
	closed  bool
	dropped uint64
	lastRd  uint64
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{signal: make(chan struct{})}
}

// Publish stores data as the latest frame. It is a no-op after Close.
func (p *Publisher) Publish(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if p.current.Seq > p.lastRd {
		p.dropped++
	}
	p.current = Frame{Data: data, Seq: p.current.Seq + 1}
	close(p.signal)
	p.signal = make(chan struct{})
}

// Consume waits up to timeout for a publish newer than the call, then returns
// the latest frame, which may be one the caller has already seen. ok is false
// once the publisher is closed or while nothing has been published yet.
func (p *Publisher) Consume(timeout time.Duration) (Frame, bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Frame{}, false
	}
	wait := p.signal
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	select {
	case <-wait:
	case <-timer.C:
	}
	timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.current.Seq == 0 {
		return Frame{}, false
	}
	if p.current.Seq > p.lastRd {
		p.lastRd = p.current.Seq
	}
	return p.current, true
}

// Latest returns the current frame without waiting.
func (p *Publisher) Latest() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.current.Seq == 0 {
		return Frame{}, false
	}
	return p.current, true
}

// Close wakes all waiting consumers. Later consumes return immediately.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.signal)
	p.current = Frame{}
}

// Closed reports whether Close was called.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Dropped returns how many frames were overwritten before any consumer read them.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
