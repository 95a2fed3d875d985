package stream

import (
	"sync"
	"testing"
	"time"
)

func TestPublisher_ConsumeReturnsLatest(t *testing.T) {
	p := NewPublisher()

	p.Publish([]byte("a"))
	p.Publish([]byte("b"))

	frame, ok := p.Consume(10 * time.Millisecond)
	if !ok {
		t.Fatal("Expected a frame")
	}
	if string(frame.Data) != "b" || frame.Seq != 2 {
		t.Errorf("Expected latest frame b/2, got %s/%d", frame.Data, frame.Seq)
	}
	if p.Dropped() != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", p.Dropped())
	}
}

func TestPublisher_ConsumeBeforeFirstPublishTimesOut(t *testing.T) {
	p := NewPublisher()

	start := time.Now()
	_, ok := p.Consume(20 * time.Millisecond)
	if ok {
		t.Error("Expected no frame before first publish")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Consume returned too early: %v", elapsed)
	}
}

func TestPublisher_TimeoutReturnsSameFrame(t *testing.T) {
	p := NewPublisher()
	p.Publish([]byte("only"))

	first, _ := p.Consume(5 * time.Millisecond)
	second, ok := p.Consume(5 * time.Millisecond)
	if !ok || second.Seq != first.Seq {
		t.Errorf("Expected the same frame again, got seq %d then %d", first.Seq, second.Seq)
	}
}

func TestPublisher_PublishWakesAllWaiters(t *testing.T) {
	p := NewPublisher()

	const waiters = 5
	results := make(chan Frame, waiters)
	var ready sync.WaitGroup
	ready.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			ready.Done()
			frame, _ := p.Consume(5 * time.Second)
			results <- frame
		}()
	}
	ready.Wait()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	p.Publish([]byte("x"))

	for i := 0; i < waiters; i++ {
		select {
		case frame := <-results:
			if string(frame.Data) != "x" {
				t.Errorf("Waiter got %q", frame.Data)
			}
		case <-time.After(time.Second):
			t.Fatal("Waiter was not woken by publish")
		}
	}
	if time.Since(start) > time.Second {
		t.Error("Waiters should wake promptly")
	}
}

func TestPublisher_CloseUnblocksConsumers(t *testing.T) {
	p := NewPublisher()
	p.Publish([]byte("a"))

	done := make(chan bool, 1)
	go func() {
		_, ok := p.Consume(5 * time.Second)
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)

	p.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Consume should report closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake consumer")
	}

	start := time.Now()
	if _, ok := p.Consume(time.Second); ok {
		t.Error("Consume after close should fail")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Consume after close should return immediately")
	}

	p.Publish([]byte("late"))
	p.Close()
	if !p.Closed() {
		t.Error("Publisher should stay closed")
	}
}
