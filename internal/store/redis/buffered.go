package redis

import (
	"context"
	"log"
	"sync"

	"signal-systemv1/internal/model"
)

// SignalPublisher is the part of Writer a BufferedPublisher needs.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, ev model.SignalEvent) error
}

// BufferedPublisher sends signals through a circuit breaker. While the
// breaker is open, signals are queued in memory and replayed in order when
// it closes. It implements model.SignalSink.
type BufferedPublisher struct {
	pub SignalPublisher
	cb  *CircuitBreaker
	ctx context.Context

	mu     sync.Mutex
	buffer []model.SignalEvent
	maxBuf int

	OnBuffer func()          // a signal was queued
	OnDrop   func()          // the queue was full and the oldest signal was dropped
	OnFlush  func(count int) // queued signals were replayed
}

// NewBufferedPublisher wraps pub. maxBufferSize <= 0 selects 10000.
func NewBufferedPublisher(ctx context.Context, pub SignalPublisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		pub:    pub,
		cb:     cb,
		ctx:    ctx,
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.Flush()
		}
	}
	return bp
}

// PublishSignal publishes ev or queues it when the breaker is open.
// A failed publish that did not open the breaker is returned to the caller.
func (bp *BufferedPublisher) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	err := bp.cb.Execute(func() error { return bp.pub.PublishSignal(ctx, ev) })
	if err == nil {
		return nil
	}
	if err == ErrCircuitOpen || bp.cb.CurrentState() == StateOpen {
		bp.enqueue(ev)
		return nil
	}
	return err
}

func (bp *BufferedPublisher) enqueue(ev model.SignalEvent) {
	bp.mu.Lock()
	dropped := false
	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
		dropped = true
	}
	bp.buffer = append(bp.buffer, ev)
	bp.mu.Unlock()

	if dropped {
		log.Printf("[buffered-publisher] queue full, dropped oldest signal")
		if bp.OnDrop != nil {
			bp.OnDrop()
		}
	}
	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays queued signals. Signals that fail again are requeued
// ahead of anything queued meanwhile.
func (bp *BufferedPublisher) Flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	pending := bp.buffer
	bp.buffer = nil
	bp.mu.Unlock()

	flushed := 0
	for i, ev := range pending {
		if err := bp.pub.PublishSignal(bp.ctx, ev); err != nil {
			log.Printf("[buffered-publisher] flush stopped after %d: %v", flushed, err)
			bp.mu.Lock()
			bp.buffer = append(append([]model.SignalEvent(nil), pending[i:]...), bp.buffer...)
			if over := len(bp.buffer) - bp.maxBuf; over > 0 {
				bp.buffer = bp.buffer[over:]
			}
			bp.mu.Unlock()
			break
		}
		flushed++
	}

	if flushed > 0 {
		log.Printf("[buffered-publisher] flushed %d buffered signals", flushed)
	}
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of queued signals.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}
