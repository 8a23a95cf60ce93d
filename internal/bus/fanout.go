// Package bus fans emitted signals out to independent sinks.
package bus

import (
	"context"
	"log"
	"sync"

	"signal-systemv1/internal/model"
)

// FanOut broadcasts signals from one input channel to named subscribers.
// A full subscriber channel drops the signal for that subscriber only, so a
// slow sink never stalls detection.
type FanOut struct {
	mu      sync.RWMutex
	outputs []subscriber
	bufSize int

	// OnDrop is called with the subscriber name when a signal is dropped.
	OnDrop func(name string)
}

type subscriber struct {
	name string
	ch   chan model.SignalEvent
}

// New creates a FanOut whose subscriber channels hold bufSize signals.
func New(bufSize int) *FanOut {
	return &FanOut{bufSize: bufSize}
}

// Subscribe registers a subscriber. Call it before Run.
func (f *FanOut) Subscribe(name string) <-chan model.SignalEvent {
	ch := make(chan model.SignalEvent, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, subscriber{name: name, ch: ch})
	f.mu.Unlock()
	return ch
}

// Run forwards input to every subscriber until ctx is cancelled or input
// is closed, then closes the subscriber channels.
func (f *FanOut) Run(ctx context.Context, input <-chan model.SignalEvent) {
	defer func() {
		f.mu.RLock()
		for _, s := range f.outputs {
			close(s.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-input:
			if !ok {
				return
			}
			f.publish(ev)
		}
	}
}

func (f *FanOut) publish(ev model.SignalEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.outputs {
		select {
		case s.ch <- ev:
		default:
			if f.OnDrop != nil {
				f.OnDrop(s.name)
			} else {
				log.Printf("[bus] subscriber %s full, dropping signal %s", s.name, ev.ID)
			}
		}
	}
}

// Drain runs sink for every signal on ch until ch closes. Sink errors are
// logged and do not stop the loop.
func Drain(ctx context.Context, name string, ch <-chan model.SignalEvent, sink model.SignalSink) {
	for ev := range ch {
		if err := sink.PublishSignal(ctx, ev); err != nil {
			log.Printf("[bus] %s: %v", name, err)
		}
	}
}

// ChannelStat reports a subscriber's queue depth.
type ChannelStat struct {
	Name string `json:"name"`
	Len  int    `json:"len"`
	Cap  int    `json:"cap"`
}

// ChannelStats returns every subscriber's queue depth in subscription order.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, s := range f.outputs {
		stats[i] = ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
