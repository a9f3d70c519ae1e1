// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/egmlock/internal/log"
	"github.com/ManuGH/egmlock/internal/metrics"
	"golang.org/x/time/rate"
)

// DefaultBufferSize is the per-subscription channel capacity.
const DefaultBufferSize = 64

var ErrNoTopics = errors.New("subscribe requires at least one topic")

// MemoryBus is an in-memory pub/sub. It is not durable; Publish blocks while
// a subscriber buffer is full and gives up when the publish context is done.
type MemoryBus struct {
	mu         sync.RWMutex
	subs       map[string][]*memSub
	bufferSize int
	dropLog    rate.Sometimes
}

// Option configures a MemoryBus.
type Option func(*MemoryBus)

// WithBufferSize overrides the per-subscription buffer size.
func WithBufferSize(n int) Option {
	return func(b *MemoryBus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus(opts ...Option) *MemoryBus {
	b := &MemoryBus{
		subs:       make(map[string][]*memSub),
		bufferSize: DefaultBufferSize,
		dropLog:    rate.Sometimes{First: 1, Every: 100},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// Publish delivers msg to every subscriber of topic. A subscriber whose
// buffer stays full until ctx is done misses the message; the others still
// receive it and the failures are joined into the returned error.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	env := Envelope{Topic: topic, Payload: msg}
	var errs []error
	for _, s := range subs {
		if err := s.deliver(ctx, env); err != nil {
			reason := publishDropReason(err)
			metrics.IncBusDropReason(topic, reason)
			b.dropLog.Do(func() {
				l := log.WithComponent("bus")
				l.Warn().
					Str(log.FieldEvent, "bus.publish_dropped").
					Str(log.FieldTopic, topic).
					Str(log.FieldReason, reason).
					Int("subscribers", len(subs)).
					Msg("subscriber buffer full until publish context ended")
			})
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish topic %q: %d of %d subscribers missed it: %w",
			topic, len(errs), len(subs), errors.Join(errs...))
	}
	if len(subs) > 0 {
		metrics.IncBusPublished(topic)
	}
	return nil
}

// Subscribe registers one delivery channel for all given topics. When ctx is
// cancellable the subscription closes itself once ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, topics ...string) (Subscriber, error) {
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	s := &memSub{
		b:    b,
		ch:   make(chan Envelope, b.bufferSize),
		done: make(chan struct{}),
	}
	seen := make(map[string]struct{}, len(topics))
	b.mu.Lock()
	for _, t := range topics {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		s.topics = append(s.topics, t)
		b.subs[t] = append(b.subs[t], s)
	}
	b.mu.Unlock()

	if ctx != nil {
		if ctxDone := ctx.Done(); ctxDone != nil {
			go func() {
				select {
				case <-ctxDone:
					_ = s.Close()
				case <-s.done:
				}
			}()
		}
	}
	return s, nil
}

// SubscriberCount reports how many subscriptions currently cover topic.
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

type memSub struct {
	b      *MemoryBus
	topics []string
	ch     chan Envelope

	mu        sync.RWMutex // guards ch against close during delivery
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func (s *memSub) deliver(ctx context.Context, env Envelope) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	// A free slot wins over an already expired context.
	select {
	case s.ch <- env:
		return nil
	default:
	}
	select {
	case s.ch <- env:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memSub) C() <-chan Envelope {
	return s.ch
}

func (s *memSub) Close() error {
	s.closeOnce.Do(func() {
		s.b.mu.Lock()
		for _, t := range s.topics {
			lst := s.b.subs[t]
			out := lst[:0]
			for _, c := range lst {
				if c != s {
					out = append(out, c)
				}
			}
			if len(out) == 0 {
				delete(s.b.subs, t)
			} else {
				s.b.subs[t] = out
			}
		}
		s.b.mu.Unlock()

		close(s.done) // releases publishers blocked on a full buffer
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

// Ensure compliance
var _ Bus = (*MemoryBus)(nil)
