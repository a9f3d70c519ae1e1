// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/egmlock/internal/bus"
)

// EventType is a resolved domain event tag. The zero value is unresolved.
type EventType uint32

// EventNone is the unresolved event type.
const EventNone EventType = 0

// Cabinet and note-acceptor event names registered by DefaultCatalog.
const (
	EventCashboxDoorOpened    = "door.cashbox.opened"
	EventCashboxDoorClosed    = "door.cashbox.closed"
	EventMainDoorOpened       = "door.main.opened"
	EventMainDoorClosed       = "door.main.closed"
	EventStackerRemoved       = "noteacceptor.stacker.removed"
	EventStackerInserted      = "noteacceptor.stacker.inserted"
	EventStackerFull          = "noteacceptor.stacker.full"
	EventStackerEmptied       = "noteacceptor.stacker.emptied"
	EventNoteJam              = "noteacceptor.jam"
	EventNoteJamCleared       = "noteacceptor.jam_cleared"
	EventAcceptorDisconnected = "noteacceptor.disconnected"
	EventAcceptorConnected    = "noteacceptor.connected"
	EventSelfTestFailed       = "noteacceptor.self_test.failed"
	EventSelfTestPassed       = "noteacceptor.self_test.passed"
)

// Catalog maps configuration names to event types. Names double as bus
// topics. It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]EventType
	names  []string // index i holds the name of EventType(i+1)
}

// NewCatalog returns a catalog with the given names registered.
func NewCatalog(names ...string) *Catalog {
	c := &Catalog{byName: make(map[string]EventType)}
	for _, n := range names {
		c.Register(n)
	}
	return c
}

// DefaultCatalog registers the cabinet door and note-acceptor events.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		EventCashboxDoorOpened, EventCashboxDoorClosed,
		EventMainDoorOpened, EventMainDoorClosed,
		EventStackerRemoved, EventStackerInserted,
		EventStackerFull, EventStackerEmptied,
		EventNoteJam, EventNoteJamCleared,
		EventAcceptorDisconnected, EventAcceptorConnected,
		EventSelfTestFailed, EventSelfTestPassed,
	)
}

// Register adds name and returns its type. Registering a name twice returns
// the existing type.
func (c *Catalog) Register(name string) EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.byName[name]; ok {
		return t
	}
	c.names = append(c.names, name)
	t := EventType(len(c.names))
	c.byName[name] = t
	return t
}

// Resolve looks up a registered name.
func (c *Catalog) Resolve(name string) (EventType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byName[name]
	return t, ok
}

// MustResolve is Resolve for names known to be registered.
func (c *Catalog) MustResolve(name string) EventType {
	t, ok := c.Resolve(name)
	if !ok {
		panic(fmt.Sprintf("coordinator: event %q not registered", name))
	}
	return t
}

// Known reports whether t was issued by this catalog.
func (c *Catalog) Known(t EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return t != EventNone && int(t) <= len(c.names)
}

// Name returns the registered name of t, which is also its bus topic.
func (c *Catalog) Name(t EventType) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t == EventNone || int(t) > len(c.names) {
		return fmt.Sprintf("event(%d)", uint32(t))
	}
	return c.names[t-1]
}

// Names lists every registered name in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	out := append([]string(nil), c.names...)
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// DomainEvent is the payload published on an event type's topic.
type DomainEvent struct {
	Type   EventType
	Source string
	At     time.Time
}

// Emit publishes a DomainEvent of type t on its topic.
func (c *Catalog) Emit(ctx context.Context, pub bus.Publisher, t EventType, source string) error {
	if !c.Known(t) {
		return fmt.Errorf("emit: unknown event type %d", uint32(t))
	}
	return pub.Publish(ctx, c.Name(t), DomainEvent{Type: t, Source: source, At: time.Now()})
}
