// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus is the in-process publish/subscribe transport shared by the
// arbitration service, the coordinators and the audit recorder.
package bus

import "context"

// Message is an opaque, strongly typed event payload.
type Message interface{}

// Envelope is a delivered message together with the topic it was published on.
type Envelope struct {
	Topic   string
	Payload Message
}

// Subscriber is one subscription covering one or more topics.
type Subscriber interface {
	// C returns a read-only delivery channel. Deliveries for all subscribed
	// topics arrive on this channel in publish order.
	C() <-chan Envelope
	// Close unsubscribes and closes the delivery channel.
	Close() error
}

// Publisher is the narrow publishing side of a Bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// Bus is the event transport abstraction.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, topics ...string) (Subscriber, error)
}
