// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package events is a small synchronous publish/subscribe bus. Publishing is
// fire-and-forget: handlers return nothing and the publisher learns nothing.
package events

import (
	"sync"
	"time"
)

// Event is a published message.
type Event struct {
	Topic   string
	Payload any
	At      time.Time
}

// Handler receives events.
type Handler func(Event)

// Bus dispatches events to subscribers in subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Handler
	all       []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]Handler)}
}

// Subscribe registers h for topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[topic] = append(b.listeners[topic], h)
}

// SubscribeAll registers h for every topic. Such handlers run before the
// topic's own handlers.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers payload to the handlers of topic. A nil bus drops the
// event.
func (b *Bus) Publish(topic string, payload any) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.all)+len(b.listeners[topic]))
	handlers = append(handlers, b.all...)
	handlers = append(handlers, b.listeners[topic]...)
	b.mu.RUnlock()

	e := Event{Topic: topic, Payload: payload, At: time.Now()}
	for _, h := range handlers {
		h(e)
	}
}

// Clear removes all listeners.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string][]Handler)
	b.all = nil
}
