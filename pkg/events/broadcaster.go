// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"sync"

	"github.com/raiku/slotmarket/pkg/log"
)

// Broadcaster fans events out to subscribers over bounded, per-subscriber
// buffered channels. A subscriber too slow to keep up has its oldest
// buffered event dropped rather than stalling the publisher.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
	log         log.Logger
}

// NewBroadcaster creates a Broadcaster whose subscriber channels have the
// given buffer capacity.
func NewBroadcaster(bufferSize int, logger log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.NoOp()
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Broadcaster{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
		log:         logger,
	}
}

// Subscribe registers a new subscriber and returns its channel plus a
// handle to unsubscribe later.
func (b *Broadcaster) Subscribe() (<-chan Event, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch
	return ch, id
}

// Unsubscribe removes and closes the subscriber channel for id.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Publish fans event out to every current subscriber. A subscriber whose
// buffer is full has its oldest event dropped to make room — publishers
// are never blocked by a slow reader.
func (b *Broadcaster) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
				b.log.Warn("dropping event for slow subscriber", "subscriber", id, "event", string(event.Kind))
			}
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
