package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventNoteChanged   = "note-change"
	RealtimeEventActiveChanged = "active-change"
	realtimeEventHeartbeat     = "heartbeat"
	realtimeSourceBackend      = "betternotes-shell"
)

type RealtimeMessage struct {
	EventType string
	NoteIDs   []string
	ActiveID  string
	Timestamp time.Time
}

// RealtimeDispatcher fans change events out to every open event stream.
// Slow subscribers miss messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.register(subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) register(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
}

// unregister closes the stream under the write lock so Publish never sends on a closed channel.
func (d *RealtimeDispatcher) unregister(subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if subscriber, ok := d.subscribers[subscriberID]; ok {
		delete(d.subscribers, subscriberID)
		close(subscriber.stream)
	}
}
