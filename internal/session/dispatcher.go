package session

import (
	"context"
	"sync"
)

// Dispatcher fans controller snapshots out to attached presentation surfaces.
// Surfaces observe the same controller state through it and never hold a
// private copy of session progress.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*snapshotSubscriber
	nextID      int64
	bufferSize  int
}

type snapshotSubscriber struct {
	id     int64
	stream chan Snapshot
}

// NewDispatcher constructs an empty snapshot dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[int64]*snapshotSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a surface and returns its snapshot stream together with
// a cancel function. The stream is also released when ctx is done. Slow
// consumers drop intermediate snapshots rather than blocking the controller.
func (d *Dispatcher) Subscribe(ctx context.Context) (<-chan Snapshot, func()) {
	subscriber := &snapshotSubscriber{
		id:     d.nextSequence(),
		stream: make(chan Snapshot, d.bufferSize),
	}
	d.register(subscriber)
	cleanup := func() {
		d.unregister(subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers a snapshot to every subscriber without blocking.
func (d *Dispatcher) Publish(snapshot Snapshot) {
	d.mu.RLock()
	copies := make([]*snapshotSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- snapshot:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(subscriber *snapshotSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *Dispatcher) unregister(subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, subscriberID)
}
