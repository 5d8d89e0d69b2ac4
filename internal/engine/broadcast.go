package engine

import "sync"

// broadcaster fans a session's ordered event stream out to any number
// of subscribers. Publishing never blocks: each subscriber owns a
// bounded queue, and when one fills up the oldest progress tick is
// evicted first. A subscriber whose queue cannot hold a result or
// terminal event without dropping one is disconnected instead; its
// channel closes without a terminal event, which tells the consumer
// to fall back to polling the session's buffer.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	mu       sync.Mutex
	queue    []ProgressEvent
	maxQueue int
	notify   chan struct{}
	out      chan ProgressEvent
	done     chan struct{}
	doneOnce sync.Once
	closed   bool
	finished bool // terminal event queued; close out after draining
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subs: make(map[*subscriber]struct{}),
	}
}

// subscribe registers a new subscriber whose queue is preloaded with
// replay events. The caller must guarantee replay/publish ordering
// (the session holds its own lock across both).
func (b *broadcaster) subscribe(replay []ProgressEvent, maxQueue int) *subscriber {
	if maxQueue < len(replay)+1 {
		maxQueue = len(replay) + 1
	}

	sub := &subscriber{
		queue:    append([]ProgressEvent(nil), replay...),
		maxQueue: maxQueue,
		notify:   make(chan struct{}, 1),
		out:      make(chan ProgressEvent),
		done:     make(chan struct{}),
	}
	for _, ev := range replay {
		if ev.terminal() {
			sub.finished = true
		}
	}

	b.mu.Lock()
	if !b.closed && !sub.finished {
		b.subs[sub] = struct{}{}
	}
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// publish appends an event to every subscriber's queue.
func (b *broadcaster) publish(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for sub := range b.subs {
		if !sub.enqueue(ev) {
			delete(b.subs, sub)
		}
	}

	if ev.terminal() {
		b.closed = true
		for sub := range b.subs {
			delete(b.subs, sub)
		}
	}
}

// unsubscribe detaches a subscriber before its stream ends.
func (b *broadcaster) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.disconnect()
}

// enqueue adds an event to the subscriber's bounded queue. Returns
// false if the subscriber had to be disconnected.
func (s *subscriber) enqueue(ev ProgressEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if len(s.queue) >= s.maxQueue {
		if !s.evictProgressLocked() {
			if ev.Type == EventProgress {
				// Queue full of results: this progress tick is the
				// one that gets dropped.
				return true
			}
			// Cannot queue a result or terminal event without losing
			// one: disconnect instead.
			s.closed = true
			s.doneOnce.Do(func() { close(s.done) })
			s.signal()
			return false
		}
	}

	s.queue = append(s.queue, ev)
	if ev.terminal() {
		s.finished = true
	}
	s.signal()
	return true
}

// evictProgressLocked removes the oldest progress event from the
// queue. Returns false if the queue holds none.
func (s *subscriber) evictProgressLocked() bool {
	for i, queued := range s.queue {
		if queued.Type == EventProgress {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (s *subscriber) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// disconnect closes the subscriber, discarding queued events.
func (s *subscriber) disconnect() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.queue = nil
		s.signal()
	}
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

// pump delivers queued events to the out channel in order and closes
// it after the terminal event, or immediately on disconnect.
func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		if s.closed && len(s.queue) == 0 {
			s.mu.Unlock()
			close(s.out)
			return
		}
		if len(s.queue) == 0 {
			if s.finished {
				s.mu.Unlock()
				close(s.out)
				return
			}
			s.mu.Unlock()
			select {
			case <-s.notify:
			case <-s.done:
			}
			continue
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			close(s.out)
			return
		}

		if ev.terminal() {
			close(s.out)
			return
		}
	}
}

// Events returns the subscriber's ordered event stream.
func (s *subscriber) Events() <-chan ProgressEvent {
	return s.out
}
