package detect

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// ErrEnded is returned by Stream.Next once the watcher has stopped and every
// event has been read.
var ErrEnded = errors.New("detect: event stream ended")

// ErrClosed is returned by Stream.Next after Close.
var ErrClosed = errors.New("detect: event stream closed")

// EventType tags an Event.
type EventType int

const (
	Added EventType = iota + 1
	Removed
)

func (t EventType) String() string {
	switch t {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Match is a tracked candidate. Node is its identity.
type Match struct {
	ID        string
	Entity    string
	Node      *html.Node
	Record    Record
	FirstSeen time.Time
}

// Event reports a Match entering or leaving the tracked set.
type Event struct {
	Type  EventType
	Match Match
	At    time.Time
}

// Stream is a pull view over a watcher's events. Its queue is unbounded, so
// the watcher never waits for a slow reader.
type Stream struct {
	mu     sync.Mutex
	queue  []Event
	ended  bool
	closed bool
	signal chan struct{}
	unsub  func()

	pumpOnce sync.Once
	ch       chan Event
	stopPump context.CancelFunc
}

// Stream subscribes a new Stream to the watcher.
func (w *Watcher) Stream() *Stream {
	s := &Stream{signal: make(chan struct{}, 1)}
	s.unsub = w.Subscribe(s.push, s.end)
	return s
}

func (s *Stream) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.notify()
}

func (s *Stream) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.notify()
}

func (s *Stream) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next returns the next event, waiting for one if needed. After the end
// signal it drains the queue and then returns ErrEnded.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		switch {
		case s.closed:
			s.mu.Unlock()
			return Event{}, ErrClosed
		case len(s.queue) > 0:
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		case s.ended:
			s.mu.Unlock()
			return Event{}, ErrEnded
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// All iterates over events until the stream ends, is closed, or ctx is done.
func (s *Stream) All(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// C returns a channel carrying the events. It is closed once the stream
// ends or is closed. A goroutine feeds the channel until then.
func (s *Stream) C() <-chan Event {
	s.pumpOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.ch = make(chan Event)
		s.stopPump = cancel
		s.mu.Unlock()
		go s.pump(ctx)
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *Stream) pump(ctx context.Context) {
	defer close(s.ch)
	for {
		ev, err := s.Next(ctx)
		if err != nil {
			return
		}
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Close unsubscribes and discards queued events. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	stop := s.stopPump
	s.mu.Unlock()
	if s.unsub != nil {
		s.unsub()
	}
	if stop != nil {
		stop()
	}
	s.notify()
}
