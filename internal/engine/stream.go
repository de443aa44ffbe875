package engine

import (
	"sync"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// StreamKind discriminates StreamEvent variants.
type StreamKind int

const (
	StreamToken StreamKind = iota
	StreamDone
	StreamError
)

func (k StreamKind) String() string {
	switch k {
	case StreamToken:
		return "token"
	case StreamDone:
		return "done"
	case StreamError:
		return "error"
	}
	return "unknown"
}

// StreamEvent is one item of a task stream. Token events carry Token; the
// single terminal event is either Done with Result or Error with Err.
type StreamEvent struct {
	Kind   StreamKind
	Token  string
	Result *models.TaskResult
	Err    error
}

// Terminal reports whether the event ends the stream.
func (ev StreamEvent) Terminal() bool { return ev.Kind != StreamToken }

// stream queues events for one consumer. Producers never block; a pump
// goroutine forwards events in order and closes the channel after the
// terminal one. Once gone is closed the consumer is treated as absent and
// the pump stops waiting on it.
type stream struct {
	out  chan StreamEvent
	gone <-chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []StreamEvent
	closed bool
}

func newStream(gone <-chan struct{}) *stream {
	s := &stream{out: make(chan StreamEvent, 1), gone: gone}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// push enqueues ev. Events after the terminal one are dropped. With
// discardPending set, tokens not yet delivered are dropped first.
func (s *stream) push(ev StreamEvent, discardPending bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if discardPending {
		s.queue = s.queue[:0]
	}
	s.queue = append(s.queue, ev)
	if ev.Terminal() {
		s.closed = true
	}
	s.cond.Signal()
	return true
}

func (s *stream) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			s.cond.Wait()
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.gone:
			s.abandon(ev)
			return
		}
		if ev.Terminal() {
			return
		}
	}
}

// abandon drops undelivered tokens and leaves only the terminal event in
// the buffer. The pump is the only sender, so the final send cannot block.
func (s *stream) abandon(ev StreamEvent) {
	if !ev.Terminal() {
		s.mu.Lock()
		for !s.closed {
			s.cond.Wait()
		}
		ev = s.queue[len(s.queue)-1]
		s.queue = nil
		s.mu.Unlock()
	}
	select {
	case <-s.out:
	default:
	}
	s.out <- ev
}
