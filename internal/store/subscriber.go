package store

import "sync"

// Serial runs queued functions one at a time, in order, on its own
// goroutine. Push never blocks, so a queued callback may itself write to the
// store that is notifying it.
type Serial struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewSerial starts an empty queue.
func NewSerial() *Serial {
	s := &Serial{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// Push queues f.
func (s *Serial) Push(f func()) {
	s.mu.Lock()
	s.pending = append(s.pending, f)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop drops anything still queued. A function already running completes.
func (s *Serial) Stop() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once Stop has been called.
func (s *Serial) Done() <-chan struct{} {
	return s.done
}

func (s *Serial) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Serial) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			f := s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			s.mu.Unlock()
			if s.stopped() {
				return
			}
			f()
		}
	}
}

type subscriber struct {
	*Serial
	id    uint64
	path  string
	docID string // empty for collection subscriptions

	onDoc        func(Snapshot)
	onCollection func(map[string]Document)
}

func newSubscriber(id uint64, path, docID string) *subscriber {
	return &subscriber{Serial: NewSerial(), id: id, path: path, docID: docID}
}
