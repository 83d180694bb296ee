package topics_test

import (
	"errors"
	"sync"
)

// recordingSink captures every line it is sent.
type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) Send(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, string(line))
	return nil
}

func (s *recordingSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

var errBrokenPipe = errors.New("broken pipe")

// failingSink rejects every write, like a connection whose peer has gone.
type failingSink struct {
	mu       sync.Mutex
	attempts int
}

func (s *failingSink) Send([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return errBrokenPipe
}

func (s *failingSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
