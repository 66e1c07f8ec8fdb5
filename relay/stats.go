package relay

import (
	"sync/atomic"
	"time"
)

// Stats tracks per-session counters. Messages is incremented by the text
// producer only and read once at teardown for the summary.
type Stats struct {
	StartedAt time.Time
	messages  atomic.Int64
}

func NewStats() *Stats {
	return &Stats{StartedAt: time.Now()}
}

func (s *Stats) AddMessage() {
	s.messages.Add(1)
}

func (s *Stats) Messages() int64 {
	return s.messages.Load()
}

// Summary is the final report rendered on every exit path.
type Summary struct {
	Duration time.Duration
	Messages int64
}

func (s *Stats) Summary() Summary {
	return Summary{
		Duration: time.Since(s.StartedAt),
		Messages: s.Messages(),
	}
}
