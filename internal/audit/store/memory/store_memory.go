package memory

import (
	"context"
	"sync"

	"medgate/internal/audit"
)

// InMemoryStore groups entries by channel. The all-records channel is
// populated on every append, so reading it back yields the run in order.
type InMemoryStore struct {
	mu       sync.RWMutex
	channels map[string][]audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{channels: make(map[string][]audit.Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[e.Channel()] = append(s.channels[e.Channel()], e)
	s.channels[audit.ChannelAll] = append(s.channels[audit.ChannelAll], e)
	return nil
}

// ByChannel returns a copy of one channel's entries.
func (s *InMemoryStore) ByChannel(channel string) []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.channels[channel]...)
}

// Channels lists the channels that received at least one entry.
func (s *InMemoryStore) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	return out
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string][]audit.Entry)
}
