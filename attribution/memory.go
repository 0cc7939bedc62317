package attribution

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntriesPerAgent bounds how many spans are kept per agent
const DefaultMaxEntriesPerAgent = 256

// MemoryIndex is an in-process Index. The oldest entries of an agent are
// evicted once it exceeds its limit. Entries older than the TTL are hidden
// from lookups and pruned on later writes; agents left empty are forgotten.
type MemoryIndex struct {
	mu         sync.RWMutex
	entries    map[string][]Entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	lastSweep  time.Time
}

// MemoryOption configures a MemoryIndex
type MemoryOption func(*MemoryIndex)

// WithMaxEntries sets the per-agent entry limit
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryIndex) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithTTL drops entries that started longer than ttl ago. Zero keeps them forever.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryIndex) { m.ttl = ttl }
}

// NewMemoryIndex creates an empty in-process index
func NewMemoryIndex(opts ...MemoryOption) *MemoryIndex {
	m := &MemoryIndex{
		entries:    make(map[string][]Entry),
		maxEntries: DefaultMaxEntriesPerAgent,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe records a span for its agent. With a TTL set it also prunes the
// agent's expired entries, and at most once per TTL sweeps every other agent.
func (m *MemoryIndex) Observe(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.entries[entry.AgentID], entry)
	if len(list) > m.maxEntries {
		list = append([]Entry(nil), list[len(list)-m.maxEntries:]...)
	}
	m.entries[entry.AgentID] = list

	if m.ttl > 0 {
		now := m.now()
		cutoff := now.Add(-m.ttl)
		m.prune(entry.AgentID, cutoff)
		if now.Sub(m.lastSweep) >= m.ttl {
			for agentID := range m.entries {
				m.prune(agentID, cutoff)
			}
			m.lastSweep = now
		}
	}
	return nil
}

// prune drops entries that started before cutoff and deletes the agent once
// nothing is left. Callers hold the write lock.
func (m *MemoryIndex) prune(agentID string, cutoff time.Time) {
	list := m.entries[agentID]
	kept := list[:0]
	for _, e := range list {
		if !e.StartedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(m.entries, agentID)
		return
	}
	m.entries[agentID] = kept
}

// Finish marks a span as ended. Unknown agents and spans are ignored.
func (m *MemoryIndex) Finish(ctx context.Context, agentID, spanID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.entries[agentID]
	for i := range list {
		if list[i].SpanID == spanID {
			list[i].Finished = true
			return nil
		}
	}
	return nil
}

// Candidates returns copies of the agent's entries that are still within
// the TTL, in the order they were observed.
func (m *MemoryIndex) Candidates(ctx context.Context, agentID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[agentID]
	out := make([]Entry, 0, len(list))
	cutoff := time.Time{}
	if m.ttl > 0 {
		cutoff = m.now().Add(-m.ttl)
	}
	for _, e := range list {
		if !cutoff.IsZero() && e.StartedAt.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns the number of entries recorded for agentID
func (m *MemoryIndex) Len(agentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[agentID])
}

// Reset forgets every recorded span
func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	m.entries = make(map[string][]Entry)
	m.mu.Unlock()
}
