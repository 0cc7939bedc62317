// Package attribution tracks the spans agents open so a later call can be
// nested under the call of the agent it names as its parent.
//
// Every traced generation call is recorded in an Index when its span starts
// and marked finished when the span ends. A Resolver answers the question
// "which span of agent X should a child attach to" using a fixed policy:
//
//   - only entries of the named parent agent are candidates
//   - entries sharing the child's conversation are preferred over the rest
//   - an unfinished entry is preferred over a finished one
//   - among the remaining entries the most recently started wins
//
// When nothing matches, the child is traced as a root span. Lookups never fail
// the generation call.
//
// Two Index implementations are provided: MemoryIndex for a single process and
// RedisIndex for agents of one conversation running in several processes.
package attribution

import (
	"context"
	"time"
)

// Entry is one recorded agent span
type Entry struct {
	AgentID        string    `json:"agent_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	TraceID        string    `json:"trace_id"`
	SpanID         string    `json:"span_id"`
	Sampled        bool      `json:"sampled"`
	StartedAt      time.Time `json:"started_at"`
	Finished       bool      `json:"finished"`
}

// Index stores agent spans for parent lookup. Implementations must be safe
// for concurrent use.
type Index interface {
	// Observe records a span that has just started
	Observe(ctx context.Context, entry Entry) error

	// Finish marks the span of agentID with the given span id as ended.
	// Unknown spans are ignored.
	Finish(ctx context.Context, agentID, spanID string) error

	// Candidates returns every recorded span of agentID, in no particular order
	Candidates(ctx context.Context, agentID string) ([]Entry, error)
}
