package attribution

import (
	"context"
	"fmt"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// Reasons reported with a Resolution
const (
	ReasonResolved     = "resolved"
	ReasonNoParent     = "no_parent"
	ReasonNoCandidates = "no_candidates"
	ReasonIndexError   = "index_error"
)

// Resolution is the outcome of a parent lookup
type Resolution struct {
	Entry    Entry
	Resolved bool
	Reason   string
}

// Resolver picks the span a child call attaches to
type Resolver struct {
	index  Index
	logger core.Logger
}

// NewResolver creates a resolver over index
func NewResolver(index Index, logger core.Logger) *Resolver {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/attribution")
	}
	return &Resolver{index: index, logger: logger}
}

// Index returns the underlying index
func (r *Resolver) Index() Index {
	return r.index
}

// Resolve finds the span of parentAgentID that a call in conversationID
// should nest under. An unresolved result means the call becomes a root span.
//
// The returned error is non-nil only when the index could not be read. The
// Resolution is unresolved in that case and can be used as is.
func (r *Resolver) Resolve(ctx context.Context, parentAgentID, conversationID string) (Resolution, error) {
	if parentAgentID == "" {
		return Resolution{Reason: ReasonNoParent}, nil
	}

	candidates, err := r.index.Candidates(ctx, parentAgentID)
	if err != nil {
		r.logger.Warn("Parent agent lookup failed, tracing as root", map[string]interface{}{
			"parent_agent_id": parentAgentID,
			"conversation_id": conversationID,
			"error":           err.Error(),
		})
		return Resolution{Reason: ReasonIndexError}, fmt.Errorf("parent lookup for %s: %w", parentAgentID, err)
	}

	best, ok := Select(candidates, parentAgentID, conversationID)
	if !ok {
		r.logger.Debug("Parent agent has no recorded span, tracing as root", map[string]interface{}{
			"parent_agent_id": parentAgentID,
			"conversation_id": conversationID,
		})
		return Resolution{Reason: ReasonNoCandidates}, nil
	}

	r.logger.Debug("Resolved parent agent span", map[string]interface{}{
		"parent_agent_id": parentAgentID,
		"conversation_id": conversationID,
		"trace_id":        best.TraceID,
		"span_id":         best.SpanID,
		"finished":        best.Finished,
	})
	return Resolution{Entry: best, Resolved: true, Reason: ReasonResolved}, nil
}

// Select applies the tie-break policy to a candidate list. Entries of other
// agents are ignored. Entries sharing conversationID win over the rest, then
// unfinished entries over finished ones, then the latest start time. Equal
// start times keep the entry listed first.
func Select(candidates []Entry, agentID, conversationID string) (Entry, bool) {
	pool := make([]Entry, 0, len(candidates))
	for _, c := range candidates {
		if c.AgentID == agentID {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return Entry{}, false
	}

	if conversationID != "" {
		if same := filter(pool, func(e Entry) bool { return e.ConversationID == conversationID }); len(same) > 0 {
			pool = same
		}
	}
	if open := filter(pool, func(e Entry) bool { return !e.Finished }); len(open) > 0 {
		pool = open
	}

	best := pool[0]
	for _, e := range pool[1:] {
		if e.StartedAt.After(best.StartedAt) {
			best = e
		}
	}
	return best, true
}

func filter(entries []Entry, keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
