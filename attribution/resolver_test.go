package attribution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingIndex struct{ err error }

func (f failingIndex) Observe(context.Context, Entry) error { return f.err }
func (f failingIndex) Finish(context.Context, string, string) error {
	return f.err
}
func (f failingIndex) Candidates(context.Context, string) ([]Entry, error) {
	return nil, f.err
}

func TestSelect(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

	tests := []struct {
		name         string
		candidates   []Entry
		agentID      string
		conversation string
		wantSpan     string
		wantOK       bool
	}{
		{
			name:    "no candidates",
			agentID: "planner",
		},
		{
			name:       "other agents are ignored",
			candidates: []Entry{{AgentID: "executor", SpanID: "a", StartedAt: at(1)}},
			agentID:    "planner",
		},
		{
			name: "latest start wins",
			candidates: []Entry{
				{AgentID: "planner", SpanID: "a", StartedAt: at(1)},
				{AgentID: "planner", SpanID: "b", StartedAt: at(3)},
				{AgentID: "planner", SpanID: "c", StartedAt: at(2)},
			},
			agentID:  "planner",
			wantSpan: "b",
			wantOK:   true,
		},
		{
			name: "unfinished beats later finished",
			candidates: []Entry{
				{AgentID: "planner", SpanID: "open", StartedAt: at(1)},
				{AgentID: "planner", SpanID: "done", StartedAt: at(5), Finished: true},
			},
			agentID:  "planner",
			wantSpan: "open",
			wantOK:   true,
		},
		{
			name: "finished entries used when nothing is open",
			candidates: []Entry{
				{AgentID: "planner", SpanID: "old", StartedAt: at(1), Finished: true},
				{AgentID: "planner", SpanID: "new", StartedAt: at(2), Finished: true},
			},
			agentID:  "planner",
			wantSpan: "new",
			wantOK:   true,
		},
		{
			name: "same conversation beats newer span elsewhere",
			candidates: []Entry{
				{AgentID: "planner", SpanID: "mine", ConversationID: "c1", StartedAt: at(1), Finished: true},
				{AgentID: "planner", SpanID: "other", ConversationID: "c2", StartedAt: at(9)},
			},
			agentID:      "planner",
			conversation: "c1",
			wantSpan:     "mine",
			wantOK:       true,
		},
		{
			name: "falls back to any conversation",
			candidates: []Entry{
				{AgentID: "planner", SpanID: "x", ConversationID: "c2", StartedAt: at(1)},
				{AgentID: "planner", SpanID: "y", ConversationID: "c3", StartedAt: at(2)},
			},
			agentID:      "planner",
			conversation: "c1",
			wantSpan:     "y",
			wantOK:       true,
		},
		{
			name: "empty conversation considers every entry",
			candidates: []Entry{
				{AgentID: "planner", SpanID: "x", ConversationID: "c2", StartedAt: at(4)},
				{AgentID: "planner", SpanID: "y", StartedAt: at(2)},
			},
			agentID:  "planner",
			wantSpan: "x",
			wantOK:   true,
		},
		{
			name: "equal start keeps first listed",
			candidates: []Entry{
				{AgentID: "planner", SpanID: "first", StartedAt: at(1)},
				{AgentID: "planner", SpanID: "second", StartedAt: at(1)},
			},
			agentID:  "planner",
			wantSpan: "first",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Select(tt.candidates, tt.agentID, tt.conversation)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantSpan, got.SpanID)
		})
	}
}

func TestResolver_EmptyParentSkipsLookup(t *testing.T) {
	r := NewResolver(failingIndex{err: errors.New("must not be called")}, nil)

	res, err := r.Resolve(context.Background(), "", "c1")
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, ReasonNoParent, res.Reason)
}

func TestResolver_UnknownParentIsRoot(t *testing.T) {
	r := NewResolver(NewMemoryIndex(), nil)

	res, err := r.Resolve(context.Background(), "ghost-agent", "")
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, ReasonNoCandidates, res.Reason)
}

func TestResolver_IndexErrorDegrades(t *testing.T) {
	boom := errors.New("redis down")
	r := NewResolver(failingIndex{err: boom}, nil)

	res, err := r.Resolve(context.Background(), "planner", "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Resolved)
	assert.Equal(t, ReasonIndexError, res.Reason)
}

func TestResolver_ResolvesRecordedSpan(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Observe(ctx, Entry{
		AgentID: "planning-agent", ConversationID: "conv", TraceID: "t1", SpanID: "s1", StartedAt: time.Now(),
	}))

	r := NewResolver(idx, nil)
	res, err := r.Resolve(ctx, "planning-agent", "conv")
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, "t1", res.Entry.TraceID)
	assert.Equal(t, "s1", res.Entry.SpanID)
	assert.Equal(t, ReasonResolved, res.Reason)
	assert.Same(t, idx, r.Index())
}

// A child call issued after its parent finished still attaches to it
func TestResolver_ParentFinishedBeforeChild(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Observe(ctx, Entry{AgentID: "planner", TraceID: "t1", SpanID: "s1", StartedAt: time.Now()}))
	require.NoError(t, idx.Finish(ctx, "planner", "s1"))

	res, err := NewResolver(idx, nil).Resolve(ctx, "planner", "")
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.True(t, res.Entry.Finished)
}
