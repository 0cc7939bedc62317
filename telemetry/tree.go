package telemetry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TreeNode is one span placed in its trace tree
type TreeNode struct {
	Name         string
	TraceID      string
	SpanID       string
	ParentSpanID string
	Start        time.Time
	End          time.Time
	Attributes   map[string]string
	Failed       bool
	Status       string

	// Orphan is set on a root whose parent span was not exported with it,
	// typically because the parent belongs to another process or batch
	Orphan   bool
	Children []*TreeNode
}

// Attr returns the attribute stored under key
func (n *TreeNode) Attr(key attribute.Key) string {
	return n.Attributes[string(key)]
}

// Walk visits n and its descendants depth first
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int)) {
	n.walk(fn, 0)
}

func (n *TreeNode) walk(fn func(*TreeNode, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// TreeExporter buffers finished spans and prints them as indented trees.
// Spans arrive in end order, children before parents, so nothing is printed
// until Flush or Shutdown. A span whose parent never arrived is printed as a
// root of its own.
type TreeExporter struct {
	mu      sync.Mutex
	w       io.Writer
	pending []*TreeNode
	stopped bool
}

// NewTreeExporter creates an exporter printing to w
func NewTreeExporter(w io.Writer) *TreeExporter {
	return &TreeExporter{w: w}
}

func (e *TreeExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	for _, s := range spans {
		e.pending = append(e.pending, snapshot(s))
	}
	return nil
}

func snapshot(s sdktrace.ReadOnlySpan) *TreeNode {
	n := &TreeNode{
		Name:       s.Name(),
		TraceID:    s.SpanContext().TraceID().String(),
		SpanID:     s.SpanContext().SpanID().String(),
		Start:      s.StartTime(),
		End:        s.EndTime(),
		Attributes: make(map[string]string, len(s.Attributes())),
		Failed:     s.Status().Code == codes.Error,
		Status:     s.Status().Description,
	}
	if p := s.Parent(); p.IsValid() {
		n.ParentSpanID = p.SpanID().String()
	}
	for _, kv := range s.Attributes() {
		n.Attributes[string(kv.Key)] = kv.Value.Emit()
	}
	return n
}

// Trees returns the buffered spans arranged into trees, oldest root first.
// The buffer is left untouched.
func (e *TreeExporter) Trees() []*TreeNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return buildTrees(e.pending)
}

// Flush prints every buffered span and empties the buffer
func (e *TreeExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *TreeExporter) flushLocked() error {
	if len(e.pending) == 0 {
		return nil
	}
	roots := buildTrees(e.pending)
	e.pending = nil
	return RenderTrees(e.w, roots)
}

// Shutdown prints what is left, orphans included, and stops accepting spans
func (e *TreeExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true
	return e.flushLocked()
}

// buildTrees links copies of spans into trees. Input nodes are not modified.
func buildTrees(spans []*TreeNode) []*TreeNode {
	byID := make(map[string]*TreeNode, len(spans))
	ordered := make([]*TreeNode, 0, len(spans))
	for _, s := range spans {
		n := *s
		n.Children = nil
		n.Orphan = false
		byID[n.TraceID+"/"+n.SpanID] = &n
		ordered = append(ordered, &n)
	}

	var roots []*TreeNode
	for _, n := range ordered {
		if n.ParentSpanID == "" {
			roots = append(roots, n)
			continue
		}
		parent, ok := byID[n.TraceID+"/"+n.ParentSpanID]
		if !ok {
			n.Orphan = true
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	byStart := func(nodes []*TreeNode) {
		sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Start.Before(nodes[j].Start) })
	}
	byStart(roots)
	for _, n := range ordered {
		byStart(n.Children)
	}
	return roots
}

// tree line attributes, in print order
var treeLabels = []struct {
	key   attribute.Key
	label string
}{
	{AttrAgentID, "agent"},
	{AttrParentAgentID, "parent"},
	{AttrParentResolved, "parent_resolved"},
	{AttrUserID, "user"},
	{AttrConversationID, "conversation"},
	{AttrTags, "tags"},
	{AttrModel, "model"},
	{AttrTotalTokens, "tokens"},
	{AttrToolErrorCode, "error_code"},
}

// RenderTrees writes roots as indented trees
func RenderTrees(w io.Writer, roots []*TreeNode) error {
	var b strings.Builder
	for _, root := range roots {
		fmt.Fprintf(&b, "trace %s", root.TraceID)
		if root.Orphan {
			fmt.Fprintf(&b, " (parent span %s not in this batch)", root.ParentSpanID)
		}
		b.WriteString("\n")
		renderNode(&b, root, "", true)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderNode(b *strings.Builder, n *TreeNode, prefix string, last bool) {
	branch, indent := "├─ ", "│  "
	if last {
		branch, indent = "└─ ", "   "
	}

	b.WriteString(prefix + branch + n.Name)
	if kind := n.Attr(AttrObservationType); kind != "" {
		fmt.Fprintf(b, " [%s]", kind)
	}
	for _, l := range treeLabels {
		if v, ok := n.Attributes[string(l.key)]; ok && v != "" {
			fmt.Fprintf(b, " %s=%s", l.label, v)
		}
	}
	if !n.End.IsZero() {
		fmt.Fprintf(b, " (%s)", n.End.Sub(n.Start).Round(time.Millisecond))
	}
	if n.Failed {
		fmt.Fprintf(b, " ERROR: %s", n.Status)
	}
	b.WriteString("\n")

	for i, c := range n.Children {
		renderNode(b, c, prefix+indent, i == len(n.Children)-1)
	}
}
