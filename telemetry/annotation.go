package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// DefaultAgentID is the agent every traced call without an explicit agent id
// is attributed to. All such calls share it and therefore group together.
const DefaultAgentID = "default-agent"

// Metadata describes who made a generation call and how it relates to other
// calls. Every field is optional and passed through unchanged.
type Metadata struct {
	AgentID        string   `json:"agentId,omitempty"`
	ParentAgentID  string   `json:"parentAgentId,omitempty"`
	UserID         string   `json:"userId,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Instructions   string   `json:"instructions,omitempty"`
}

// Clone returns a deep copy
func (m Metadata) Clone() Metadata {
	if m.Tags != nil {
		tags := make([]string, len(m.Tags))
		copy(tags, m.Tags)
		m.Tags = tags
	}
	return m
}

// Annotation is attached to a single generation call. It is built right
// before the call and is not kept afterwards.
//
// The zero value is a disabled annotation: the call is not traced.
type Annotation struct {
	Enabled  bool
	Metadata *Metadata
}

// MetadataOption sets one metadata field on an annotation under construction
type MetadataOption func(*Metadata)

// NewAnnotation builds an annotation. Without options the metadata stays
// absent, which still yields a trace attributed to DefaultAgentID when enabled.
//
//	ann := telemetry.NewAnnotation(true,
//	    telemetry.WithAgentID("weather-assistant"),
//	    telemetry.WithTags("weather", "demo"),
//	)
func NewAnnotation(enabled bool, opts ...MetadataOption) Annotation {
	ann := Annotation{Enabled: enabled}
	if len(opts) == 0 {
		return ann
	}
	md := &Metadata{}
	for _, opt := range opts {
		if opt != nil {
			opt(md)
		}
	}
	ann.Metadata = md
	return ann
}

// Disabled returns an annotation that suppresses tracing for the call
func Disabled() Annotation {
	return Annotation{}
}

// WithMetadata copies a complete metadata record into the annotation
func WithMetadata(md Metadata) MetadataOption {
	return func(m *Metadata) {
		*m = md.Clone()
	}
}

// WithAgentID names the acting agent
func WithAgentID(id string) MetadataOption {
	return func(m *Metadata) { m.AgentID = id }
}

// WithParentAgentID nests this call under the latest call made by agent id
func WithParentAgentID(id string) MetadataOption {
	return func(m *Metadata) { m.ParentAgentID = id }
}

// WithUserID sets the end-user identifier
func WithUserID(id string) MetadataOption {
	return func(m *Metadata) { m.UserID = id }
}

// WithConversationID groups calls into one logical conversation
func WithConversationID(id string) MetadataOption {
	return func(m *Metadata) { m.ConversationID = id }
}

// WithTags appends tags in the given order. Duplicates are kept.
func WithTags(tags ...string) MetadataOption {
	return func(m *Metadata) { m.Tags = append(m.Tags, tags...) }
}

// WithInstructions describes the agent's role
func WithInstructions(text string) MetadataOption {
	return func(m *Metadata) { m.Instructions = text }
}

// Traced reports whether the call carrying this annotation produces a trace
func (a Annotation) Traced() bool {
	return a.Enabled
}

// Resolved returns the metadata with the default-agent fallback applied.
// The result is a copy; the annotation itself is never modified.
func (a Annotation) Resolved() Metadata {
	var md Metadata
	if a.Metadata != nil {
		md = a.Metadata.Clone()
	}
	if md.AgentID == "" {
		md.AgentID = DefaultAgentID
	}
	return md
}

// Attributes returns the span attributes for the resolved metadata.
// Empty optional fields are omitted.
func (a Annotation) Attributes() []attribute.KeyValue {
	md := a.Resolved()
	attrs := []attribute.KeyValue{
		AttrAgentID.String(md.AgentID),
		AttrAgentDefault.Bool(md.AgentID == DefaultAgentID),
	}
	if md.ParentAgentID != "" {
		attrs = append(attrs, AttrParentAgentID.String(md.ParentAgentID))
	}
	if md.UserID != "" {
		attrs = append(attrs, AttrUserID.String(md.UserID))
	}
	if md.ConversationID != "" {
		attrs = append(attrs, AttrConversationID.String(md.ConversationID))
	}
	if len(md.Tags) > 0 {
		attrs = append(attrs, AttrTags.StringSlice(md.Tags))
	}
	if md.Instructions != "" {
		attrs = append(attrs, AttrInstructions.String(md.Instructions))
	}
	return attrs
}
