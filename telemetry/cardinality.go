package telemetry

import "sync"

// OverflowLabel replaces label values seen after a label reached its limit
const OverflowLabel = "other"

// DefaultCardinalityLimits bounds the metric labels that carry caller data
var DefaultCardinalityLimits = map[string]int{
	"agent_id": 100,
	"tool":     50,
}

// CardinalityLimiter keeps metric label sets bounded. Agent ids are free-form
// caller input, so each limited label admits a fixed number of distinct
// values and folds the rest into OverflowLabel.
type CardinalityLimiter struct {
	limits map[string]int

	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// NewCardinalityLimiter creates a limiter. Labels without a limit pass through.
func NewCardinalityLimiter(limits map[string]int) *CardinalityLimiter {
	if limits == nil {
		limits = DefaultCardinalityLimits
	}
	return &CardinalityLimiter{
		limits: limits,
		seen:   make(map[string]map[string]struct{}),
	}
}

// Limit returns value, or OverflowLabel when label is full and value is new
func (c *CardinalityLimiter) Limit(label, value string) string {
	if c == nil {
		return value
	}
	limit, ok := c.limits[label]
	if !ok {
		return value
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.seen[label]
	if values == nil {
		values = make(map[string]struct{})
		c.seen[label] = values
	}
	if _, exists := values[value]; exists {
		return value
	}
	if len(values) >= limit {
		return OverflowLabel
	}
	values[value] = struct{}{}
	return value
}

// Cardinality returns the number of distinct values admitted for label
func (c *CardinalityLimiter) Cardinality(label string) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen[label])
}
