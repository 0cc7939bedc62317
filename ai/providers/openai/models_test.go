package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name  string
		alias string
		model string
		want  string
	}{
		{"vanilla alias", "", "smart", "gpt-4o"},
		{"vanilla default", "", "", DefaultModel},
		{"explicit model passes through", "openai", "gpt-4.1", "gpt-4.1"},
		{"deepseek smart", "openai.deepseek", "smart", "deepseek-reasoner"},
		{"groq default", "openai.groq", "", "llama-3.3-70b-versatile"},
		{"unknown provider keeps model", "openai.custom", "my-model", "my-model"},
		{"unknown provider without model", "openai.custom", "", DefaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveModel(tt.alias, tt.model))
		})
	}
}
