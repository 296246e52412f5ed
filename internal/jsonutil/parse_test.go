package jsonutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose around", `Sure! {"a":{"b":2}} hope this helps {"c":3}`, `{"a":{"b":2}}`, true},
		{"brace in string", `{"s":"a } b { c","n":1}`, `{"s":"a } b { c","n":1}`, true},
		{"escaped quote", `{"s":"say \"}\" now"}`, `{"s":"say \"}\" now"}`, true},
		{"unbalanced", `{"a":{"b":1}`, "", false},
		{"none", "no json here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractObject(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripMarkdownFences(t *testing.T) {
	in := "```json\n{\"a\":1}\n```\nTrailing note"
	assert.Equal(t, "{\"a\":1}\n\nTrailing note", StripMarkdownFences(in))
}

func TestParseJSON(t *testing.T) {
	type payload struct {
		Score float64 `json:"score"`
	}

	got, err := ParseJSON[payload]("```json\n{\"score\": 0.75}\n```")
	require.NoError(t, err)
	assert.Equal(t, 0.75, got.Score)

	_, err = ParseJSON[payload]("nothing useful")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoObject))

	_, err = ParseJSON[payload](`{"score": }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}
