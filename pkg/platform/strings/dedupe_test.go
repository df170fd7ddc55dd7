package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "trims whitespace",
			input:    []string{"  foo  ", "bar  ", "  baz"},
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"foo", "bar", "foo", "baz", "bar"},
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"foo", "", "  ", "bar"},
			expected: []string{"foo", "bar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSortedSet(t *testing.T) {
	assert.Equal(t, []string{"4521", "4522"}, SortedSet([]string{" 4522", "4521", "4522 ", ""}))
	assert.Nil(t, SortedSet([]string{" ", ""}))
	assert.Nil(t, SortedSet(nil))
}

func TestEqualSets(t *testing.T) {
	assert.True(t, EqualSets([]string{"b", "a"}, []string{"a", " b", "a"}))
	assert.True(t, EqualSets(nil, []string{}), "nil and empty are the same set")
	assert.False(t, EqualSets([]string{"a"}, []string{"a", "b"}))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"4521", "4522", "4530"}, SplitList("4522, 4521;4530\n4521"))
	assert.Nil(t, SplitList(""))
}
