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
		{"nil slice", nil, nil},
		{"empty slice", []string{}, []string{}},
		{"trims whitespace", []string{"  a:9092 ", "b:9092  "}, []string{"a:9092", "b:9092"}},
		{"keeps first occurrence", []string{"b", "a", "b", "c", "a"}, []string{"b", "a", "c"}},
		{"drops blanks", []string{"a", "", "  ", "b"}, []string{"a", "b"}},
		{"only blanks", []string{" ", ""}, []string{}},
		{"case sensitive", []string{"Broker", "broker"}, []string{"Broker", "broker"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"A", "B"}, SplitList("A, B,,A "))
}
