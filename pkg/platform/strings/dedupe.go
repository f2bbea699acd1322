// Package strings holds small helpers for list-valued settings such as broker addresses.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empties and repeats, keeping first-seen order.
//
//	DedupeAndTrim([]string{" a:9092", "b:9092", "a:9092", ""})
//	// []string{"a:9092", "b:9092"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// SplitList splits a comma separated flag value and applies DedupeAndTrim.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}
