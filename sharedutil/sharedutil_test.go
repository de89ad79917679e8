package sharedutil

import (
	"slices"
	"testing"
)

func Test_ReorderItems(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f"}

	tests := []struct {
		name      string
		idxToMove []int
		insertIdx int
		want      []string
	}{
		{"MoveToTop", []int{0, 2, 3, 5}, 0, []string{"a", "c", "d", "f", "b", "e"}},
		{"MoveToBottom", []int{0, 2, 5}, len(items), []string{"b", "d", "e", "a", "c", "f"}},
		{"MoveDown", []int{0}, 3, []string{"b", "c", "a", "d", "e", "f"}},
		{"MoveUp", []int{4}, 1, []string{"a", "e", "b", "c", "d", "f"}},
		{"KeepsGivenOrder", []int{3, 1}, 0, []string{"d", "b", "a", "c", "e", "f"}},
		{"IgnoresInvalid", []int{-1, 2, 2, 9}, 0, []string{"c", "a", "b", "d", "e", "f"}},
		{"NothingToMove", nil, 2, items},
	}
	for _, tt := range tests {
		got := ReorderItems(items, tt.idxToMove, tt.insertIdx)
		if !slices.Equal(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
	if !slices.Equal(items, []string{"a", "b", "c", "d", "e", "f"}) {
		t.Error("ReorderItems modified its input")
	}
}

func Test_MapFilter(t *testing.T) {
	lens := MapSlice([]string{"ab", "", "xyz"}, func(s string) int { return len(s) })
	if !slices.Equal(lens, []int{2, 0, 3}) {
		t.Errorf("MapSlice: got %v", lens)
	}
	nonEmpty := FilterSlice([]string{"ab", "", "xyz"}, func(s string) bool { return s != "" })
	if !slices.Equal(nonEmpty, []string{"ab", "xyz"}) {
		t.Errorf("FilterSlice: got %v", nonEmpty)
	}
	if MapSlice[int, int](nil, func(i int) int { return i }) != nil {
		t.Error("MapSlice of nil should be nil")
	}
}
