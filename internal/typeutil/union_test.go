package typeutil

import (
	"sort"
	"strings"
	"testing"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

func union(members ...string) types.TypeMetadata {
	t := types.TypeMetadata{Type: TypeUnion}
	for _, m := range members {
		t.TypeArgs = append(t.TypeArgs, types.TypeMetadata{Type: m})
	}
	return t
}

func TestReduceUnionType(t *testing.T) {
	tests := []struct {
		name string
		in   types.TypeMetadata
		want string
	}{
		{"non-union passthrough", types.TypeMetadata{Type: "image"}, "image"},
		{"non-union keeps empty", types.TypeMetadata{}, ""},
		{"empty union", types.TypeMetadata{Type: TypeUnion}, "str"},
		{"empty type args slice", types.TypeMetadata{Type: TypeUnion, TypeArgs: []types.TypeMetadata{}}, "str"},
		{"int float", union("int", "float"), "float"},
		{"float int", union("float", "int"), "float"},
		{"int float tensor", union("int", "float", "tensor"), "float"},
		{"tensor int float", union("tensor", "int", "float"), "float"},
		{"no rule falls back to alphabetical first", union("video", "audio"), "audio"},
		{"single member", union("text"), "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReduceUnionType(tt.in); got != tt.want {
				t.Errorf("ReduceUnionType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReduceUnionType_OrderIndependent(t *testing.T) {
	for key, want := range unionReductions {
		members := strings.Split(key, "_")
		reversed := make([]string, len(members))
		for i, m := range members {
			reversed[len(members)-1-i] = m
		}
		if got := ReduceUnionType(union(reversed...)); got != want {
			t.Errorf("%s reversed: got %q, want %q", key, got, want)
		}
	}
}

func TestUnionReductionKeysSorted(t *testing.T) {
	for key := range unionReductions {
		members := strings.Split(key, "_")
		if !sort.StringsAreSorted(members) {
			t.Errorf("reduction key %q is not sorted", key)
		}
	}
}

func TestReductionKey(t *testing.T) {
	if got := ReductionKey(union("int", "float", "tensor")); got != "float_int_tensor" {
		t.Errorf("ReductionKey() = %q", got)
	}
}
