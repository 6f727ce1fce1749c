// Package typeutil provides helpers over node type descriptors.
package typeutil

import (
	"sort"
	"strings"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// TypeUnion is the descriptor type name of a union.
const TypeUnion = "union"

// DefaultUnionType is returned for unions without members.
const DefaultUnionType = "str"

// unionReductions maps a sorted, underscore-joined member list to a single
// representative type. Keys must stay sorted.
var unionReductions = map[string]string{
	"float_int":          "float",
	"float_int_tensor":   "float",
	"float_int_none":     "float",
	"float_int_str":      "str",
	"float_tensor":       "float",
	"int_tensor":         "int",
	"int_none":           "int",
	"none_str":           "str",
	"str_text":           "str",
	"image_str":          "image",
	"image_tensor":       "image",
	"audio_tensor":       "audio",
	"audio_str":          "audio",
	"dataframe_list":     "dataframe",
	"dict_list":          "dict",
	"list_str":           "list",
	"folder_str":         "folder",
	"enum_str":           "str",
	"float_int_none_str": "str",
}

// IsUnion reports whether t is a union descriptor.
func IsUnion(t types.TypeMetadata) bool {
	return t.Type == TypeUnion
}

// MemberTypes returns the member type names of a union, sorted.
func MemberTypes(t types.TypeMetadata) []string {
	members := make([]string, 0, len(t.TypeArgs))
	for _, arg := range t.TypeArgs {
		members = append(members, arg.Type)
	}
	sort.Strings(members)
	return members
}

// ReductionKey returns the lookup key for a union's member set.
func ReductionKey(t types.TypeMetadata) string {
	return strings.Join(MemberTypes(t), "_")
}

// ReduceUnionType collapses a union descriptor into a single type name.
// Non-union descriptors are returned unchanged.
func ReduceUnionType(t types.TypeMetadata) string {
	if !IsUnion(t) {
		return t.Type
	}
	if len(t.TypeArgs) == 0 {
		return DefaultUnionType
	}
	members := MemberTypes(t)
	if reduced, ok := unionReductions[strings.Join(members, "_")]; ok {
		return reduced
	}
	return members[0]
}
