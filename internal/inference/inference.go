// Package inference derives a workflow's output schema from its graph and the
// node metadata catalog.
package inference

import (
	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// Target handles probed on output nodes, in order.
const (
	HandleValue   = "value"
	HandleDefault = "default"
)

// MetadataLookup resolves a node type to its catalog descriptor.
// Implementations must be read-only for the duration of a call.
type MetadataLookup interface {
	Lookup(nodeType string) (*types.NodeMetadata, bool)
}

// LookupFunc adapts a function to MetadataLookup.
type LookupFunc func(nodeType string) (*types.NodeMetadata, bool)

// Lookup implements MetadataLookup.
func (f LookupFunc) Lookup(nodeType string) (*types.NodeMetadata, bool) {
	return f(nodeType)
}

// SkipReason explains why an output node did not contribute to the schema.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipNoIncomingEdge  SkipReason = "no_incoming_edge"
	SkipSourceMissing   SkipReason = "source_node_missing"
	SkipNoSourceType    SkipReason = "source_type_empty"
	SkipNoMetadata      SkipReason = "metadata_not_found"
	SkipNoValueProperty SkipReason = "value_property_not_found"
	SkipNoOutputSlot    SkipReason = "output_slot_not_found"
)

// Resolution is the outcome of resolving a single output node.
type Resolution struct {
	OutputNodeID string                    `json:"output_node_id"`
	Name         string                    `json:"name"`
	SourceNodeID string                    `json:"source_node_id,omitempty"`
	SourceType   string                    `json:"source_type,omitempty"`
	SourceHandle string                    `json:"source_handle,omitempty"`
	Output       *types.InferredOutputType `json:"output,omitempty"`
	Skipped      SkipReason                `json:"skipped,omitempty"`
}

// ResolveOutputs resolves every output node of g, in node order.
func ResolveOutputs(g *types.Graph, lookup MetadataLookup) []Resolution {
	if g == nil || len(g.Nodes) == 0 {
		return nil
	}

	var out []Resolution
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if !node.IsOutput() {
			continue
		}
		out = append(out, resolveOutput(g, node, lookup))
	}
	return out
}

func resolveOutput(g *types.Graph, node *types.Node, lookup MetadataLookup) Resolution {
	name := node.Data.OutputName()
	if name == "" {
		name = node.ID
	}
	res := Resolution{OutputNodeID: node.ID, Name: name}

	edge, ok := g.IncomingEdge(node.ID, HandleValue)
	if !ok {
		edge, ok = g.IncomingEdge(node.ID, HandleDefault)
	}
	if !ok {
		res.Skipped = SkipNoIncomingEdge
		return res
	}
	res.SourceNodeID = edge.Source
	res.SourceHandle = edge.SourceHandle

	source, ok := g.FindNode(edge.Source)
	if !ok {
		res.Skipped = SkipSourceMissing
		return res
	}
	sourceType := source.ResolvedType()
	if sourceType == "" {
		res.Skipped = SkipNoSourceType
		return res
	}
	res.SourceType = sourceType

	meta, ok := lookup.Lookup(sourceType)
	if !ok || meta == nil {
		res.Skipped = SkipNoMetadata
		return res
	}

	// An output feeding another output passes its own "value" input through.
	if source.IsOutput() {
		prop, ok := meta.Property(HandleValue)
		if !ok {
			res.Skipped = SkipNoValueProperty
			return res
		}
		res.Output = inferred(name, prop.Type, false)
		return res
	}

	slot, ok := meta.Output(edge.SourceHandle)
	if !ok {
		res.Skipped = SkipNoOutputSlot
		return res
	}
	res.Output = inferred(name, slot.Type, slot.Stream)
	return res
}

func inferred(name string, t types.TypeMetadata, stream bool) *types.InferredOutputType {
	return &types.InferredOutputType{
		Name:     name,
		Type:     t.Type,
		TypeName: t.TypeName,
		Values:   t.Values,
		Optional: t.Optional,
		Stream:   stream,
	}
}

// InferOutputSchema builds the output schema of g. It returns nil when the
// graph has no nodes or no output node resolves to a type.
func InferOutputSchema(g *types.Graph, lookup MetadataLookup) *types.InferredOutputSchema {
	return Assemble(ResolveOutputs(g, lookup))
}

// Assemble aggregates resolved outputs into a schema. Outputs sharing a name
// keep the position of the first and the type of the last.
func Assemble(resolutions []Resolution) *types.InferredOutputSchema {
	schema := &types.InferredOutputSchema{Type: "object", Required: []string{}}
	for _, r := range resolutions {
		if r.Output == nil {
			continue
		}
		schema.Properties.Set(r.Name, *r.Output)
	}
	if schema.Properties.Len() == 0 {
		return nil
	}
	for _, name := range schema.Properties.Keys() {
		if p, _ := schema.Properties.Get(name); !p.Optional {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}
