package types

// TypeMetadata describes the type of a property or output slot.
// Union types list their members in TypeArgs; enums list allowed Values.
type TypeMetadata struct {
	Type     string         `json:"type"`
	Optional bool           `json:"optional,omitempty"`
	TypeName string         `json:"type_name,omitempty"`
	Values   []any          `json:"values,omitempty"` // string or number
	TypeArgs []TypeMetadata `json:"type_args,omitempty"`
}

// Property is a named, typed input of a node type.
type Property struct {
	Name        string       `json:"name"`
	Type        TypeMetadata `json:"type"`
	Default     any          `json:"default,omitempty"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required,omitempty"`
}

// OutputSlot is a named, typed output of a node type.
type OutputSlot struct {
	Name   string       `json:"name"`
	Type   TypeMetadata `json:"type"`
	Stream bool         `json:"stream,omitempty"`
}

// NodeMetadata is the catalog descriptor of a node type.
type NodeMetadata struct {
	NodeType     string       `json:"node_type"`
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	Namespace    string       `json:"namespace,omitempty"`
	Properties   []Property   `json:"properties,omitempty"`
	Outputs      []OutputSlot `json:"outputs,omitempty"`
	IsDynamic    bool         `json:"is_dynamic,omitempty"`
	ExposeAsTool bool         `json:"expose_as_tool,omitempty"`
}

// Property returns the declared input property with the given name.
func (m *NodeMetadata) Property(name string) (*Property, bool) {
	for i := range m.Properties {
		if m.Properties[i].Name == name {
			return &m.Properties[i], true
		}
	}
	return nil, false
}

// Output returns the declared output slot with the given name.
func (m *NodeMetadata) Output(name string) (*OutputSlot, bool) {
	for i := range m.Outputs {
		if m.Outputs[i].Name == name {
			return &m.Outputs[i], true
		}
	}
	return nil, false
}
