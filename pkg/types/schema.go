package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// InferredOutputType is the resolved type of a single workflow output.
type InferredOutputType struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	TypeName string `json:"typeName,omitempty"`
	Values   []any  `json:"values,omitempty"`
	Optional bool   `json:"optional"`
	Stream   bool   `json:"stream"`
}

// InferredOutputSchema is a JSON-Schema-like object describing workflow outputs.
type InferredOutputSchema struct {
	Type       string           `json:"type"`
	Properties OutputProperties `json:"properties"`
	Required   []string         `json:"required"`
}

// OutputProperties is an insertion-ordered map from output name to type.
// It marshals as a JSON object whose keys keep insertion order.
type OutputProperties struct {
	keys   []string
	values map[string]InferredOutputType
}

// Set inserts or replaces a property. Replacing keeps the original position.
func (p *OutputProperties) Set(name string, t InferredOutputType) {
	if p.values == nil {
		p.values = make(map[string]InferredOutputType)
	}
	if _, ok := p.values[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.values[name] = t
}

// Get returns the property with the given name.
func (p *OutputProperties) Get(name string) (InferredOutputType, bool) {
	t, ok := p.values[name]
	return t, ok
}

// Keys returns property names in insertion order.
func (p *OutputProperties) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of properties.
func (p *OutputProperties) Len() int {
	return len(p.keys)
}

// MarshalJSON implements json.Marshaler.
func (p OutputProperties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order.
func (p *OutputProperties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("output properties: expected object, got %v", tok)
	}
	*p = OutputProperties{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("output properties: expected string key, got %v", tok)
		}
		var t InferredOutputType
		if err := dec.Decode(&t); err != nil {
			return fmt.Errorf("output properties: %s: %w", key, err)
		}
		p.Set(key, t)
	}
	_, err = dec.Token()
	return err
}
