package dependency

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// record is the wire form of a dependency: {"dependency": "build", "timeout": 30}.
// Timeout is in minutes.
type record struct {
	Dependency string `json:"dependency,omitempty"`
	Name       string `json:"name,omitempty"`
	Timeout    *int   `json:"timeout,omitempty"`
}

// Parse decodes a JSON array of dependency records, preserving order.
// Elements may also be bare strings, which take the default timeout.
func Parse(data []byte) ([]Spec, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []Spec{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dependencies array: %w", err)
	}

	specs := make([]Spec, 0, len(raw))
	for i, r := range raw {
		spec, err := parseOne(r)
		if err != nil {
			return nil, fmt.Errorf("dependency[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

func parseOne(data json.RawMessage) (Spec, error) {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return Spec{}, err
		}
		return Spec{Name: name, Timeout: DefaultTimeout}, nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Spec{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	name := rec.Dependency
	if name == "" {
		name = rec.Name
	}

	// An explicit 0 is kept: that dependency times out without a fetch.
	timeout := DefaultTimeout
	if rec.Timeout != nil {
		timeout = time.Duration(*rec.Timeout) * time.Minute
	}

	return Spec{Name: name, Timeout: timeout}, nil
}

// MarshalJSON writes the spec in its wire form.
func (s Spec) MarshalJSON() ([]byte, error) {
	minutes := int(s.Timeout / time.Minute)
	return json.Marshal(record{Dependency: s.Name, Timeout: &minutes})
}

// Marshal encodes specs as a JSON array of records.
func Marshal(specs []Spec) ([]byte, error) {
	if specs == nil {
		specs = []Spec{}
	}
	return json.Marshal(specs)
}
