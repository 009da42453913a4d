// Copyright 2017, Square, Inc.

package attrtree

import (
	"math"

	"gopkg.in/yaml.v2"
)

// nanString is how a missing numeric value (NaN) is written out.
const nanString = "NaN"

var (
	_ yaml.Marshaler   = &Tree{}
	_ yaml.Unmarshaler = &Tree{}
)

// Serialize returns t as nested yaml.MapSlice and []interface{} values,
// in key order. Keys named in skip are dropped at every level. Metadata
// toggles are written first, and only if they differ from their defaults.
// NaN is written as the string "NaN".
func (t *Tree) Serialize(skip ...string) yaml.MapSlice {
	skipSet := map[string]bool{}
	for _, k := range skip {
		skipSet[k] = true
	}
	return t.serialize(skipSet)
}

func (t *Tree) serialize(skip map[string]bool) yaml.MapSlice {
	out := yaml.MapSlice{}
	if t.forceNulls != Metadata[ForceNullsKey] {
		out = append(out, yaml.MapItem{Key: ForceNullsKey, Value: t.forceNulls})
	}
	if t.attributeIdentity != Metadata[AttributeIdentityKey] {
		out = append(out, yaml.MapItem{Key: AttributeIdentityKey, Value: t.attributeIdentity})
	}
	for _, k := range t.keys {
		if skip[k] {
			continue
		}
		out = append(out, yaml.MapItem{Key: k, Value: serializeValue(t.values[k], skip)})
	}
	return out
}

// SerializeValue is Serialize for any value that can be stored in a Tree.
func SerializeValue(v interface{}, skip ...string) interface{} {
	skipSet := map[string]bool{}
	for _, k := range skip {
		skipSet[k] = true
	}
	return serializeValue(v, skipSet)
}

func serializeValue(v interface{}, skip map[string]bool) interface{} {
	switch val := v.(type) {
	case *Tree:
		return val.serialize(skip)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = serializeValue(e, skip)
		}
		return out
	case float64:
		if math.IsNaN(val) {
			return nanString
		}
		return val
	case float32:
		if math.IsNaN(float64(val)) {
			return nanString
		}
		return val
	default:
		return val
	}
}

// MarshalYAML implements yaml.Marshaler. Non-default metadata is kept so
// that UnmarshalYAML restores an Identical tree.
func (t *Tree) MarshalYAML() (interface{}, error) {
	return t.Serialize(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. It replaces the contents of t.
func (t *Tree) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return err
	}
	restored, err := deserialize(ms)
	if err != nil {
		return err
	}
	*t = *restored
	return nil
}

// deserialize is the inverse of serialize. Nested trees take their toggles
// from their own metadata keys, not from their parent.
func deserialize(ms yaml.MapSlice) (*Tree, error) {
	t := empty()
	for _, item := range ms {
		k := keyString(item.Key)
		if !IsMetadata(k) {
			continue
		}
		b, ok := item.Value.(bool)
		if !ok {
			return nil, MetadataOperationError{Key: k, Op: "restore"}
		}
		switch k {
		case ForceNullsKey:
			t.forceNulls = b
		case AttributeIdentityKey:
			t.attributeIdentity = b
		}
	}
	for _, item := range ms {
		k := keyString(item.Key)
		if IsMetadata(k) {
			continue
		}
		v, err := deserializeValue(item.Value)
		if err != nil {
			return nil, err
		}
		if _, ok := t.values[k]; !ok {
			t.keys = append(t.keys, k)
		}
		t.values[k] = v
	}
	return t, nil
}

func deserializeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case yaml.MapSlice:
		return deserialize(val)
	case map[interface{}]interface{}:
		ms := yaml.MapSlice{}
		for k, e := range val {
			ms = append(ms, yaml.MapItem{Key: k, Value: e})
		}
		return deserialize(ms)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			d, err := deserializeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	default:
		return val, nil
	}
}
