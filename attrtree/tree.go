// Copyright 2017, Square, Inc.

// Package attrtree provides Tree, an ordered and recursive key/value container.
//
// A value in a Tree is one of three kinds: a scalar (string, number, bool or
// nil), a sequence ([]interface{}) or a node (a nested *Tree). Mappings given
// as values are promoted to nested Trees. Setting a mapping under a key that
// already holds a Tree merges the two recursively; setting anything under a
// key that holds a scalar or sequence replaces it (squash).
//
// Two behavior toggles are metadata, stored out of band from ordinary keys:
//
//   _force_nulls          setting an existing key to nil overwrites it
//   _attribute_identity   a missing key reads back as the key itself
//
// Metadata is excluded from Keys, Equal and serialization unless it differs
// from its default (false), and it can only be chosen at construction.
package attrtree

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	ForceNullsKey        = "_force_nulls"
	AttributeIdentityKey = "_attribute_identity"
)

// Metadata maps each protected metadata attribute to its default value.
var Metadata = map[string]bool{
	ForceNullsKey:        false,
	AttributeIdentityKey: false,
}

// IsMetadata returns true if key names a protected metadata attribute.
func IsMetadata(key string) bool {
	_, ok := Metadata[key]
	return ok
}

// Kind is the variant of a value stored in a Tree.
type Kind int

const (
	Scalar Kind = iota
	Sequence
	Node
)

// KindOf returns the Kind of v. Values stored in a Tree are promoted, so a
// Node there is always a *Tree; unpromoted Go maps and slices are
// classified by their reflect kind.
func KindOf(v interface{}) Kind {
	switch v.(type) {
	case nil:
		return Scalar
	case *Tree, yaml.MapSlice, []Pair:
		return Node
	case []interface{}:
		return Sequence
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map:
		return Node
	case reflect.Slice, reflect.Array:
		if isBytes(v) {
			return Scalar
		}
		return Sequence
	default:
		return Scalar
	}
}

// Pair is one key/value entry. A []Pair is accepted anywhere entries are.
type Pair struct {
	Key   string
	Value interface{}
}

// Option sets a metadata toggle at construction.
type Option func(*Tree)

// ForceNulls makes nil values overwrite existing keys.
func ForceNulls(b bool) Option {
	return func(t *Tree) { t.forceNulls = b }
}

// AttributeIdentity makes a missing key read back as the key itself.
func AttributeIdentity(b bool) Option {
	return func(t *Tree) { t.attributeIdentity = b }
}

// Tree is an ordered mapping from string keys to values. The zero value is
// not usable; call New.
type Tree struct {
	keys   []string
	values map[string]interface{}

	forceNulls        bool
	attributeIdentity bool
}

// New creates a Tree from entries, which can be nil, a *Tree, a map with
// string (or stringable) keys, a yaml.MapSlice or a []Pair. Entries are
// inserted in order with the same rules as Set. Entries may not name a
// metadata attribute: use the options for those.
func New(entries interface{}, opts ...Option) (*Tree, error) {
	t := empty()
	for _, opt := range opts {
		opt(t)
	}
	if err := t.Update(entries); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNew is like New but panics on error. It's meant for literals.
func MustNew(entries interface{}, opts ...Option) *Tree {
	t, err := New(entries, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func empty() *Tree {
	return &Tree{
		keys:   []string{},
		values: map[string]interface{}{},
	}
}

// child returns an empty Tree with the same toggles as t.
func (t *Tree) child() *Tree {
	c := empty()
	c.forceNulls = t.forceNulls
	c.attributeIdentity = t.attributeIdentity
	return c
}

func (t *Tree) ForceNulls() bool        { return t.forceNulls }
func (t *Tree) AttributeIdentity() bool { return t.attributeIdentity }

// Update sets every entry, in order, as if by Set.
func (t *Tree) Update(entries interface{}) error {
	pairs, err := toPairs(entries)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := t.Set(p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Set stores value under key:
//
//   - a new key stores the value as given, nil included
//   - nil over an existing value is ignored unless the tree forces nulls
//   - a mapping over an existing Tree merges into it, recursively
//   - anything else replaces the existing value
//
// Mappings are promoted to Trees with the toggles of t. Setting a metadata
// attribute returns a MetadataOperationError.
func (t *Tree) Set(key string, value interface{}) error {
	if IsMetadata(key) {
		return MetadataOperationError{Key: key, Op: "set"}
	}
	incoming, err := t.promote(value)
	if err != nil {
		return err
	}
	existing, ok := t.values[key]
	if !ok {
		t.keys = append(t.keys, key)
		t.values[key] = incoming
		return nil
	}
	t.values[key] = Merge(existing, incoming, t.forceNulls)
	return nil
}

// Merge returns the result of setting incoming over existing. It does not
// modify either argument. forceNulls decides whether a nil incoming value
// replaces a non-nil existing one.
func Merge(existing, incoming interface{}, forceNulls bool) interface{} {
	if incoming == nil {
		if forceNulls {
			return nil
		}
		return copyValue(existing)
	}
	in, ok := incoming.(*Tree)
	if !ok {
		return copyValue(incoming)
	}
	ex, ok := existing.(*Tree)
	if !ok {
		return in.Copy()
	}
	out := ex.Copy()
	for _, k := range in.keys {
		v := in.values[k]
		if cur, ok := out.values[k]; ok {
			out.values[k] = Merge(cur, v, out.forceNulls)
			continue
		}
		out.keys = append(out.keys, k)
		out.values[k] = copyValue(v)
	}
	return out
}

// Get returns the value stored under key. If key is missing, it returns
// key itself when the tree has attribute identity, else a KeyNotFoundError.
// Metadata attributes are not readable this way.
func (t *Tree) Get(key string) (interface{}, error) {
	if IsMetadata(key) {
		return nil, MetadataOperationError{Key: key, Op: "get"}
	}
	if v, ok := t.values[key]; ok {
		return v, nil
	}
	if t.attributeIdentity {
		return key, nil
	}
	return nil, KeyNotFoundError{Key: key}
}

// Attr returns the value at a dotted path, like "metadata.output_dir".
// Missing attributes follow the identity rule of the tree in which the
// lookup missed; otherwise an AttributeNotFoundError names the full path.
func (t *Tree) Attr(path string) (interface{}, error) {
	if path == "" {
		return nil, AttributeNotFoundError{Attribute: path}
	}
	cur := t
	parts := strings.Split(path, ".")
	for i, name := range parts {
		if IsMetadata(name) {
			return nil, MetadataOperationError{Key: name, Op: "get"}
		}
		v, ok := cur.values[name]
		if !ok {
			if cur.attributeIdentity {
				return name, nil
			}
			return nil, AttributeNotFoundError{Attribute: path}
		}
		if i == len(parts)-1 {
			return v, nil
		}
		next, ok := v.(*Tree)
		if !ok {
			return nil, AttributeNotFoundError{Attribute: path}
		}
		cur = next
	}
	return nil, AttributeNotFoundError{Attribute: path}
}

// Lookup returns the value under key and whether it exists. It ignores
// attribute identity.
func (t *Tree) Lookup(key string) (interface{}, bool) {
	v, ok := t.values[key]
	return v, ok
}

func (t *Tree) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

// Sub returns the nested Tree at a dotted path, if there is one.
func (t *Tree) Sub(path string) (*Tree, bool) {
	v, err := t.Attr(path)
	if err != nil {
		return nil, false
	}
	sub, ok := v.(*Tree)
	return sub, ok
}

// GetString returns the value at a dotted path formatted as a string.
// Missing and nil values are "" and false.
func (t *Tree) GetString(path string) (string, bool) {
	v, err := t.Attr(path)
	if err != nil || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// GetStrings returns the value at a dotted path as a list of strings. A
// single scalar is a one-element list.
func (t *Tree) GetStrings(path string) []string {
	v, err := t.Attr(path)
	if err != nil || v == nil {
		return nil
	}
	switch val := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, e := range val {
			if e == nil {
				continue
			}
			out = append(out, fmt.Sprint(e))
		}
		return out
	case *Tree:
		return nil
	default:
		return []string{fmt.Sprint(val)}
	}
}

func (t *Tree) Delete(key string) {
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the ordinary keys in insertion order.
func (t *Tree) Keys() []string {
	keys := make([]string, len(t.keys))
	copy(keys, t.keys)
	return keys
}

func (t *Tree) Len() int {
	return len(t.keys)
}

// Copy returns a deep copy of t, toggles included.
func (t *Tree) Copy() *Tree {
	c := t.child()
	for _, k := range t.keys {
		c.keys = append(c.keys, k)
		c.values[k] = copyValue(t.values[k])
	}
	return c
}

// Equal returns true if other holds the same ordinary keys and values as t,
// compared structurally. other may be a *Tree or any mapping New accepts.
// Metadata and key order are ignored.
func (t *Tree) Equal(other interface{}) bool {
	if other == nil {
		return false
	}
	o, ok := other.(*Tree)
	if !ok {
		var err error
		if o, err = New(other); err != nil {
			return false
		}
	}
	return reflect.DeepEqual(t.plain(), o.plain())
}

// Identical returns true if other is Equal to t and every nested Tree has
// the same metadata toggles as its counterpart.
func (t *Tree) Identical(other *Tree) bool {
	if other == nil || !t.Equal(other) {
		return false
	}
	return identicalValues(t, other)
}

func identicalValues(a, b interface{}) bool {
	switch av := a.(type) {
	case *Tree:
		bv, ok := b.(*Tree)
		if !ok || av.forceNulls != bv.forceNulls || av.attributeIdentity != bv.attributeIdentity {
			return false
		}
		for _, k := range av.keys {
			if !identicalValues(av.values[k], bv.values[k]) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !identicalValues(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return true // scalars were compared by Equal
	}
}

func (t *Tree) GoString() string {
	return fmt.Sprintf("%v", t.plain())
}

// plain converts t to nested map[string]interface{} without metadata, for
// structural comparison.
func (t *Tree) plain() map[string]interface{} {
	m := make(map[string]interface{}, len(t.keys))
	for _, k := range t.keys {
		m[k] = plainValue(t.values[k])
	}
	return m
}

func plainValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *Tree:
		return val.plain()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = plainValue(e)
		}
		return out
	case float64:
		if math.IsNaN(val) {
			return nan{}
		}
		return val
	case float32:
		if math.IsNaN(float64(val)) {
			return nan{}
		}
		return val
	default:
		return val
	}
}

// nan stands in for NaN in plain forms, where NaN must equal NaN but not
// the string "NaN".
type nan struct{}

func (nan) String() string { return nanString }

// promote converts mappings in value to Trees with the toggles of t,
// recursing into sequences. Other values are returned as is.
func (t *Tree) promote(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Tree:
		return v.Copy(), nil
	case map[string]interface{}, map[interface{}]interface{}, map[string]string, yaml.MapSlice, []Pair:
		c := t.child()
		if err := c.Update(v); err != nil {
			return nil, err
		}
		return c, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			p, err := t.promote(e)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		c := t.child()
		if err := c.Update(value); err != nil {
			return nil, err
		}
		return c, nil
	case reflect.Slice, reflect.Array:
		if isBytes(value) {
			return value, nil
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			p, err := t.promote(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	default:
		return value, nil
	}
}

// isBytes returns true for []byte and byte arrays, which are scalars.
func isBytes(v interface{}) bool {
	t := reflect.TypeOf(v)
	return t.Elem().Kind() == reflect.Uint8
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *Tree:
		return val.Copy()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	default:
		return val
	}
}

// toPairs flattens any supported entries value into ordered pairs. Plain Go
// maps have no order, so their keys are sorted.
func toPairs(entries interface{}) ([]Pair, error) {
	var pairs []Pair
	switch e := entries.(type) {
	case nil:
		return nil, nil
	case *Tree:
		for _, k := range e.keys {
			pairs = append(pairs, Pair{Key: k, Value: e.values[k]})
		}
		return pairs, nil
	case []Pair:
		pairs = e
	case yaml.MapSlice:
		for _, item := range e {
			pairs = append(pairs, Pair{Key: keyString(item.Key), Value: item.Value})
		}
	case map[string]interface{}:
		for _, k := range sortedKeys(e) {
			pairs = append(pairs, Pair{Key: k, Value: e[k]})
		}
	case map[string]string:
		keys := make([]string, 0, len(e))
		for k := range e {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = append(pairs, Pair{Key: k, Value: e[k]})
		}
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(e))
		for k, v := range e {
			m[keyString(k)] = v
		}
		for _, k := range sortedKeys(m) {
			pairs = append(pairs, Pair{Key: k, Value: m[k]})
		}
	default:
		rv := reflect.ValueOf(entries)
		if rv.Kind() != reflect.Map {
			return nil, fmt.Errorf("cannot make attribute tree entries from %T", entries)
		}
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[keyString(iter.Key().Interface())] = iter.Value().Interface()
		}
		for _, k := range sortedKeys(m) {
			pairs = append(pairs, Pair{Key: k, Value: m[k]})
		}
	}
	for _, p := range pairs {
		if IsMetadata(p.Key) {
			return nil, MetadataOperationError{Key: p.Key, Op: "set"}
		}
	}
	return pairs, nil
}

func keyString(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
