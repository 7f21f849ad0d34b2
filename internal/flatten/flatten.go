package flatten

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator joins path segments in flattened keys.
const Separator = "_"

// Flatten walks v depth first and returns one entry per leaf scalar, keyed
// by the joined path of ancestor keys and list indices
// (e.g. "line_items_0_total").
//
// Empty objects and empty lists have no leaves and so produce no key. A
// field that was present but empty cannot be told apart from a missing one
// in the flat form. A nil scalar is a leaf and keeps its key.
//
// A non-container v is returned as a single entry under the empty key.
func Flatten(v any) *Object {
	out := NewObject()
	walk(out, "", v)
	return out
}

func walk(out *Object, prefix string, v any) {
	switch node := v.(type) {
	case *Object:
		for _, k := range node.keys {
			walk(out, join(prefix, k), node.values[k])
		}
	case []any:
		for i, item := range node {
			walk(out, join(prefix, strconv.Itoa(i)), item)
		}
	default:
		out.Set(prefix, node)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + Separator + key
}

// ObjectFromRecord converts a typed record into an ordered document and
// fails if the record does not encode as a JSON object.
func ObjectFromRecord(record any) (*Object, error) {
	doc, err := FromRecord(record)
	if err != nil {
		return nil, err
	}
	obj, ok := doc.(*Object)
	if !ok {
		return nil, fmt.Errorf("not an object (%T)", doc)
	}
	return obj, nil
}

// Record flattens a typed record.
func Record(record any) (*Object, error) {
	obj, err := ObjectFromRecord(record)
	if err != nil {
		return nil, fmt.Errorf("Record: %w", err)
	}
	return Flatten(obj), nil
}

// Records flattens every record, failing on the first record that cannot be
// converted so that callers never see a partial batch.
func Records[T any](records []T) ([]*Object, error) {
	out := make([]*Object, 0, len(records))
	for i, r := range records {
		flat, err := Record(r)
		if err != nil {
			return nil, fmt.Errorf("Records: record %d: %w", i, err)
		}
		out = append(out, flat)
	}
	return out, nil
}

// Unflatten rebuilds a nested document from flat keys by splitting on the
// separator. Every segment becomes an object key, including list indices,
// so Flatten(Unflatten(f)) has the same entries as f. Keys that collide
// with an existing leaf are reported as errors.
func Unflatten(flat *Object) (*Object, error) {
	root := NewObject()
	for _, key := range flat.keys {
		parts := strings.Split(key, Separator)
		node := root
		for i, part := range parts[:len(parts)-1] {
			next, ok := node.values[part]
			if !ok {
				child := NewObject()
				node.Set(part, child)
				node = child
				continue
			}
			child, isObj := next.(*Object)
			if !isObj {
				return nil, fmt.Errorf("Unflatten: key %q: %q is already a leaf", key, strings.Join(parts[:i+1], Separator))
			}
			node = child
		}
		last := parts[len(parts)-1]
		if existing, ok := node.values[last]; ok {
			if _, isObj := existing.(*Object); isObj {
				return nil, fmt.Errorf("Unflatten: key %q is already an object", key)
			}
		}
		node.Set(last, flat.values[key])
	}
	return root, nil
}
