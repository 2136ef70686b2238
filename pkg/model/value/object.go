/*
 * Copyright 2024 The Ember Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package value

// ObjectValue is a document's field map. Updates return the value they
// produced rather than editing shared state, so snapshots handed out earlier
// stay valid.
type ObjectValue struct {
	root Value
}

// NewObjectValue creates an object value over the given map value.
func NewObjectValue(root Value) ObjectValue {
	if root.valueType != TypeMap {
		panic("object value requires a map value")
	}
	return ObjectValue{root: root}
}

// EmptyObject creates an empty object value.
func EmptyObject() ObjectValue {
	return ObjectValue{root: Map()}
}

// Value returns the underlying map value.
func (o ObjectValue) Value() Value {
	return o.root
}

// Field returns the value at the given path.
func (o ObjectValue) Field(path FieldPath) (Value, bool) {
	current := o.root
	for _, segment := range path.segments {
		if current.valueType != TypeMap {
			return Value{}, false
		}
		next, ok := current.Field(segment)
		if !ok {
			return Value{}, false
		}
		current = next
	}
	return current, true
}

// Set returns an object with the value at the given path replaced, creating
// intermediate maps as needed. Setting an empty path replaces the whole
// object.
func (o ObjectValue) Set(path FieldPath, v Value) ObjectValue {
	if path.IsEmpty() {
		if v.valueType != TypeMap {
			panic("cannot replace an object's root with a non-map value")
		}
		return ObjectValue{root: v}
	}
	return ObjectValue{root: setField(o.root, path.segments, v)}
}

// Delete returns an object with the value at the given path removed. Deleting
// a path that does not exist is a no-op.
func (o ObjectValue) Delete(path FieldPath) ObjectValue {
	if path.IsEmpty() {
		return o
	}
	return ObjectValue{root: deleteField(o.root, path.segments)}
}

// FieldMask returns a mask covering the leaf fields of this object. Nested
// maps contribute their leaves; empty nested maps contribute themselves.
func (o ObjectValue) FieldMask() FieldMask {
	var paths []FieldPath
	collectLeafPaths(o.root, nil, &paths)
	return NewFieldMask(paths...)
}

func collectLeafPaths(v Value, prefix []string, paths *[]FieldPath) {
	for _, entry := range v.entries {
		segments := make([]string, 0, len(prefix)+1)
		segments = append(segments, prefix...)
		segments = append(segments, entry.Key)
		if entry.Value.valueType == TypeMap && len(entry.Value.entries) > 0 && !IsServerTimestamp(entry.Value) {
			collectLeafPaths(entry.Value, segments, paths)
		} else {
			*paths = append(*paths, NewFieldPath(segments...))
		}
	}
}

func setField(parent Value, segments []string, v Value) Value {
	key := segments[0]
	if len(segments) > 1 {
		child, ok := parent.Field(key)
		if !ok || child.valueType != TypeMap {
			child = Map()
		}
		v = setField(child, segments[1:], v)
	}

	entries := make([]MapEntry, 0, len(parent.entries)+1)
	replaced := false
	for _, entry := range parent.entries {
		if entry.Key == key {
			entries = append(entries, MapEntry{Key: key, Value: v})
			replaced = true
		} else {
			entries = append(entries, entry)
		}
	}
	if !replaced {
		entries = append(entries, MapEntry{Key: key, Value: v})
	}
	return Map(entries...)
}

func deleteField(parent Value, segments []string) Value {
	key := segments[0]
	if len(segments) > 1 {
		child, ok := parent.Field(key)
		if !ok || child.valueType != TypeMap {
			return parent
		}
		return replaceEntry(parent, key, deleteField(child, segments[1:]))
	}

	entries := make([]MapEntry, 0, len(parent.entries))
	for _, entry := range parent.entries {
		if entry.Key != key {
			entries = append(entries, entry)
		}
	}
	return Map(entries...)
}

func replaceEntry(parent Value, key string, v Value) Value {
	entries := make([]MapEntry, 0, len(parent.entries))
	for _, entry := range parent.entries {
		if entry.Key == key {
			entries = append(entries, MapEntry{Key: key, Value: v})
		} else {
			entries = append(entries, entry)
		}
	}
	return Map(entries...)
}
