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

import (
	"sort"
	"strings"
)

// FieldPath is a dot-separated path into the fields of a document.
type FieldPath struct {
	segments []string
}

// NewFieldPath creates a field path from the given segments.
func NewFieldPath(segments ...string) FieldPath {
	return FieldPath{segments: segments}
}

// ParseFieldPath parses a dot-separated field path string.
func ParseFieldPath(path string) FieldPath {
	if path == "" {
		return FieldPath{}
	}
	return FieldPath{segments: strings.Split(path, ".")}
}

// Segments returns the segments of this path.
func (p FieldPath) Segments() []string {
	return p.segments
}

// Len returns the number of segments.
func (p FieldPath) Len() int {
	return len(p.segments)
}

// IsEmpty returns whether this path has no segments.
func (p FieldPath) IsEmpty() bool {
	return len(p.segments) == 0
}

// FirstSegment returns the first segment of this path.
func (p FieldPath) FirstSegment() string {
	return p.segments[0]
}

// PopFirst returns this path without its first segment.
func (p FieldPath) PopFirst() FieldPath {
	return FieldPath{segments: p.segments[1:]}
}

// IsPrefixOf returns whether this path is a prefix of, or equal to, other.
func (p FieldPath) IsPrefixOf(other FieldPath) bool {
	if len(p.segments) > len(other.segments) {
		return false
	}
	for i, segment := range p.segments {
		if other.segments[i] != segment {
			return false
		}
	}
	return true
}

// Equals returns whether two paths are identical.
func (p FieldPath) Equals(other FieldPath) bool {
	return p.String() == other.String()
}

// String returns the dot-separated representation of this path.
func (p FieldPath) String() string {
	return strings.Join(p.segments, ".")
}

// FieldMask is a set of field paths. A mask on a patch mutation limits the
// patch's effect to the masked paths; everything outside the mask is left
// untouched.
type FieldMask struct {
	paths map[string]FieldPath
}

// NewFieldMask creates a field mask of the given paths.
func NewFieldMask(paths ...FieldPath) FieldMask {
	mask := FieldMask{paths: make(map[string]FieldPath, len(paths))}
	for _, path := range paths {
		mask.paths[path.String()] = path
	}
	return mask
}

// Covers returns whether the given field path is covered by this mask. A mask
// path covers the exact field and everything nested below it.
func (m FieldMask) Covers(path FieldPath) bool {
	for _, maskPath := range m.paths {
		if maskPath.IsPrefixOf(path) {
			return true
		}
	}
	return false
}

// Contains returns whether the mask holds exactly the given path.
func (m FieldMask) Contains(path FieldPath) bool {
	_, ok := m.paths[path.String()]
	return ok
}

// Insert returns a mask that additionally covers the given path.
func (m FieldMask) Insert(path FieldPath) FieldMask {
	paths := make([]FieldPath, 0, len(m.paths)+1)
	paths = append(paths, m.Paths()...)
	paths = append(paths, path)
	return NewFieldMask(paths...)
}

// Union returns a mask covering the paths of both masks.
func (m FieldMask) Union(other FieldMask) FieldMask {
	paths := append(m.Paths(), other.Paths()...)
	return NewFieldMask(paths...)
}

// Paths returns the mask's paths in sorted order.
func (m FieldMask) Paths() []FieldPath {
	keys := make([]string, 0, len(m.paths))
	for key := range m.paths {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	paths := make([]FieldPath, 0, len(keys))
	for _, key := range keys {
		paths = append(paths, m.paths[key])
	}
	return paths
}

// Len returns the number of paths in the mask.
func (m FieldMask) Len() int {
	return len(m.paths)
}

// String returns a stable representation of the mask.
func (m FieldMask) String() string {
	var parts []string
	for _, path := range m.Paths() {
		parts = append(parts, path.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
