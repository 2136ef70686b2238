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

// Package model provides the document data model of the client core: resource
// paths, document keys, snapshot versions, documents, mutations and the
// batches and overlays layered on top of them.
package model

import (
	"strings"

	"github.com/ember-db/ember/pkg/model/value"
)

// ResourcePath is a slash-separated path to a collection or document inside
// the database. Paths alternate collection and document segments.
type ResourcePath struct {
	segments []string
}

// NewResourcePath creates a resource path of the given segments.
func NewResourcePath(segments ...string) ResourcePath {
	return ResourcePath{segments: segments}
}

// ParseResourcePath parses a slash-separated path string.
func ParseResourcePath(path string) ResourcePath {
	if path == "" {
		return ResourcePath{}
	}
	return ResourcePath{segments: strings.Split(path, "/")}
}

// Segments returns the segments of this path.
func (p ResourcePath) Segments() []string {
	return p.segments
}

// Len returns the number of segments.
func (p ResourcePath) Len() int {
	return len(p.segments)
}

// IsEmpty returns whether this path has no segments.
func (p ResourcePath) IsEmpty() bool {
	return len(p.segments) == 0
}

// LastSegment returns the final segment of this path.
func (p ResourcePath) LastSegment() string {
	return p.segments[len(p.segments)-1]
}

// Append returns this path extended by one segment.
func (p ResourcePath) Append(segment string) ResourcePath {
	segments := make([]string, 0, len(p.segments)+1)
	segments = append(segments, p.segments...)
	segments = append(segments, segment)
	return ResourcePath{segments: segments}
}

// PopLast returns this path without its final segment.
func (p ResourcePath) PopLast() ResourcePath {
	return ResourcePath{segments: p.segments[:len(p.segments)-1]}
}

// IsPrefixOf returns whether this path is a prefix of, or equal to, other.
func (p ResourcePath) IsPrefixOf(other ResourcePath) bool {
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

// IsImmediateParentOf returns whether other is exactly one segment below this
// path. Collection scans rely on this to exclude nested subcollections.
func (p ResourcePath) IsImmediateParentOf(other ResourcePath) bool {
	return len(other.segments) == len(p.segments)+1 && p.IsPrefixOf(other)
}

// Compare orders paths segment-wise lexicographically; a path that is a
// strict prefix of another sorts first.
func (p ResourcePath) Compare(other ResourcePath) value.Result {
	for i := 0; i < len(p.segments) && i < len(other.segments); i++ {
		if cmp := strings.Compare(p.segments[i], other.segments[i]); cmp != 0 {
			if cmp < 0 {
				return value.Ascending
			}
			return value.Descending
		}
	}
	switch {
	case len(p.segments) < len(other.segments):
		return value.Ascending
	case len(p.segments) > len(other.segments):
		return value.Descending
	default:
		return value.Same
	}
}

// Equals returns whether two paths are identical.
func (p ResourcePath) Equals(other ResourcePath) bool {
	return p.Compare(other) == value.Same
}

// String returns the slash-separated representation of this path.
func (p ResourcePath) String() string {
	return strings.Join(p.segments, "/")
}
