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

package model

import (
	"fmt"

	"github.com/ember-db/ember/pkg/model/value"
)

// DocumentKey identifies a document across every cache and queue layer. It
// wraps an even-length resource path (collection/doc alternating) and is
// comparable, so it can serve as a map key.
type DocumentKey struct {
	path string
}

// NewDocumentKey creates a key from the given resource path. The path must
// have an even number of segments.
func NewDocumentKey(path ResourcePath) DocumentKey {
	if path.Len()%2 != 0 {
		panic(fmt.Sprintf("invalid document key path: %q", path.String()))
	}
	return DocumentKey{path: path.String()}
}

// DocumentKeyFromString parses a slash-separated document path.
func DocumentKeyFromString(path string) DocumentKey {
	return NewDocumentKey(ParseResourcePath(path))
}

// IsDocumentKeyPath returns whether the given path can identify a document.
func IsDocumentKeyPath(path ResourcePath) bool {
	return path.Len()%2 == 0
}

// Path returns the resource path of this key.
func (k DocumentKey) Path() ResourcePath {
	return ParseResourcePath(k.path)
}

// CollectionPath returns the path of the collection containing this document.
func (k DocumentKey) CollectionPath() ResourcePath {
	return k.Path().PopLast()
}

// CollectionGroup returns the id of the collection directly containing this
// document.
func (k DocumentKey) CollectionGroup() string {
	return k.CollectionPath().LastSegment()
}

// DocumentID returns the final path segment.
func (k DocumentKey) DocumentID() string {
	return k.Path().LastSegment()
}

// HasCollectionID returns whether this key's direct parent collection has the
// given id.
func (k DocumentKey) HasCollectionID(collectionID string) bool {
	return k.CollectionGroup() == collectionID
}

// Compare orders keys by their paths, segment-wise lexicographically.
func (k DocumentKey) Compare(other DocumentKey) value.Result {
	return k.Path().Compare(other.Path())
}

// IsZero returns whether this is the zero key.
func (k DocumentKey) IsZero() bool {
	return k.path == ""
}

// String returns the slash-separated path of this key.
func (k DocumentKey) String() string {
	return k.path
}
