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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// DocumentKeySet is an unordered set of document keys.
type DocumentKeySet = mapset.Set[DocumentKey]

// NewDocumentKeySet creates a key set of the given keys.
func NewDocumentKeySet(keys ...DocumentKey) DocumentKeySet {
	return mapset.NewThreadUnsafeSet(keys...)
}

// KeysOf returns the set of keys present in the given document map.
func KeysOf(docs DocumentMap) DocumentKeySet {
	keys := NewDocumentKeySet()
	for key := range docs {
		keys.Add(key)
	}
	return keys
}

// SortedKeys returns the keys of the given set in path order.
func SortedKeys(keys DocumentKeySet) []DocumentKey {
	sorted := keys.ToSlice()
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})
	return sorted
}

// DocumentMap maps document keys to documents.
type DocumentMap map[DocumentKey]*Document

// MutationMap maps document keys to single mutations.
type MutationMap map[DocumentKey]Mutation

// OverlayMap maps document keys to overlays.
type OverlayMap map[DocumentKey]Overlay

// FieldMaskMap maps document keys to optional field masks. A nil entry means
// "no mask": the document's whole value was produced locally.
type FieldMaskMap map[DocumentKey]*FieldMask
