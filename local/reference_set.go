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

package local

import (
	"github.com/ember-db/ember/pkg/model"
)

// ReferenceSet tracks which ids (target ids or batch ids) reference which
// document keys, queryable from both sides.
type ReferenceSet struct {
	byKey map[model.DocumentKey]map[TargetID]struct{}
	byID  map[TargetID]model.DocumentKeySet
}

// NewReferenceSet creates an empty reference set.
func NewReferenceSet() *ReferenceSet {
	return &ReferenceSet{
		byKey: make(map[model.DocumentKey]map[TargetID]struct{}),
		byID:  make(map[TargetID]model.DocumentKeySet),
	}
}

// AddReference records that id references key.
func (s *ReferenceSet) AddReference(key model.DocumentKey, id TargetID) {
	ids, ok := s.byKey[key]
	if !ok {
		ids = make(map[TargetID]struct{})
		s.byKey[key] = ids
	}
	ids[id] = struct{}{}

	keys, ok := s.byID[id]
	if !ok {
		keys = model.NewDocumentKeySet()
		s.byID[id] = keys
	}
	keys.Add(key)
}

// AddReferences records that id references every given key.
func (s *ReferenceSet) AddReferences(keys model.DocumentKeySet, id TargetID) {
	for _, key := range keys.ToSlice() {
		s.AddReference(key, id)
	}
}

// RemoveReference drops the reference from id to key.
func (s *ReferenceSet) RemoveReference(key model.DocumentKey, id TargetID) {
	if ids, ok := s.byKey[key]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byKey, key)
		}
	}
	if keys, ok := s.byID[id]; ok {
		keys.Remove(key)
		if keys.Cardinality() == 0 {
			delete(s.byID, id)
		}
	}
}

// RemoveReferences drops the references from id to every given key.
func (s *ReferenceSet) RemoveReferences(keys model.DocumentKeySet, id TargetID) {
	for _, key := range keys.ToSlice() {
		s.RemoveReference(key, id)
	}
}

// RemoveReferencesForID drops every reference held by id and returns the keys
// it referenced.
func (s *ReferenceSet) RemoveReferencesForID(id TargetID) model.DocumentKeySet {
	keys, ok := s.byID[id]
	if !ok {
		return model.NewDocumentKeySet()
	}
	removed := model.NewDocumentKeySet(keys.ToSlice()...)
	s.RemoveReferences(removed, id)
	return removed
}

// ContainsKey returns whether any id references the key.
func (s *ReferenceSet) ContainsKey(key model.DocumentKey) bool {
	_, ok := s.byKey[key]
	return ok
}

// ReferencesForID returns the keys referenced by id.
func (s *ReferenceSet) ReferencesForID(id TargetID) model.DocumentKeySet {
	keys, ok := s.byID[id]
	if !ok {
		return model.NewDocumentKeySet()
	}
	return model.NewDocumentKeySet(keys.ToSlice()...)
}

// IsEmpty returns whether no references are recorded.
func (s *ReferenceSet) IsEmpty() bool {
	return len(s.byKey) == 0
}
