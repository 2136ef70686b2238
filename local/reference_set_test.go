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

package local_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ember-db/ember/local"
	"github.com/ember-db/ember/pkg/model"
)

func TestReferenceSet(t *testing.T) {
	keyA := model.DocumentKeyFromString("rooms/a")
	keyB := model.DocumentKeyFromString("rooms/b")

	t.Run("references are queryable from both sides test", func(t *testing.T) {
		refs := local.NewReferenceSet()
		assert.True(t, refs.IsEmpty())

		refs.AddReference(keyA, 1)
		refs.AddReference(keyA, 2)
		refs.AddReference(keyB, 1)

		assert.False(t, refs.IsEmpty())
		assert.True(t, refs.ContainsKey(keyA))
		assert.True(t, refs.ContainsKey(keyB))
		assert.Equal(t, 2, refs.ReferencesForID(1).Cardinality())
		assert.Equal(t, 1, refs.ReferencesForID(2).Cardinality())
	})

	t.Run("a key stays referenced until its last id releases it test", func(t *testing.T) {
		refs := local.NewReferenceSet()
		refs.AddReference(keyA, 1)
		refs.AddReference(keyA, 2)

		refs.RemoveReference(keyA, 1)
		assert.True(t, refs.ContainsKey(keyA))

		refs.RemoveReference(keyA, 2)
		assert.False(t, refs.ContainsKey(keyA))
		assert.True(t, refs.IsEmpty())
	})

	t.Run("removing an id returns its keys test", func(t *testing.T) {
		refs := local.NewReferenceSet()
		refs.AddReferences(model.NewDocumentKeySet(keyA, keyB), 1)
		refs.AddReference(keyB, 2)

		removed := refs.RemoveReferencesForID(1)
		assert.Equal(t, 2, removed.Cardinality())
		assert.False(t, refs.ContainsKey(keyA))
		assert.True(t, refs.ContainsKey(keyB))

		assert.Equal(t, 0, refs.RemoveReferencesForID(99).Cardinality())
	})
}
