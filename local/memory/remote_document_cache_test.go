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

package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

func TestRemoteDocumentCache(t *testing.T) {
	t.Run("get returns an independent copy test", func(t *testing.T) {
		cache := newTestPersistence(t).GetRemoteDocumentCache()
		assert.NoError(t, cache.Add(foundDoc("rooms/a", 1, entry("n", value.Integer(1))), version(1)))

		first, err := cache.Get(key("rooms/a"))
		assert.NoError(t, err)
		first.SetData(fields(entry("n", value.Integer(99))))

		second, err := cache.Get(key("rooms/a"))
		assert.NoError(t, err)
		got, _ := second.Field(value.ParseFieldPath("n"))
		assert.True(t, value.Equals(value.Integer(1), got))
	})

	t.Run("uncached keys read as invalid documents test", func(t *testing.T) {
		cache := newTestPersistence(t).GetRemoteDocumentCache()

		doc, err := cache.Get(key("rooms/missing"))
		assert.NoError(t, err)
		assert.False(t, doc.IsValidDocument())
		assert.Equal(t, key("rooms/missing"), doc.Key())

		docs, err := cache.GetAll(model.NewDocumentKeySet(key("rooms/missing")))
		assert.NoError(t, err)
		assert.Len(t, docs, 1)
		assert.False(t, docs[key("rooms/missing")].IsValidDocument())
	})

	t.Run("add replaces and remove deletes test", func(t *testing.T) {
		cache := newTestPersistence(t).GetRemoteDocumentCache()
		assert.NoError(t, cache.Add(foundDoc("rooms/a", 1), version(1)))
		assert.NoError(t, cache.Add(foundDoc("rooms/a", 2), version(2)))

		size, err := cache.Size()
		assert.NoError(t, err)
		assert.Equal(t, 1, size)

		doc, err := cache.Get(key("rooms/a"))
		assert.NoError(t, err)
		assert.True(t, doc.Version().Equals(version(2)))

		assert.NoError(t, cache.Remove(key("rooms/a")))
		doc, err = cache.Get(key("rooms/a"))
		assert.NoError(t, err)
		assert.False(t, doc.IsValidDocument())
	})

	t.Run("collection scans exclude subcollections test", func(t *testing.T) {
		cache := newTestPersistence(t).GetRemoteDocumentCache()
		assert.NoError(t, cache.Add(foundDoc("rooms/a", 1), version(1)))
		assert.NoError(t, cache.Add(foundDoc("rooms/a/messages/1", 1), version(1)))
		assert.NoError(t, cache.Add(foundDoc("halls/b", 1), version(1)))

		docs, err := cache.GetAllFromCollection(
			model.ParseResourcePath("rooms"), model.ZeroIndexOffset(), model.NewDocumentKeySet())
		assert.NoError(t, err)
		assert.Len(t, docs, 1)
		assert.Contains(t, docs, key("rooms/a"))
	})

	t.Run("offsets skip documents read at or before them test", func(t *testing.T) {
		cache := newTestPersistence(t).GetRemoteDocumentCache()
		assert.NoError(t, cache.Add(foundDoc("rooms/a", 1), version(1)))
		assert.NoError(t, cache.Add(foundDoc("rooms/b", 2), version(2)))
		assert.NoError(t, cache.Add(foundDoc("rooms/c", 3), version(3)))

		docs, err := cache.GetAllFromCollection(
			model.ParseResourcePath("rooms"),
			model.OffsetAfterVersion(version(2)),
			model.NewDocumentKeySet())
		assert.NoError(t, err)
		assert.Len(t, docs, 1)
		assert.Contains(t, docs, key("rooms/c"))
	})

	t.Run("mutated keys bypass the offset test", func(t *testing.T) {
		cache := newTestPersistence(t).GetRemoteDocumentCache()
		assert.NoError(t, cache.Add(foundDoc("rooms/a", 1), version(1)))
		assert.NoError(t, cache.Add(foundDoc("rooms/b", 3), version(3)))

		docs, err := cache.GetAllFromCollection(
			model.ParseResourcePath("rooms"),
			model.OffsetAfterVersion(version(2)),
			model.NewDocumentKeySet(key("rooms/a")))
		assert.NoError(t, err)
		assert.Len(t, docs, 2)
		assert.Contains(t, docs, key("rooms/a"))
		assert.Contains(t, docs, key("rooms/b"))
	})

	t.Run("collection group scans span parents test", func(t *testing.T) {
		cache := newTestPersistence(t).GetRemoteDocumentCache()
		assert.NoError(t, cache.Add(foundDoc("rooms/a/messages/1", 1), version(1)))
		assert.NoError(t, cache.Add(foundDoc("halls/b/messages/2", 1), version(1)))
		assert.NoError(t, cache.Add(foundDoc("rooms/a", 1), version(1)))

		docs, err := cache.GetAllFromCollectionGroup(
			"messages", model.ZeroIndexOffset(), model.NewDocumentKeySet())
		assert.NoError(t, err)
		assert.Len(t, docs, 2)
		assert.Contains(t, docs, key("rooms/a/messages/1"))
		assert.Contains(t, docs, key("halls/b/messages/2"))
	})
}
