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

	"github.com/ember-db/ember/local"
	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/model"
)

func TestIndexManager(t *testing.T) {
	t.Run("collection parents come back sorted and deduplicated test", func(t *testing.T) {
		manager := newTestPersistence(t).GetIndexManager()

		assert.NoError(t, manager.AddToCollectionParentIndex(model.ParseResourcePath("rooms/b/messages")))
		assert.NoError(t, manager.AddToCollectionParentIndex(model.ParseResourcePath("rooms/a/messages")))
		assert.NoError(t, manager.AddToCollectionParentIndex(model.ParseResourcePath("rooms/a/messages")))
		assert.NoError(t, manager.AddToCollectionParentIndex(model.ParseResourcePath("rooms")))

		parents, err := manager.GetCollectionParents("messages")
		assert.NoError(t, err)
		assert.Len(t, parents, 2)
		assert.Equal(t, "rooms/a", parents[0].String())
		assert.Equal(t, "rooms/b", parents[1].String())

		parents, err = manager.GetCollectionParents("rooms")
		assert.NoError(t, err)
		assert.Len(t, parents, 1)
		assert.Equal(t, "", parents[0].String())
	})

	t.Run("even-length paths are rejected test", func(t *testing.T) {
		manager := newTestPersistence(t).GetIndexManager()
		assert.Error(t, manager.AddToCollectionParentIndex(model.ParseResourcePath("rooms/a")))
	})

	t.Run("writes feed the collection parent index test", func(t *testing.T) {
		p := newTestPersistence(t)
		assert.NoError(t, p.GetRemoteDocumentCache().Add(foundDoc("rooms/a/messages/1", 1), version(1)))

		parents, err := p.GetIndexManager().GetCollectionParents("messages")
		assert.NoError(t, err)
		assert.Len(t, parents, 1)
		assert.Equal(t, "rooms/a", parents[0].String())
	})
}

func TestBundleCache(t *testing.T) {
	t.Run("bundle metadata round trip test", func(t *testing.T) {
		cache := newTestPersistence(t).GetBundleCache()

		got, err := cache.GetBundleMetadata("bundle-1")
		assert.NoError(t, err)
		assert.Nil(t, got)

		assert.NoError(t, cache.SaveBundleMetadata(local.BundleMetadata{
			BundleID:       "bundle-1",
			Version:        1,
			CreateTime:     version(10),
			TotalDocuments: 2,
			TotalBytes:     1024,
		}))

		got, err = cache.GetBundleMetadata("bundle-1")
		assert.NoError(t, err)
		assert.NotNil(t, got)
		assert.True(t, got.CreateTime.Equals(version(10)))
		assert.Equal(t, 2, got.TotalDocuments)
	})

	t.Run("named query round trip test", func(t *testing.T) {
		cache := newTestPersistence(t).GetBundleCache()

		assert.NoError(t, cache.SaveNamedQuery(local.NamedQuery{
			Name:     "recent-rooms",
			Query:    core.NewQuery(model.ParseResourcePath("rooms")),
			ReadTime: version(5),
		}))

		got, err := cache.GetNamedQuery("recent-rooms")
		assert.NoError(t, err)
		assert.NotNil(t, got)
		assert.True(t, got.ReadTime.Equals(version(5)))
		assert.Equal(t, "rooms", got.Query.Path().String())

		got, err = cache.GetNamedQuery("missing")
		assert.NoError(t, err)
		assert.Nil(t, got)
	})
}
