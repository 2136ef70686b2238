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

func listenTarget(path string) core.Target {
	return core.NewQuery(model.ParseResourcePath(path)).ToTarget()
}

func TestTargetCache(t *testing.T) {
	t.Run("allocated target ids are odd and increasing test", func(t *testing.T) {
		cache := newTestPersistence(t).GetTargetCache()

		id1, err := cache.AllocateTargetID()
		assert.NoError(t, err)
		id2, err := cache.AllocateTargetID()
		assert.NoError(t, err)

		assert.Equal(t, local.TargetID(1), id1%2)
		assert.Equal(t, id1+2, id2)
	})

	t.Run("target data round trips by canonical id test", func(t *testing.T) {
		cache := newTestPersistence(t).GetTargetCache()
		data := local.NewTargetData(listenTarget("rooms"), 2, 1, local.TargetPurposeListen)
		assert.NoError(t, cache.AddTargetData(data))

		got, err := cache.GetTargetData(listenTarget("rooms"))
		assert.NoError(t, err)
		assert.NotNil(t, got)
		assert.Equal(t, local.TargetID(2), got.TargetID())

		got, err = cache.GetTargetData(listenTarget("halls"))
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update replaces the stored resume state test", func(t *testing.T) {
		cache := newTestPersistence(t).GetTargetCache()
		data := local.NewTargetData(listenTarget("rooms"), 2, 1, local.TargetPurposeListen)
		assert.NoError(t, cache.AddTargetData(data))

		updated := data.
			WithResumeToken([]byte("token"), version(5)).
			WithLastLimboFreeSnapshotVersion(version(4))
		assert.NoError(t, cache.UpdateTargetData(updated))

		got, err := cache.GetTargetData(listenTarget("rooms"))
		assert.NoError(t, err)
		assert.NotNil(t, got)
		assert.Equal(t, []byte("token"), got.ResumeToken())
		assert.True(t, got.SnapshotVersion().Equals(version(5)))
		assert.True(t, got.LastLimboFreeSnapshotVersion().Equals(version(4)))

		count, err := cache.TargetCount()
		assert.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("matching keys track membership per target test", func(t *testing.T) {
		cache := newTestPersistence(t).GetTargetCache()

		assert.NoError(t, cache.AddMatchingKeys(
			model.NewDocumentKeySet(key("rooms/a"), key("rooms/b")), 2))
		assert.NoError(t, cache.AddMatchingKeys(
			model.NewDocumentKeySet(key("rooms/b")), 4))

		keys, err := cache.GetMatchingKeys(2)
		assert.NoError(t, err)
		assert.Equal(t, 2, keys.Cardinality())

		assert.NoError(t, cache.RemoveMatchingKeys(model.NewDocumentKeySet(key("rooms/a")), 2))
		keys, err = cache.GetMatchingKeys(2)
		assert.NoError(t, err)
		assert.Equal(t, 1, keys.Cardinality())
		assert.True(t, keys.Contains(key("rooms/b")))

		// rooms/b is still held by target 4 after target 2 clears.
		assert.NoError(t, cache.RemoveMatchingKeysForTarget(2))
		contained, err := cache.ContainsKey(key("rooms/b"))
		assert.NoError(t, err)
		assert.True(t, contained)
		contained, err = cache.ContainsKey(key("rooms/a"))
		assert.NoError(t, err)
		assert.False(t, contained)
	})

	t.Run("removing a target clears its matching keys test", func(t *testing.T) {
		cache := newTestPersistence(t).GetTargetCache()
		data := local.NewTargetData(listenTarget("rooms"), 2, 1, local.TargetPurposeListen)
		assert.NoError(t, cache.AddTargetData(data))
		assert.NoError(t, cache.AddMatchingKeys(model.NewDocumentKeySet(key("rooms/a")), 2))

		assert.NoError(t, cache.RemoveTargetData(data))

		got, err := cache.GetTargetData(listenTarget("rooms"))
		assert.NoError(t, err)
		assert.Nil(t, got)
		contained, err := cache.ContainsKey(key("rooms/a"))
		assert.NoError(t, err)
		assert.False(t, contained)
	})

	t.Run("last remote snapshot version persists test", func(t *testing.T) {
		cache := newTestPersistence(t).GetTargetCache()

		got, err := cache.LastRemoteSnapshotVersion()
		assert.NoError(t, err)
		assert.True(t, got.IsZero())

		assert.NoError(t, cache.SetLastRemoteSnapshotVersion(version(7)))
		got, err = cache.LastRemoteSnapshotVersion()
		assert.NoError(t, err)
		assert.True(t, got.Equals(version(7)))
	})
}
