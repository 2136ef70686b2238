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
	"github.com/ember-db/ember/local/memory"
	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

type storeFixture struct {
	persistence *memory.Persistence
	store       *local.LocalStore
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	p := newTestPersistence(t)
	return &storeFixture{
		persistence: p,
		store:       local.NewLocalStore(p, local.NewQueryEngine(), testUserID),
	}
}

func (f *storeFixture) allocateCollection(t *testing.T, path string) local.TargetData {
	t.Helper()
	data, err := f.store.AllocateTarget(
		core.NewQuery(model.ParseResourcePath(path)).ToTarget())
	assert.NoError(t, err)
	return data
}

// addedEvent builds a snapshot that reports every given document as newly
// matching the target.
func addedEvent(snapshot model.SnapshotVersion, targetID local.TargetID, docs ...*model.Document) local.RemoteEvent {
	change := local.NewTargetChange()
	change.ResumeToken = []byte("resume-token")
	updates := make(model.DocumentMap)
	for _, doc := range docs {
		change.AddedDocuments.Add(doc.Key())
		updates[doc.Key()] = doc
	}
	return local.RemoteEvent{
		SnapshotVersion: snapshot,
		TargetChanges:   map[local.TargetID]local.TargetChange{targetID: change},
		DocumentUpdates: updates,
	}
}

// pinKeys pins documents through a materialized view so eager collection
// cannot evict them.
func pinKeys(t *testing.T, store *local.LocalStore, targetID local.TargetID, keys ...model.DocumentKey) {
	t.Helper()
	assert.NoError(t, store.NotifyLocalViewChanges([]local.LocalViewChanges{
		local.NewLocalViewChanges(targetID, true,
			model.NewDocumentKeySet(keys...), model.NewDocumentKeySet()),
	}))
}

func fieldString(t *testing.T, doc *model.Document, field string) string {
	t.Helper()
	v, ok := doc.Field(value.ParseFieldPath(field))
	assert.True(t, ok)
	return v.StringValue()
}

func TestLocalStoreWrites(t *testing.T) {
	t.Run("local writes are immediately visible test", func(t *testing.T) {
		f := newStoreFixture(t)

		result, err := f.store.WriteLocally([]model.Mutation{setMutation("rooms/a")})
		assert.NoError(t, err)
		assert.Equal(t, model.BatchID(1), result.BatchID)

		doc, err := f.store.GetDocument(key("rooms/a"))
		assert.NoError(t, err)
		assert.True(t, doc.IsFoundDocument())
		assert.True(t, doc.HasLocalMutations())
	})

	t.Run("acknowledged batches commit to the remote cache test", func(t *testing.T) {
		f := newStoreFixture(t)
		_, err := f.store.WriteLocally([]model.Mutation{setMutation("rooms/a")})
		assert.NoError(t, err)
		pinKeys(t, f.store, 99, key("rooms/a"))

		batch, err := f.store.NextMutationBatch(model.InitialLargestBatchID)
		assert.NoError(t, err)
		assert.NotNil(t, batch)

		docs, err := f.store.AcknowledgeBatch(model.NewMutationBatchResult(
			*batch, version(5), []model.MutationResult{{Version: version(5)}}, []byte("stream")))
		assert.NoError(t, err)

		doc := docs[key("rooms/a")]
		assert.True(t, doc.IsFoundDocument())
		assert.True(t, doc.Version().Equals(version(5)))
		assert.True(t, doc.HasCommittedMutations())
		assert.False(t, doc.HasLocalMutations())

		highest, err := f.store.GetHighestUnacknowledgedBatchID()
		assert.NoError(t, err)
		assert.Equal(t, model.InitialLargestBatchID, highest)

		next, err := f.store.NextMutationBatch(model.InitialLargestBatchID)
		assert.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("rejected batches revert to the remote state test", func(t *testing.T) {
		f := newStoreFixture(t)
		target := f.allocateCollection(t, "rooms")
		_, err := f.store.ApplyRemoteEvent(addedEvent(version(1), target.TargetID(),
			foundDoc("rooms/a", 1, entry("title", value.String("original")))))
		assert.NoError(t, err)

		result, err := f.store.WriteLocally([]model.Mutation{
			patchMutation("rooms/a", "title", value.String("local")),
		})
		assert.NoError(t, err)

		doc, err := f.store.GetDocument(key("rooms/a"))
		assert.NoError(t, err)
		assert.Equal(t, "local", fieldString(t, doc, "title"))
		assert.True(t, doc.HasLocalMutations())

		docs, err := f.store.RejectBatch(result.BatchID)
		assert.NoError(t, err)
		doc = docs[key("rooms/a")]
		assert.Equal(t, "original", fieldString(t, doc, "title"))
		assert.False(t, doc.HasPendingWrites())
		assert.True(t, doc.Version().Equals(version(1)))
	})

	t.Run("rejecting an unknown batch fails test", func(t *testing.T) {
		f := newStoreFixture(t)
		_, err := f.store.RejectBatch(42)
		assert.Error(t, err)
	})
}

func TestLocalStoreRemoteEvents(t *testing.T) {
	t.Run("newer cached versions win over stale updates test", func(t *testing.T) {
		f := newStoreFixture(t)
		target := f.allocateCollection(t, "rooms")

		_, err := f.store.ApplyRemoteEvent(addedEvent(version(3), target.TargetID(),
			foundDoc("rooms/a", 3, entry("title", value.String("new")))))
		assert.NoError(t, err)

		stale, err := f.store.ApplyRemoteEvent(addedEvent(version(4), target.TargetID(),
			foundDoc("rooms/a", 2, entry("title", value.String("old")))))
		assert.NoError(t, err)
		assert.NotContains(t, stale, key("rooms/a"))

		doc, err := f.store.GetDocument(key("rooms/a"))
		assert.NoError(t, err)
		assert.True(t, doc.Version().Equals(version(3)))
		assert.Equal(t, "new", fieldString(t, doc, "title"))

		// The cache-wide snapshot version still advances.
		remoteVersion, err := f.persistence.GetTargetCache().LastRemoteSnapshotVersion()
		assert.NoError(t, err)
		assert.True(t, remoteVersion.Equals(version(4)))
	})

	t.Run("target membership follows the snapshot test", func(t *testing.T) {
		f := newStoreFixture(t)
		target := f.allocateCollection(t, "rooms")

		_, err := f.store.ApplyRemoteEvent(addedEvent(version(1), target.TargetID(),
			foundDoc("rooms/a", 1), foundDoc("rooms/b", 1)))
		assert.NoError(t, err)

		keys, err := f.store.GetMatchingKeys(target.TargetID())
		assert.NoError(t, err)
		assert.Equal(t, 2, keys.Cardinality())
		assert.True(t, keys.Contains(key("rooms/a")))
	})

	t.Run("released targets evict unreferenced documents test", func(t *testing.T) {
		f := newStoreFixture(t)
		target := f.allocateCollection(t, "rooms")
		_, err := f.store.ApplyRemoteEvent(addedEvent(version(1), target.TargetID(),
			foundDoc("rooms/a", 1), foundDoc("rooms/b", 1)))
		assert.NoError(t, err)

		// A live view still displays rooms/a when the listen stops.
		pinKeys(t, f.store, 99, key("rooms/a"))
		assert.NoError(t, f.store.ReleaseTarget(target.TargetID()))

		doc, err := f.store.GetDocument(key("rooms/b"))
		assert.NoError(t, err)
		assert.False(t, doc.IsValidDocument())

		doc, err = f.store.GetDocument(key("rooms/a"))
		assert.NoError(t, err)
		assert.True(t, doc.IsFoundDocument())
	})

	t.Run("reallocating a target reuses its cached data test", func(t *testing.T) {
		f := newStoreFixture(t)
		first := f.allocateCollection(t, "rooms")
		second := f.allocateCollection(t, "rooms")
		assert.Equal(t, first.TargetID(), second.TargetID())

		other := f.allocateCollection(t, "halls")
		assert.NotEqual(t, first.TargetID(), other.TargetID())
	})
}

func TestLocalStoreQueries(t *testing.T) {
	t.Run("query results merge remote documents and local writes test", func(t *testing.T) {
		f := newStoreFixture(t)
		target := f.allocateCollection(t, "rooms")
		_, err := f.store.ApplyRemoteEvent(addedEvent(version(1), target.TargetID(),
			foundDoc("rooms/a", 1)))
		assert.NoError(t, err)
		_, err = f.store.WriteLocally([]model.Mutation{setMutation("rooms/b")})
		assert.NoError(t, err)

		result, err := f.store.ExecuteQuery(core.NewQuery(model.ParseResourcePath("rooms")), true)
		assert.NoError(t, err)
		assert.Len(t, result.Documents, 2)
		assert.True(t, result.Documents[key("rooms/b")].HasLocalMutations())
		assert.Equal(t, 1, result.RemoteKeys.Cardinality())
		assert.True(t, result.RemoteKeys.Contains(key("rooms/a")))
	})
}

func TestLocalStoreBundles(t *testing.T) {
	t.Run("bundles newer than the loaded copy apply test", func(t *testing.T) {
		f := newStoreFixture(t)
		metadata := local.BundleMetadata{BundleID: "bundle-1", CreateTime: version(2)}

		newer, err := f.store.HasNewerBundle(metadata)
		assert.NoError(t, err)
		assert.False(t, newer)

		assert.NoError(t, f.store.SaveBundle(metadata))

		newer, err = f.store.HasNewerBundle(metadata)
		assert.NoError(t, err)
		assert.True(t, newer)

		newer, err = f.store.HasNewerBundle(local.BundleMetadata{
			BundleID: "bundle-1", CreateTime: version(3)})
		assert.NoError(t, err)
		assert.False(t, newer)
	})

	t.Run("bundled documents never clobber newer cached state test", func(t *testing.T) {
		f := newStoreFixture(t)
		target := f.allocateCollection(t, "rooms")
		_, err := f.store.ApplyRemoteEvent(addedEvent(version(3), target.TargetID(),
			foundDoc("rooms/a", 3, entry("title", value.String("live")))))
		assert.NoError(t, err)

		changed, err := f.store.ApplyBundledDocuments(model.DocumentMap{
			key("rooms/a"): foundDoc("rooms/a", 2, entry("title", value.String("bundled"))),
			key("rooms/b"): foundDoc("rooms/b", 1),
		})
		assert.NoError(t, err)
		assert.NotContains(t, changed, key("rooms/a"))
		assert.Contains(t, changed, key("rooms/b"))

		doc, err := f.store.GetDocument(key("rooms/a"))
		assert.NoError(t, err)
		assert.Equal(t, "live", fieldString(t, doc, "title"))
	})

	t.Run("named queries record their bundled result keys test", func(t *testing.T) {
		f := newStoreFixture(t)
		query := core.NewQuery(model.ParseResourcePath("rooms"))
		named := local.NamedQuery{Name: "recent-rooms", Query: query, ReadTime: version(5)}

		assert.NoError(t, f.store.SaveNamedQuery(named,
			model.NewDocumentKeySet(key("rooms/a"))))

		got, err := f.store.GetNamedQuery("recent-rooms")
		assert.NoError(t, err)
		assert.NotNil(t, got)
		assert.True(t, got.ReadTime.Equals(version(5)))

		targetData, err := f.store.GetTargetData(query.ToTarget())
		assert.NoError(t, err)
		assert.NotNil(t, targetData)
		assert.True(t, targetData.SnapshotVersion().Equals(version(5)))

		keys, err := f.store.GetMatchingKeys(targetData.TargetID())
		assert.NoError(t, err)
		assert.True(t, keys.Contains(key("rooms/a")))
	})
}

func TestLocalStoreUserChanges(t *testing.T) {
	t.Run("pending writes stay with their user test", func(t *testing.T) {
		f := newStoreFixture(t)
		_, err := f.store.WriteLocally([]model.Mutation{setMutation("rooms/a")})
		assert.NoError(t, err)

		docs, err := f.store.HandleUserChange("other-user")
		assert.NoError(t, err)
		assert.False(t, docs[key("rooms/a")].IsValidDocument())

		_, err = f.store.WriteLocally([]model.Mutation{setMutation("rooms/b")})
		assert.NoError(t, err)

		docs, err = f.store.HandleUserChange(testUserID)
		assert.NoError(t, err)
		assert.True(t, docs[key("rooms/a")].HasLocalMutations())
		assert.False(t, docs[key("rooms/b")].IsValidDocument())
	})
}
