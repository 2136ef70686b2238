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

// Package local implements the client's local view of the database: the
// remote document cache, the mutation queue and its overlay cache, the query
// engine executing structured queries against them, and the garbage
// collection keeping the caches bounded.
package local

import (
	"time"

	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/model"
)

// MutationQueue holds one user's unacknowledged mutation batches in FIFO
// order. Batch ids are assigned monotonically; acknowledgement and rejection
// both remove batches from the front (or tombstone them in place to keep the
// id range contiguous).
type MutationQueue interface {
	// IsEmpty returns whether the queue holds no batches.
	IsEmpty() (bool, error)

	// AddMutationBatch appends a new batch of mutations to the queue and
	// assigns it the next batch id.
	AddMutationBatch(
		localWriteTime time.Time,
		baseMutations []model.Mutation,
		mutations []model.Mutation,
	) (model.MutationBatch, error)

	// LookupMutationBatch returns the batch with the given id, or nil.
	LookupMutationBatch(batchID model.BatchID) (*model.MutationBatch, error)

	// NextMutationBatchAfterBatchID returns the first batch whose id is
	// strictly greater than the given id, or nil.
	NextMutationBatchAfterBatchID(batchID model.BatchID) (*model.MutationBatch, error)

	// AllMutationBatches returns every batch in queue order.
	AllMutationBatches() ([]model.MutationBatch, error)

	// AllMutationBatchesAffectingDocumentKey returns, in queue order, every
	// batch containing a mutation of the given document.
	AllMutationBatchesAffectingDocumentKey(key model.DocumentKey) ([]model.MutationBatch, error)

	// AllMutationBatchesAffectingDocumentKeys returns, in queue order, every
	// batch containing a mutation of any of the given documents.
	AllMutationBatchesAffectingDocumentKeys(keys model.DocumentKeySet) ([]model.MutationBatch, error)

	// AllMutationBatchesAffectingQuery returns, in queue order, every batch
	// containing a mutation of a document in the query's collection.
	AllMutationBatchesAffectingQuery(query core.Query) ([]model.MutationBatch, error)

	// RemoveMutationBatch removes an acknowledged or rejected batch. Removing
	// a batch other than the oldest tombstones it in place instead.
	RemoveMutationBatch(batch model.MutationBatch) error

	// HighestUnacknowledgedBatchID returns the largest batch id in the queue,
	// or InitialLargestBatchID when the queue is empty.
	HighestUnacknowledgedBatchID() (model.BatchID, error)
}

// DocumentOverlayCache stores, per user, the squashed local effect of the
// pending mutation batches on each mutated document.
type DocumentOverlayCache interface {
	// GetOverlay returns the overlay for the given key, or nil.
	GetOverlay(key model.DocumentKey) (*model.Overlay, error)

	// GetOverlays returns the overlays present for the given keys.
	GetOverlays(keys model.DocumentKeySet) (model.OverlayMap, error)

	// SaveOverlays replaces the overlays of the given documents, tagging each
	// with the contributing batch id.
	SaveOverlays(largestBatchID model.BatchID, overlays model.MutationMap) error

	// RemoveOverlaysForBatchID deletes every overlay tagged with the given
	// batch id.
	RemoveOverlaysForBatchID(batchID model.BatchID) error

	// GetOverlaysForCollection returns every overlay for an immediate child
	// of the collection whose batch id is strictly greater than sinceBatchID.
	GetOverlaysForCollection(collection model.ResourcePath, sinceBatchID model.BatchID) (model.OverlayMap, error)

	// GetOverlaysForCollectionGroup returns overlays in the collection group
	// with batch id strictly greater than sinceBatchID, in batch id order,
	// keeping whole batches together: if any overlay of a batch is returned,
	// all of that batch's qualifying overlays are, even beyond count.
	GetOverlaysForCollectionGroup(collectionGroup string, sinceBatchID model.BatchID, count int) (model.OverlayMap, error)
}

// RemoteDocumentCache stores the newest server-confirmed state of each
// document the client has seen, keyed by document key and indexed by read
// time for incremental collection scans.
type RemoteDocumentCache interface {
	// Add stores a document taken from a server snapshot at the given read
	// time.
	Add(doc *model.Document, readTime model.SnapshotVersion) error

	// Remove deletes the cache entry for the given key.
	Remove(key model.DocumentKey) error

	// Get returns the cached document, or an invalid document when the key
	// is not cached. The returned document is a mutable copy.
	Get(key model.DocumentKey) (*model.Document, error)

	// GetAll returns an entry for every requested key, invalid documents
	// included.
	GetAll(keys model.DocumentKeySet) (model.DocumentMap, error)

	// GetAllFromCollection returns the cached immediate children of the
	// collection that sort strictly after the offset. Documents whose key is
	// in mutatedKeys are returned regardless of their read time.
	GetAllFromCollection(
		collection model.ResourcePath,
		offset model.IndexOffset,
		mutatedKeys model.DocumentKeySet,
	) (model.DocumentMap, error)

	// GetAllFromCollectionGroup is GetAllFromCollection across every
	// collection with the given id.
	GetAllFromCollectionGroup(
		collectionGroup string,
		offset model.IndexOffset,
		mutatedKeys model.DocumentKeySet,
	) (model.DocumentMap, error)

	// Size returns the number of cached entries.
	Size() (int, error)
}

// TargetCache stores the queries the client is listening to, together with
// each target's resume state and the set of keys the server last reported as
// matching it.
type TargetCache interface {
	// AllocateTargetID returns the next client-assigned target id.
	AllocateTargetID() (TargetID, error)

	// AddTargetData stores data for a new target.
	AddTargetData(data TargetData) error

	// UpdateTargetData replaces the stored data for an existing target.
	UpdateTargetData(data TargetData) error

	// RemoveTargetData deletes the target and its matching key set.
	RemoveTargetData(data TargetData) error

	// GetTargetData returns the stored data for the given target, or nil.
	GetTargetData(target core.Target) (*TargetData, error)

	// TargetCount returns the number of stored targets.
	TargetCount() (int, error)

	// AddMatchingKeys adds keys to a target's matching key set.
	AddMatchingKeys(keys model.DocumentKeySet, targetID TargetID) error

	// RemoveMatchingKeys removes keys from a target's matching key set.
	RemoveMatchingKeys(keys model.DocumentKeySet, targetID TargetID) error

	// RemoveMatchingKeysForTarget clears a target's matching key set.
	RemoveMatchingKeysForTarget(targetID TargetID) error

	// GetMatchingKeys returns the keys last reported as matching the target.
	GetMatchingKeys(targetID TargetID) (model.DocumentKeySet, error)

	// ContainsKey returns whether any stored target's matching key set holds
	// the given key.
	ContainsKey(key model.DocumentKey) (bool, error)

	// LastRemoteSnapshotVersion returns the version of the newest snapshot
	// the whole cache is guaranteed consistent with.
	LastRemoteSnapshotVersion() (model.SnapshotVersion, error)

	// SetLastRemoteSnapshotVersion advances the cache-wide snapshot version.
	SetLastRemoteSnapshotVersion(version model.SnapshotVersion) error
}

// IndexManager tracks which collection paths exist under each collection id,
// so collection group queries can fan out over concrete collections.
type IndexManager interface {
	// AddToCollectionParentIndex records the parent of the given collection
	// path.
	AddToCollectionParentIndex(collectionPath model.ResourcePath) error

	// GetCollectionParents returns every recorded parent path of collections
	// with the given id, in path order.
	GetCollectionParents(collectionID string) ([]model.ResourcePath, error)
}

// BundleCache stores loaded bundle metadata and named queries.
type BundleCache interface {
	// GetBundleMetadata returns the metadata of a loaded bundle, or nil.
	GetBundleMetadata(bundleID string) (*BundleMetadata, error)

	// SaveBundleMetadata records that a bundle has been loaded.
	SaveBundleMetadata(metadata BundleMetadata) error

	// GetNamedQuery returns the named query, or nil.
	GetNamedQuery(queryName string) (*NamedQuery, error)

	// SaveNamedQuery stores a named query from a bundle.
	SaveNamedQuery(query NamedQuery) error
}

// ReferenceDelegate is the persistence layer's hook into garbage collection.
// Every document state change inside a transaction is reported to the
// delegate, which decides what may be evicted and when.
type ReferenceDelegate interface {
	// AddReference notes that a target or local view pins the document.
	AddReference(key model.DocumentKey) error

	// RemoveReference notes that a target or local view released the
	// document.
	RemoveReference(key model.DocumentKey) error

	// RemoveMutationReference notes that the document's last pending
	// mutation was acknowledged or rejected.
	RemoveMutationReference(key model.DocumentKey) error

	// RemoveTarget notes that the target was released by the client.
	RemoveTarget(data TargetData) error

	// UpdateLimboDocument notes limbo resolution activity on the document.
	UpdateLimboDocument(key model.DocumentKey) error

	// OnTransactionStarted marks the start of a persistence transaction.
	OnTransactionStarted()

	// OnTransactionCommitted runs the delegate's end-of-transaction work,
	// such as sweeping documents that lost their last reference.
	OnTransactionCommitted() error
}

// Persistence aggregates the storage components backing a local store. All
// per-user components are partitioned by user id; switching users switches
// queues and overlays while the document caches are shared.
type Persistence interface {
	// Start prepares the persistence layer for use.
	Start() error

	// Close releases the persistence layer's resources.
	Close() error

	// GetMutationQueue returns the mutation queue of the given user.
	GetMutationQueue(userID string) MutationQueue

	// GetDocumentOverlayCache returns the overlay cache of the given user.
	GetDocumentOverlayCache(userID string) DocumentOverlayCache

	// GetRemoteDocumentCache returns the shared remote document cache.
	GetRemoteDocumentCache() RemoteDocumentCache

	// GetTargetCache returns the shared target cache.
	GetTargetCache() TargetCache

	// GetIndexManager returns the shared collection index manager.
	GetIndexManager() IndexManager

	// GetBundleCache returns the shared bundle cache.
	GetBundleCache() BundleCache

	// GetReferenceDelegate returns the garbage collection delegate.
	GetReferenceDelegate() ReferenceDelegate

	// RunTransaction runs fn as a single atomic unit, bracketed by the
	// reference delegate's transaction hooks.
	RunTransaction(label string, fn func() error) error
}
