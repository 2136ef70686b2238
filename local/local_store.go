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
	"fmt"
	"time"

	"github.com/ember-db/ember/internal/logging"
	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/errors"
	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

// resumeTokenMaxAge bounds how stale a persisted resume token may get before
// a newer one is written even without membership changes.
const resumeTokenMaxAge = 5 * time.Minute

// LocalWriteResult is the outcome of a local write: the assigned batch id and
// the resulting local view of every written document.
type LocalWriteResult struct {
	BatchID model.BatchID
	Changes model.DocumentMap
}

// QueryResult is the outcome of a query execution: the matching local views
// plus the keys the server last reported for the query's target.
type QueryResult struct {
	Documents  model.DocumentMap
	RemoteKeys model.DocumentKeySet
}

// LocalStore coordinates every local component: it owns the mutation queue,
// the remote document cache, the target cache and the query engine, and is
// the only layer the sync engine talks to. All methods run inside
// persistence transactions; callers serialize access.
type LocalStore struct {
	persistence     Persistence
	queryEngine     *QueryEngine
	mutationQueue   MutationQueue
	overlayCache    DocumentOverlayCache
	remoteDocuments RemoteDocumentCache
	targetCache     TargetCache
	bundleCache     BundleCache
	localDocuments  *LocalDocumentsView

	// targetDataByTarget mirrors the target cache for allocated targets, so
	// view updates between snapshots need no cache round trip.
	targetDataByTarget map[TargetID]TargetData
	targetIDByTarget   map[string]TargetID

	// localViewReferences pins, per target, the documents its materialized
	// view currently displays.
	localViewReferences *ReferenceSet

	userID string
	logger logging.Logger
}

// NewLocalStore creates a local store for the given user over the given
// persistence.
func NewLocalStore(persistence Persistence, queryEngine *QueryEngine, userID string) *LocalStore {
	s := &LocalStore{
		persistence:         persistence,
		queryEngine:         queryEngine,
		remoteDocuments:     persistence.GetRemoteDocumentCache(),
		targetCache:         persistence.GetTargetCache(),
		bundleCache:         persistence.GetBundleCache(),
		targetDataByTarget:  make(map[TargetID]TargetData),
		targetIDByTarget:    make(map[string]TargetID),
		localViewReferences: NewReferenceSet(),
		userID:              userID,
		logger:              logging.New("localstore", logging.NewField("user", userID)),
	}
	s.initializeUserComponents(userID)
	return s
}

func (s *LocalStore) initializeUserComponents(userID string) {
	s.userID = userID
	s.mutationQueue = s.persistence.GetMutationQueue(userID)
	s.overlayCache = s.persistence.GetDocumentOverlayCache(userID)
	s.localDocuments = NewLocalDocumentsView(
		s.remoteDocuments, s.mutationQueue, s.overlayCache, s.persistence.GetIndexManager())
	s.queryEngine.SetLocalDocumentsView(s.localDocuments)
}

// HandleUserChange switches the store to another user's queue and overlays
// and returns the local views of every document affected by either user's
// pending mutations.
func (s *LocalStore) HandleUserChange(userID string) (model.DocumentMap, error) {
	var result model.DocumentMap
	err := s.persistence.RunTransaction("HandleUserChange", func() error {
		oldBatches, err := s.mutationQueue.AllMutationBatches()
		if err != nil {
			return err
		}

		s.initializeUserComponents(userID)

		newBatches, err := s.mutationQueue.AllMutationBatches()
		if err != nil {
			return err
		}

		changedKeys := model.NewDocumentKeySet()
		for _, batches := range [][]model.MutationBatch{oldBatches, newBatches} {
			for _, batch := range batches {
				changedKeys = changedKeys.Union(batch.Keys())
			}
		}
		result, err = s.localDocuments.GetDocuments(changedKeys)
		return err
	})
	return result, err
}

// WriteLocally accepts a batch of user mutations: captures base values for
// non-idempotent transforms, appends the batch to the queue, updates the
// written documents' overlays and returns their new local views.
func (s *LocalStore) WriteLocally(mutations []model.Mutation) (LocalWriteResult, error) {
	localWriteTime := time.Now()
	keys := model.NewDocumentKeySet()
	for _, m := range mutations {
		keys.Add(m.Key())
	}

	var result LocalWriteResult
	err := s.persistence.RunTransaction("WriteLocally", func() error {
		existingDocs, err := s.localDocuments.GetDocuments(keys)
		if err != nil {
			return err
		}

		// Increments must commit against the value they were computed from,
		// even if the batch is replayed after a partial acknowledgement.
		var baseMutations []model.Mutation
		for _, m := range mutations {
			baseValue, baseMask, ok := m.ExtractTransformBaseValue(existingDocs[m.Key()])
			if ok {
				baseMutations = append(baseMutations,
					model.NewPatchMutation(m.Key(), baseValue, baseMask))
			}
		}

		batch, err := s.mutationQueue.AddMutationBatch(localWriteTime, baseMutations, mutations)
		if err != nil {
			return err
		}

		overlays := batch.ApplyToLocalDocumentSet(existingDocs)
		if err := validateSquashedMutations(overlays); err != nil {
			return err
		}
		if err := s.overlayCache.SaveOverlays(batch.BatchID, overlays); err != nil {
			return err
		}

		result = LocalWriteResult{BatchID: batch.BatchID, Changes: existingDocs}
		return nil
	})
	return result, err
}

// AcknowledgeBatch applies a server acknowledgement: updates the remote
// document cache with the acknowledged state, removes the batch from the
// queue, recalculates overlays and returns the affected local views.
func (s *LocalStore) AcknowledgeBatch(batchResult model.MutationBatchResult) (model.DocumentMap, error) {
	var result model.DocumentMap
	err := s.persistence.RunTransaction("AcknowledgeBatch", func() error {
		batch := batchResult.Batch
		if err := s.applyWriteToRemoteDocuments(batchResult); err != nil {
			return err
		}
		if err := s.removeMutationBatch(batch); err != nil {
			return err
		}
		if err := s.localDocuments.RecalculateAndSaveOverlaysForKeys(batch.Keys()); err != nil {
			return err
		}

		var err error
		result, err = s.localDocuments.GetDocuments(batch.Keys())
		return err
	})
	return result, err
}

// RejectBatch removes a batch the server permanently rejected, recalculates
// the affected overlays and returns the affected local views.
func (s *LocalStore) RejectBatch(batchID model.BatchID) (model.DocumentMap, error) {
	var result model.DocumentMap
	err := s.persistence.RunTransaction("RejectBatch", func() error {
		batch, err := s.mutationQueue.LookupMutationBatch(batchID)
		if err != nil {
			return err
		}
		if batch == nil {
			return errors.NotFound(fmt.Sprintf("mutation batch %d not found", batchID))
		}

		if err := s.removeMutationBatch(*batch); err != nil {
			return err
		}
		if err := s.localDocuments.RecalculateAndSaveOverlaysForKeys(batch.Keys()); err != nil {
			return err
		}

		result, err = s.localDocuments.GetDocuments(batch.Keys())
		return err
	})
	return result, err
}

func (s *LocalStore) removeMutationBatch(batch model.MutationBatch) error {
	if err := s.mutationQueue.RemoveMutationBatch(batch); err != nil {
		return err
	}
	// Overlays tagged with this batch would otherwise survive the batch; the
	// following recalculation only rewrites keys that still have pending
	// batches.
	if err := s.overlayCache.RemoveOverlaysForBatchID(batch.BatchID); err != nil {
		return err
	}
	delegate := s.persistence.GetReferenceDelegate()
	for _, key := range batch.Keys().ToSlice() {
		affecting, err := s.mutationQueue.AllMutationBatchesAffectingDocumentKey(key)
		if err != nil {
			return err
		}
		if len(affecting) == 0 {
			if err := delegate.RemoveMutationReference(key); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyWriteToRemoteDocuments folds an acknowledged batch into the remote
// document cache, skipping documents the cache already knows at a newer
// version.
func (s *LocalStore) applyWriteToRemoteDocuments(batchResult model.MutationBatchResult) error {
	batch := batchResult.Batch
	for _, key := range model.SortedKeys(batch.Keys()) {
		doc, err := s.remoteDocuments.Get(key)
		if err != nil {
			return err
		}
		ackVersion, ok := batchResult.DocVersions[key]
		if !ok {
			return errors.Internal(fmt.Sprintf("missing ack version for %s", key))
		}
		if doc.Version().Compare(ackVersion) == value.Ascending {
			batch.ApplyToRemoteDocument(doc, batchResult)
			if err := s.remoteDocuments.Add(doc, batchResult.CommitVersion); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetHighestUnacknowledgedBatchID returns the newest pending batch id, or
// InitialLargestBatchID when nothing is pending.
func (s *LocalStore) GetHighestUnacknowledgedBatchID() (model.BatchID, error) {
	return s.mutationQueue.HighestUnacknowledgedBatchID()
}

// NextMutationBatch returns the first pending batch after the given id, for
// the write pipeline to send. Pass InitialLargestBatchID to start from the
// front.
func (s *LocalStore) NextMutationBatch(afterBatchID model.BatchID) (*model.MutationBatch, error) {
	return s.mutationQueue.NextMutationBatchAfterBatchID(afterBatchID)
}

// ApplyRemoteEvent folds one server snapshot into the caches: document
// contents, per-target membership, resume tokens and the cache-wide snapshot
// version. Returns the affected local views.
func (s *LocalStore) ApplyRemoteEvent(event RemoteEvent) (model.DocumentMap, error) {
	var result model.DocumentMap
	err := s.persistence.RunTransaction("ApplyRemoteEvent", func() error {
		lastRemoteVersion, err := s.targetCache.LastRemoteSnapshotVersion()
		if err != nil {
			return err
		}

		for targetID, change := range event.TargetChanges {
			oldTargetData, ok := s.targetDataByTarget[targetID]
			if !ok {
				continue
			}

			if err := s.targetCache.RemoveMatchingKeys(change.RemovedDocuments, targetID); err != nil {
				return err
			}
			if err := s.targetCache.AddMatchingKeys(change.AddedDocuments, targetID); err != nil {
				return err
			}

			newTargetData := oldTargetData
			if len(change.ResumeToken) > 0 {
				newTargetData = newTargetData.WithResumeToken(change.ResumeToken, event.SnapshotVersion)
			}
			s.targetDataByTarget[targetID] = newTargetData

			if shouldPersistTargetData(oldTargetData, newTargetData, change) {
				if err := s.targetCache.UpdateTargetData(newTargetData); err != nil {
					return err
				}
			}
		}

		changedDocs, existenceChangedKeys, err := s.populateDocumentChanges(event)
		if err != nil {
			return err
		}

		// The remote snapshot version only moves forward.
		if !event.SnapshotVersion.IsZero() &&
			event.SnapshotVersion.Compare(lastRemoteVersion) != value.Ascending {
			if err := s.targetCache.SetLastRemoteSnapshotVersion(event.SnapshotVersion); err != nil {
				return err
			}
		}

		result, err = s.localDocuments.GetLocalViewOfDocuments(changedDocs, existenceChangedKeys)
		return err
	})
	return result, err
}

// populateDocumentChanges writes snapshot documents into the remote cache,
// keeping newer cached versions, and reports which keys flipped existence.
func (s *LocalStore) populateDocumentChanges(event RemoteEvent) (model.DocumentMap, model.DocumentKeySet, error) {
	changed := make(model.DocumentMap)
	existenceChanged := model.NewDocumentKeySet()

	for key, doc := range event.DocumentUpdates {
		existing, err := s.remoteDocuments.Get(key)
		if err != nil {
			return nil, nil, err
		}

		if existing.IsValidDocument() && existing.IsFoundDocument() != doc.IsFoundDocument() {
			existenceChanged.Add(key)
		}

		switch {
		case !existing.IsValidDocument(),
			doc.Version().Compare(existing.Version()) == value.Descending,
			doc.Version().Equals(existing.Version()) && existing.HasPendingWrites():
			readTime := event.SnapshotVersion
			if readTime.IsZero() {
				readTime = doc.Version()
			}
			if err := s.remoteDocuments.Add(doc.Clone(), readTime); err != nil {
				return nil, nil, err
			}
			changed[key] = doc.Clone()
		default:
			s.logger.Debugf(
				"ignoring outdated update for %s (cached %s, update %s)",
				key, existing.Version(), doc.Version())
		}
	}

	return changed, existenceChanged, nil
}

// shouldPersistTargetData decides whether a target's new resume state is
// worth a cache write. Membership changes always are; a token alone only
// after enough time passed since the last persisted one.
func shouldPersistTargetData(oldData, newData TargetData, change TargetChange) bool {
	if len(newData.ResumeToken()) == 0 {
		return false
	}
	if len(oldData.ResumeToken()) == 0 {
		return true
	}
	if change.AddedDocuments.Cardinality() > 0 ||
		change.ModifiedDocuments.Cardinality() > 0 ||
		change.RemovedDocuments.Cardinality() > 0 {
		return true
	}
	age := newData.SnapshotVersion().Timestamp().Sub(oldData.SnapshotVersion().Timestamp())
	return age >= resumeTokenMaxAge
}

// AllocateTarget registers a listen on the target and returns its data,
// reusing cached data when the target was allocated before.
func (s *LocalStore) AllocateTarget(target core.Target) (TargetData, error) {
	var result TargetData
	err := s.persistence.RunTransaction("AllocateTarget", func() error {
		cached, err := s.targetCache.GetTargetData(target)
		if err != nil {
			return err
		}

		if cached != nil {
			result = *cached
		} else {
			targetID, err := s.targetCache.AllocateTargetID()
			if err != nil {
				return err
			}
			result = NewTargetData(target, targetID, 0, TargetPurposeListen)
			if err := s.targetCache.AddTargetData(result); err != nil {
				return err
			}
		}

		s.targetDataByTarget[result.TargetID()] = result
		s.targetIDByTarget[target.CanonicalID()] = result.TargetID()
		return nil
	})
	return result, err
}

// ReleaseTarget unregisters a listen. With eager collection this evicts
// documents only this target kept alive.
func (s *LocalStore) ReleaseTarget(targetID TargetID) error {
	return s.persistence.RunTransaction("ReleaseTarget", func() error {
		targetData, ok := s.targetDataByTarget[targetID]
		if !ok {
			return errors.NotFound(fmt.Sprintf("target %d not allocated", targetID))
		}

		delegate := s.persistence.GetReferenceDelegate()
		released := s.localViewReferences.RemoveReferencesForID(targetID)
		for _, key := range released.ToSlice() {
			if err := delegate.RemoveReference(key); err != nil {
				return err
			}
		}
		if err := delegate.RemoveTarget(targetData); err != nil {
			return err
		}
		delete(s.targetDataByTarget, targetID)
		delete(s.targetIDByTarget, targetData.Target().CanonicalID())
		return nil
	})
}

// GetTargetData returns the cached data for the target, or nil.
func (s *LocalStore) GetTargetData(target core.Target) (*TargetData, error) {
	return s.targetCache.GetTargetData(target)
}

// GetMatchingKeys returns the keys the server last reported for the target.
func (s *LocalStore) GetMatchingKeys(targetID TargetID) (model.DocumentKeySet, error) {
	return s.targetCache.GetMatchingKeys(targetID)
}

// ExecuteQuery runs the query against the local view. When
// usePreviousResults is set and the query's target has run to completion
// before, execution resumes from the target's limbo-free version instead of
// scanning the whole collection.
func (s *LocalStore) ExecuteQuery(query core.Query, usePreviousResults bool) (QueryResult, error) {
	lastLimboFreeVersion := model.ZeroVersion()
	remoteKeys := model.NewDocumentKeySet()

	targetData, err := s.targetCache.GetTargetData(query.ToTarget())
	if err != nil {
		return QueryResult{}, err
	}
	if targetData != nil && usePreviousResults {
		lastLimboFreeVersion = targetData.LastLimboFreeSnapshotVersion()
		remoteKeys, err = s.targetCache.GetMatchingKeys(targetData.TargetID())
		if err != nil {
			return QueryResult{}, err
		}
	}

	docs, err := s.queryEngine.GetDocumentsMatchingQuery(query, lastLimboFreeVersion, remoteKeys)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Documents: docs, RemoteKeys: remoteKeys}, nil
}

// GetDocument returns the local view of a single document.
func (s *LocalStore) GetDocument(key model.DocumentKey) (*model.Document, error) {
	return s.localDocuments.GetDocument(key)
}

// NotifyLocalViewChanges records which documents each locally materialized
// view now displays, pinning them against eager collection, and advances
// each synchronized target's limbo-free version.
func (s *LocalStore) NotifyLocalViewChanges(viewChanges []LocalViewChanges) error {
	return s.persistence.RunTransaction("NotifyLocalViewChanges", func() error {
		delegate := s.persistence.GetReferenceDelegate()
		for _, changes := range viewChanges {
			s.localViewReferences.AddReferences(changes.Added, changes.TargetID)
			s.localViewReferences.RemoveReferences(changes.Removed, changes.TargetID)
			for _, key := range changes.Added.ToSlice() {
				if err := delegate.AddReference(key); err != nil {
					return err
				}
			}
			for _, key := range changes.Removed.ToSlice() {
				if err := delegate.RemoveReference(key); err != nil {
					return err
				}
			}

			if changes.FromCache {
				continue
			}
			targetData, ok := s.targetDataByTarget[changes.TargetID]
			if !ok {
				continue
			}

			// The view caught up with the last snapshot; results as of that
			// version are now reproducible locally.
			updated := targetData.WithLastLimboFreeSnapshotVersion(targetData.SnapshotVersion())
			s.targetDataByTarget[changes.TargetID] = updated
			if err := s.targetCache.UpdateTargetData(updated); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasNewerBundle reports whether a bundle with the same id and an equal or
// newer create time has already been loaded.
func (s *LocalStore) HasNewerBundle(metadata BundleMetadata) (bool, error) {
	cached, err := s.bundleCache.GetBundleMetadata(metadata.BundleID)
	if err != nil {
		return false, err
	}
	return cached != nil &&
		cached.CreateTime.Compare(metadata.CreateTime) != value.Ascending, nil
}

// SaveBundle records a bundle as loaded.
func (s *LocalStore) SaveBundle(metadata BundleMetadata) error {
	return s.persistence.RunTransaction("SaveBundle", func() error {
		return s.bundleCache.SaveBundleMetadata(metadata)
	})
}

// ApplyBundledDocuments writes bundled documents through the same path as a
// remote event, so cached newer versions win, and returns the local views.
func (s *LocalStore) ApplyBundledDocuments(docs model.DocumentMap) (model.DocumentMap, error) {
	event := RemoteEvent{
		SnapshotVersion: model.ZeroVersion(),
		TargetChanges:   map[TargetID]TargetChange{},
		DocumentUpdates: docs,
	}
	return s.ApplyRemoteEvent(event)
}

// SaveNamedQuery stores a bundle's named query and records its bundled
// result keys under the query's target.
func (s *LocalStore) SaveNamedQuery(query NamedQuery, documentKeys model.DocumentKeySet) error {
	// Allocating ensures a target to hang the matching keys on; the bundle's
	// read time becomes the target's resume point.
	allocated, err := s.AllocateTarget(query.Query.ToTarget())
	if err != nil {
		return err
	}

	return s.persistence.RunTransaction("SaveNamedQuery", func() error {
		cached, err := s.targetCache.GetTargetData(query.Query.ToTarget())
		if err != nil {
			return err
		}
		if cached == nil || query.ReadTime.Compare(cached.SnapshotVersion()) == value.Descending {
			updated := allocated.WithResumeToken(nil, query.ReadTime)
			s.targetDataByTarget[updated.TargetID()] = updated
			if err := s.targetCache.UpdateTargetData(updated); err != nil {
				return err
			}
			if err := s.targetCache.RemoveMatchingKeysForTarget(updated.TargetID()); err != nil {
				return err
			}
			if err := s.targetCache.AddMatchingKeys(documentKeys, updated.TargetID()); err != nil {
				return err
			}
		}
		return s.bundleCache.SaveNamedQuery(query)
	})
}

// GetNamedQuery returns a stored named query, or nil.
func (s *LocalStore) GetNamedQuery(name string) (*NamedQuery, error) {
	return s.bundleCache.GetNamedQuery(name)
}

// validateSquashedMutations rejects overlay mutations of a kind the overlay
// cache cannot represent. Squashing only ever produces set, patch and delete
// mutations; anything else means the squash went wrong.
func validateSquashedMutations(overlays model.MutationMap) error {
	for key, m := range overlays {
		switch m.Type() {
		case model.MutationTypeSet, model.MutationTypePatch, model.MutationTypeDelete:
		default:
			return errors.InvalidArgument(
				fmt.Sprintf("cannot persist overlay of type %d for %s", m.Type(), key))
		}
	}
	return nil
}
