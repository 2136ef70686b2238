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
	"sort"
	"time"

	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

// LocalDocumentsView answers every "what does this document look like to the
// user" question by merging the remote document cache with the pending
// mutation overlays. It holds no state of its own.
type LocalDocumentsView struct {
	remoteDocumentCache  RemoteDocumentCache
	mutationQueue        MutationQueue
	documentOverlayCache DocumentOverlayCache
	indexManager         IndexManager
}

// NewLocalDocumentsView creates a view over the given components.
func NewLocalDocumentsView(
	remoteDocumentCache RemoteDocumentCache,
	mutationQueue MutationQueue,
	documentOverlayCache DocumentOverlayCache,
	indexManager IndexManager,
) *LocalDocumentsView {
	return &LocalDocumentsView{
		remoteDocumentCache:  remoteDocumentCache,
		mutationQueue:        mutationQueue,
		documentOverlayCache: documentOverlayCache,
		indexManager:         indexManager,
	}
}

// GetDocument returns the local view of the given document: the cached remote
// state with its overlay applied. Uncached, unmutated keys yield an invalid
// document.
func (v *LocalDocumentsView) GetDocument(key model.DocumentKey) (*model.Document, error) {
	overlay, err := v.documentOverlayCache.GetOverlay(key)
	if err != nil {
		return nil, err
	}
	doc, err := v.remoteDocumentCache.Get(key)
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		overlay.Mutation.ApplyToLocalView(doc, nil, time.Now())
	}
	return doc, nil
}

// GetDocuments returns the local view of every given key, invalid documents
// included.
func (v *LocalDocumentsView) GetDocuments(keys model.DocumentKeySet) (model.DocumentMap, error) {
	docs, err := v.remoteDocumentCache.GetAll(keys)
	if err != nil {
		return nil, err
	}
	return v.GetLocalViewOfDocuments(docs, model.NewDocumentKeySet())
}

// GetLocalViewOfDocuments applies overlays to the given base documents.
// existenceChangedKeys are keys whose remote existence state just flipped;
// their patch overlays are recalculated from the queue instead of trusted.
func (v *LocalDocumentsView) GetLocalViewOfDocuments(
	docs model.DocumentMap,
	existenceChangedKeys model.DocumentKeySet,
) (model.DocumentMap, error) {
	overlays := make(model.OverlayMap)
	if err := v.populateOverlays(overlays, model.KeysOf(docs)); err != nil {
		return nil, err
	}
	return v.computeViews(docs, overlays, existenceChangedKeys)
}

// populateOverlays fetches from the overlay cache every key not already
// present in overlays.
func (v *LocalDocumentsView) populateOverlays(overlays model.OverlayMap, keys model.DocumentKeySet) error {
	missing := model.NewDocumentKeySet()
	for _, key := range keys.ToSlice() {
		if _, ok := overlays[key]; !ok {
			missing.Add(key)
		}
	}
	fetched, err := v.documentOverlayCache.GetOverlays(missing)
	if err != nil {
		return err
	}
	for key, overlay := range fetched {
		overlays[key] = overlay
	}
	return nil
}

// computeViews turns base documents into local views. A patch overlay whose
// base document's existence just changed cannot be applied blindly; those
// documents are recalculated by replaying the queue.
func (v *LocalDocumentsView) computeViews(
	docs model.DocumentMap,
	overlays model.OverlayMap,
	existenceChangedKeys model.DocumentKeySet,
) (model.DocumentMap, error) {
	recalculate := make(model.DocumentMap)
	results := make(model.DocumentMap, len(docs))

	for key, doc := range docs {
		overlay, hasOverlay := overlays[key]
		switch {
		case existenceChangedKeys.Contains(key) &&
			(!hasOverlay || overlay.Mutation.Type() == model.MutationTypePatch):
			recalculate[key] = doc
		case hasOverlay:
			overlay.Mutation.ApplyToLocalView(doc, nil, time.Now())
		}
		results[key] = doc
	}

	if len(recalculate) > 0 {
		if _, err := v.RecalculateAndSaveOverlays(recalculate); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// RecalculateAndSaveOverlays replays the whole pending queue against the
// given base documents, rewrites their overlays and returns the mutated
// field masks.
func (v *LocalDocumentsView) RecalculateAndSaveOverlays(docs model.DocumentMap) (model.FieldMaskMap, error) {
	batches, err := v.mutationQueue.AllMutationBatchesAffectingDocumentKeys(model.KeysOf(docs))
	if err != nil {
		return nil, err
	}

	masks := make(model.FieldMaskMap)
	keysByBatchID := make(map[model.BatchID]model.DocumentKeySet)

	// Replay in queue order, threading each document's mask through.
	for _, batch := range batches {
		for _, key := range batch.Keys().ToSlice() {
			doc, ok := docs[key]
			if !ok {
				continue
			}
			mask, ok := masks[key]
			if !ok {
				emptyMask := value.NewFieldMask()
				mask = &emptyMask
			}
			masks[key] = batch.ApplyToLocalView(doc, mask)
			if _, ok := keysByBatchID[batch.BatchID]; !ok {
				keysByBatchID[batch.BatchID] = model.NewDocumentKeySet()
			}
			keysByBatchID[batch.BatchID].Add(key)
		}
	}

	// Save each document's new overlay under the newest batch that touched
	// it, walking batch ids from the highest down.
	batchIDs := make([]model.BatchID, 0, len(keysByBatchID))
	for batchID := range keysByBatchID {
		batchIDs = append(batchIDs, batchID)
	}
	sort.Slice(batchIDs, func(i, j int) bool { return batchIDs[i] > batchIDs[j] })

	processed := model.NewDocumentKeySet()
	for _, batchID := range batchIDs {
		overlays := make(model.MutationMap)
		for _, key := range keysByBatchID[batchID].ToSlice() {
			if processed.Contains(key) {
				continue
			}
			if overlay, needed := model.CalculateOverlayMutation(docs[key], masks[key]); needed {
				overlays[key] = overlay
			}
			processed.Add(key)
		}
		if err := v.documentOverlayCache.SaveOverlays(batchID, overlays); err != nil {
			return nil, err
		}
	}

	return masks, nil
}

// RecalculateAndSaveOverlaysForKeys recalculates overlays for the given keys
// from their cached remote state, as after a batch acknowledgement or
// rejection.
func (v *LocalDocumentsView) RecalculateAndSaveOverlaysForKeys(keys model.DocumentKeySet) error {
	docs, err := v.remoteDocumentCache.GetAll(keys)
	if err != nil {
		return err
	}
	_, err = v.RecalculateAndSaveOverlays(docs)
	return err
}

// GetDocumentsMatchingQuery returns the local view of every document matching
// the query, examining only documents past the given offset plus every
// locally mutated document.
func (v *LocalDocumentsView) GetDocumentsMatchingQuery(
	query core.Query,
	offset model.IndexOffset,
) (model.DocumentMap, error) {
	switch {
	case query.IsDocumentQuery():
		return v.getDocumentsMatchingDocumentQuery(query.Path())
	case query.IsCollectionGroupQuery():
		return v.getDocumentsMatchingCollectionGroupQuery(query, offset)
	default:
		return v.getDocumentsMatchingCollectionQuery(query, offset)
	}
}

func (v *LocalDocumentsView) getDocumentsMatchingDocumentQuery(
	path model.ResourcePath,
) (model.DocumentMap, error) {
	doc, err := v.GetDocument(model.NewDocumentKey(path))
	if err != nil {
		return nil, err
	}
	results := make(model.DocumentMap)
	if doc.IsFoundDocument() {
		results[doc.Key()] = doc
	}
	return results, nil
}

func (v *LocalDocumentsView) getDocumentsMatchingCollectionGroupQuery(
	query core.Query,
	offset model.IndexOffset,
) (model.DocumentMap, error) {
	parents, err := v.indexManager.GetCollectionParents(query.CollectionGroup())
	if err != nil {
		return nil, err
	}

	results := make(model.DocumentMap)
	for _, parent := range parents {
		collectionQuery := query.AsCollectionQueryAtPath(parent.Append(query.CollectionGroup()))
		docs, err := v.getDocumentsMatchingCollectionQuery(collectionQuery, offset)
		if err != nil {
			return nil, err
		}
		for key, doc := range docs {
			results[key] = doc
		}
	}
	return results, nil
}

func (v *LocalDocumentsView) getDocumentsMatchingCollectionQuery(
	query core.Query,
	offset model.IndexOffset,
) (model.DocumentMap, error) {
	overlays, err := v.documentOverlayCache.GetOverlaysForCollection(query.Path(), offset.LargestBatchID)
	if err != nil {
		return nil, err
	}

	mutatedKeys := model.NewDocumentKeySet()
	for key := range overlays {
		mutatedKeys.Add(key)
	}

	docs, err := v.remoteDocumentCache.GetAllFromCollection(query.Path(), offset, mutatedKeys)
	if err != nil {
		return nil, err
	}

	// A document may match only because of its overlay; give such overlays
	// an invalid base document to apply against.
	for key := range overlays {
		if _, ok := docs[key]; !ok {
			docs[key] = model.NewInvalidDocument(key)
		}
	}

	results := make(model.DocumentMap)
	for key, doc := range docs {
		if overlay, ok := overlays[key]; ok {
			overlay.Mutation.ApplyToLocalView(doc, nil, time.Now())
		}
		if query.Matches(doc) {
			results[key] = doc
		}
	}
	return results, nil
}

// GetNextDocuments pages through a collection group in offset order,
// returning up to count local views plus the overlays that extended the page,
// for background work that walks whole collection groups.
func (v *LocalDocumentsView) GetNextDocuments(
	collectionGroup string,
	offset model.IndexOffset,
	count int,
) (model.DocumentMap, model.BatchID, error) {
	docs, err := v.remoteDocumentCache.GetAllFromCollectionGroup(collectionGroup, offset, model.NewDocumentKeySet())
	if err != nil {
		return nil, model.InitialLargestBatchID, err
	}
	docs = truncateDocuments(docs, count)

	overlays := make(model.OverlayMap)
	if len(docs) < count {
		overlays, err = v.documentOverlayCache.GetOverlaysForCollectionGroup(
			collectionGroup, offset.LargestBatchID, count-len(docs))
		if err != nil {
			return nil, model.InitialLargestBatchID, err
		}
	}

	largestBatchID := model.InitialLargestBatchID
	for key, overlay := range overlays {
		if _, ok := docs[key]; !ok {
			docs[key] = model.NewInvalidDocument(key)
		}
		if overlay.LargestBatchID > largestBatchID {
			largestBatchID = overlay.LargestBatchID
		}
	}

	if err := v.populateOverlays(overlays, model.KeysOf(docs)); err != nil {
		return nil, model.InitialLargestBatchID, err
	}
	views, err := v.computeViews(docs, overlays, model.NewDocumentKeySet())
	if err != nil {
		return nil, model.InitialLargestBatchID, err
	}
	return views, largestBatchID, nil
}

// truncateDocuments keeps the count smallest documents in key order.
func truncateDocuments(docs model.DocumentMap, count int) model.DocumentMap {
	if len(docs) <= count {
		return docs
	}
	keys := model.SortedKeys(model.KeysOf(docs))[:count]
	truncated := make(model.DocumentMap, count)
	for _, key := range keys {
		truncated[key] = docs[key]
	}
	return truncated
}
