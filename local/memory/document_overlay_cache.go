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

package memory

import (
	"fmt"
	"sort"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/ember-db/ember/pkg/model"
)

// DocumentOverlayCache is the in-memory overlay cache of one user.
type DocumentOverlayCache struct {
	db     *memdb.MemDB
	userID string
}

// GetOverlay returns the overlay for the given key, or nil.
func (c *DocumentOverlayCache) GetOverlay(key model.DocumentKey) (*model.Overlay, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblOverlays, "id", c.overlayID(key))
	if err != nil {
		return nil, fmt.Errorf("fetch overlay for %s: %w", key, err)
	}
	if raw == nil {
		return nil, nil
	}
	overlay := raw.(*overlayRecord).Overlay
	return &overlay, nil
}

// GetOverlays returns the overlays present for the given keys.
func (c *DocumentOverlayCache) GetOverlays(keys model.DocumentKeySet) (model.OverlayMap, error) {
	overlays := make(model.OverlayMap)
	for _, key := range keys.ToSlice() {
		overlay, err := c.GetOverlay(key)
		if err != nil {
			return nil, err
		}
		if overlay != nil {
			overlays[key] = *overlay
		}
	}
	return overlays, nil
}

// SaveOverlays replaces the overlays of the given documents.
func (c *DocumentOverlayCache) SaveOverlays(
	largestBatchID model.BatchID,
	overlays model.MutationMap,
) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	for key, mutation := range overlays {
		collection := key.CollectionPath()
		if err := txn.Insert(tblOverlays, &overlayRecord{
			ID:              c.overlayID(key),
			UserID:          c.userID,
			DocKey:          key.String(),
			Collection:      collection.String(),
			CollectionGroup: key.CollectionGroup(),
			LargestBatchID:  int64(largestBatchID),
			Overlay: model.Overlay{
				LargestBatchID: largestBatchID,
				Mutation:       mutation,
			},
		}); err != nil {
			return fmt.Errorf("insert overlay for %s: %w", key, err)
		}
	}

	txn.Commit()
	return nil
}

// RemoveOverlaysForBatchID deletes every overlay tagged with the given batch
// id.
func (c *DocumentOverlayCache) RemoveOverlaysForBatchID(batchID model.BatchID) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	iter, err := txn.Get(tblOverlays, "id_prefix", c.userID+"/")
	if err != nil {
		return fmt.Errorf("fetch overlays: %w", err)
	}
	var stale []*overlayRecord
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*overlayRecord)
		if record.LargestBatchID == int64(batchID) {
			stale = append(stale, record)
		}
	}
	for _, record := range stale {
		if err := txn.Delete(tblOverlays, record); err != nil {
			return fmt.Errorf("delete overlay: %w", err)
		}
	}

	txn.Commit()
	return nil
}

// GetOverlaysForCollection returns every overlay for an immediate child of
// the collection whose batch id is strictly greater than sinceBatchID.
func (c *DocumentOverlayCache) GetOverlaysForCollection(
	collection model.ResourcePath,
	sinceBatchID model.BatchID,
) (model.OverlayMap, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblOverlays, "user_collection", c.userID, collection.String())
	if err != nil {
		return nil, fmt.Errorf("fetch overlays for %s: %w", collection, err)
	}

	overlays := make(model.OverlayMap)
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*overlayRecord)
		if record.Collection != collection.String() {
			continue
		}
		if record.LargestBatchID > int64(sinceBatchID) {
			overlays[model.DocumentKeyFromString(record.DocKey)] = record.Overlay
		}
	}
	return overlays, nil
}

// GetOverlaysForCollectionGroup returns overlays in the collection group with
// batch id strictly greater than sinceBatchID, walking batches oldest first.
// Batches are never split: once an overlay of a batch is included, all of
// that batch's qualifying overlays are, even past count.
func (c *DocumentOverlayCache) GetOverlaysForCollectionGroup(
	collectionGroup string,
	sinceBatchID model.BatchID,
	count int,
) (model.OverlayMap, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblOverlays, "user_group_batch_prefix", c.userID, collectionGroup)
	if err != nil {
		return nil, fmt.Errorf("fetch overlays for group %s: %w", collectionGroup, err)
	}

	byBatch := make(map[int64]model.OverlayMap)
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*overlayRecord)
		if record.CollectionGroup != collectionGroup || record.LargestBatchID <= int64(sinceBatchID) {
			continue
		}
		batch, ok := byBatch[record.LargestBatchID]
		if !ok {
			batch = make(model.OverlayMap)
			byBatch[record.LargestBatchID] = batch
		}
		batch[model.DocumentKeyFromString(record.DocKey)] = record.Overlay
	}

	batchIDs := make([]int64, 0, len(byBatch))
	for batchID := range byBatch {
		batchIDs = append(batchIDs, batchID)
	}
	sort.Slice(batchIDs, func(i, j int) bool { return batchIDs[i] < batchIDs[j] })

	overlays := make(model.OverlayMap)
	for _, batchID := range batchIDs {
		if len(overlays) >= count {
			break
		}
		for key, overlay := range byBatch[batchID] {
			overlays[key] = overlay
		}
	}
	return overlays, nil
}

func (c *DocumentOverlayCache) overlayID(key model.DocumentKey) string {
	return c.userID + "/" + key.String()
}
