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
	"time"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/errors"
	"github.com/ember-db/ember/pkg/model"
)

// MutationQueue is the in-memory mutation queue of one user. Batch ids stay
// contiguous: removing a batch from the middle leaves a tombstone until the
// batches ahead of it are removed too.
type MutationQueue struct {
	db     *memdb.MemDB
	userID string
}

// IsEmpty returns whether the queue holds no batches.
func (q *MutationQueue) IsEmpty() (bool, error) {
	batches, err := q.AllMutationBatches()
	if err != nil {
		return false, err
	}
	return len(batches) == 0, nil
}

// AddMutationBatch appends a new batch to the queue.
func (q *MutationQueue) AddMutationBatch(
	localWriteTime time.Time,
	baseMutations []model.Mutation,
	mutations []model.Mutation,
) (model.MutationBatch, error) {
	if len(mutations) == 0 {
		return model.MutationBatch{}, errors.InvalidArgument("mutation batches should not be empty")
	}

	txn := q.db.Txn(true)
	defer txn.Abort()

	batchID, err := q.nextBatchID(txn)
	if err != nil {
		return model.MutationBatch{}, err
	}

	batch := model.MutationBatch{
		BatchID:        batchID,
		LocalWriteTime: localWriteTime,
		BaseMutations:  baseMutations,
		Mutations:      mutations,
	}
	if err := txn.Insert(tblBatches, &batchRecord{
		UserID:  q.userID,
		BatchID: int64(batchID),
		Batch:   batch,
	}); err != nil {
		return model.MutationBatch{}, fmt.Errorf("insert batch: %w", err)
	}

	for _, key := range batch.Keys().ToSlice() {
		if err := txn.Insert(tblBatchKeys, &batchKeyRecord{
			ID:      fmt.Sprintf("%s/%d/%s", q.userID, batchID, key),
			UserID:  q.userID,
			DocKey:  key.String(),
			BatchID: int64(batchID),
		}); err != nil {
			return model.MutationBatch{}, fmt.Errorf("insert batch key: %w", err)
		}
		if err := addCollectionParent(txn, key.CollectionPath()); err != nil {
			return model.MutationBatch{}, err
		}
	}

	txn.Commit()
	return batch, nil
}

func (q *MutationQueue) nextBatchID(txn *memdb.Txn) (model.BatchID, error) {
	iter, err := txn.GetReverse(tblBatches, "id_prefix", q.userID)
	if err != nil {
		return 0, fmt.Errorf("fetch last batch: %w", err)
	}
	raw := iter.Next()
	if raw == nil {
		return 1, nil
	}
	return model.BatchID(raw.(*batchRecord).BatchID) + 1, nil
}

// LookupMutationBatch returns the batch with the given id, or nil. Tombstones
// read as missing.
func (q *MutationQueue) LookupMutationBatch(batchID model.BatchID) (*model.MutationBatch, error) {
	txn := q.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblBatches, "id", q.userID, int64(batchID))
	if err != nil {
		return nil, fmt.Errorf("fetch batch %d: %w", batchID, err)
	}
	if raw == nil {
		return nil, nil
	}
	batch := raw.(*batchRecord).Batch
	if batch.IsTombstone() {
		return nil, nil
	}
	return &batch, nil
}

// NextMutationBatchAfterBatchID returns the first live batch with an id
// strictly greater than the given id, or nil.
func (q *MutationQueue) NextMutationBatchAfterBatchID(batchID model.BatchID) (*model.MutationBatch, error) {
	txn := q.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.LowerBound(tblBatches, "id", q.userID, int64(batchID)+1)
	if err != nil {
		return nil, fmt.Errorf("fetch batches after %d: %w", batchID, err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*batchRecord)
		if record.UserID != q.userID {
			break
		}
		if !record.Batch.IsTombstone() {
			batch := record.Batch
			return &batch, nil
		}
	}
	return nil, nil
}

// AllMutationBatches returns every live batch in queue order.
func (q *MutationQueue) AllMutationBatches() ([]model.MutationBatch, error) {
	txn := q.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblBatches, "id_prefix", q.userID)
	if err != nil {
		return nil, fmt.Errorf("fetch batches: %w", err)
	}

	var batches []model.MutationBatch
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*batchRecord)
		if !record.Batch.IsTombstone() {
			batches = append(batches, record.Batch)
		}
	}
	return batches, nil
}

// AllMutationBatchesAffectingDocumentKey returns, in queue order, every live
// batch mutating the given document.
func (q *MutationQueue) AllMutationBatchesAffectingDocumentKey(
	key model.DocumentKey,
) ([]model.MutationBatch, error) {
	return q.batchesForIDs(func(txn *memdb.Txn) (map[int64]struct{}, error) {
		return q.batchIDsForKey(txn, key.String())
	})
}

// AllMutationBatchesAffectingDocumentKeys returns, in queue order, every live
// batch mutating any of the given documents.
func (q *MutationQueue) AllMutationBatchesAffectingDocumentKeys(
	keys model.DocumentKeySet,
) ([]model.MutationBatch, error) {
	return q.batchesForIDs(func(txn *memdb.Txn) (map[int64]struct{}, error) {
		ids := make(map[int64]struct{})
		for _, key := range keys.ToSlice() {
			keyIDs, err := q.batchIDsForKey(txn, key.String())
			if err != nil {
				return nil, err
			}
			for id := range keyIDs {
				ids[id] = struct{}{}
			}
		}
		return ids, nil
	})
}

// AllMutationBatchesAffectingQuery returns, in queue order, every live batch
// mutating an immediate child of the query's collection.
func (q *MutationQueue) AllMutationBatchesAffectingQuery(
	query core.Query,
) ([]model.MutationBatch, error) {
	collection := query.Path()
	return q.batchesForIDs(func(txn *memdb.Txn) (map[int64]struct{}, error) {
		iter, err := txn.Get(tblBatchKeys, "id_prefix", q.userID+"/")
		if err != nil {
			return nil, fmt.Errorf("fetch batch keys: %w", err)
		}
		ids := make(map[int64]struct{})
		for raw := iter.Next(); raw != nil; raw = iter.Next() {
			record := raw.(*batchKeyRecord)
			path := model.ParseResourcePath(record.DocKey)
			if collection.IsImmediateParentOf(path) {
				ids[record.BatchID] = struct{}{}
			}
		}
		return ids, nil
	})
}

func (q *MutationQueue) batchIDsForKey(txn *memdb.Txn, docKey string) (map[int64]struct{}, error) {
	iter, err := txn.Get(tblBatchKeys, "user_key_prefix", q.userID, docKey)
	if err != nil {
		return nil, fmt.Errorf("fetch batch keys: %w", err)
	}
	ids := make(map[int64]struct{})
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*batchKeyRecord)
		if record.DocKey == docKey {
			ids[record.BatchID] = struct{}{}
		}
	}
	return ids, nil
}

func (q *MutationQueue) batchesForIDs(
	collect func(txn *memdb.Txn) (map[int64]struct{}, error),
) ([]model.MutationBatch, error) {
	txn := q.db.Txn(false)
	defer txn.Abort()

	ids, err := collect(txn)
	if err != nil {
		return nil, err
	}

	var batches []model.MutationBatch
	iter, err := txn.Get(tblBatches, "id_prefix", q.userID)
	if err != nil {
		return nil, fmt.Errorf("fetch batches: %w", err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*batchRecord)
		if _, ok := ids[record.BatchID]; ok && !record.Batch.IsTombstone() {
			batches = append(batches, record.Batch)
		}
	}
	return batches, nil
}

// RemoveMutationBatch removes the batch. Removing the front of the queue
// deletes it together with any tombstones behind it; removing from the middle
// tombstones the batch in place so ids stay contiguous.
func (q *MutationQueue) RemoveMutationBatch(batch model.MutationBatch) error {
	txn := q.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblBatches, "id", q.userID, int64(batch.BatchID))
	if err != nil {
		return fmt.Errorf("fetch batch %d: %w", batch.BatchID, err)
	}
	if raw == nil || raw.(*batchRecord).Batch.IsTombstone() {
		return errors.NotFound(fmt.Sprintf("mutation batch %d not found", batch.BatchID))
	}

	first, err := q.firstLiveBatchID(txn)
	if err != nil {
		return err
	}

	if batch.BatchID == first {
		if err := txn.Delete(tblBatches, raw); err != nil {
			return fmt.Errorf("delete batch: %w", err)
		}
		if err := q.dropLeadingTombstones(txn); err != nil {
			return err
		}
	} else {
		tombstone := raw.(*batchRecord).Batch
		tombstone.Mutations = nil
		if err := txn.Insert(tblBatches, &batchRecord{
			UserID:  q.userID,
			BatchID: int64(batch.BatchID),
			Batch:   tombstone,
		}); err != nil {
			return fmt.Errorf("tombstone batch: %w", err)
		}
	}

	for _, key := range batch.Keys().ToSlice() {
		id := fmt.Sprintf("%s/%d/%s", q.userID, batch.BatchID, key)
		if _, err := txn.DeleteAll(tblBatchKeys, "id", id); err != nil {
			return fmt.Errorf("delete batch key: %w", err)
		}
	}

	txn.Commit()
	return nil
}

func (q *MutationQueue) firstLiveBatchID(txn *memdb.Txn) (model.BatchID, error) {
	iter, err := txn.Get(tblBatches, "id_prefix", q.userID)
	if err != nil {
		return 0, fmt.Errorf("fetch batches: %w", err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*batchRecord)
		if !record.Batch.IsTombstone() {
			return model.BatchID(record.BatchID), nil
		}
	}
	return model.InitialLargestBatchID, nil
}

// dropLeadingTombstones deletes tombstones from the front of the queue up to
// the first live batch.
func (q *MutationQueue) dropLeadingTombstones(txn *memdb.Txn) error {
	iter, err := txn.Get(tblBatches, "id_prefix", q.userID)
	if err != nil {
		return fmt.Errorf("fetch batches: %w", err)
	}
	var leading []*batchRecord
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*batchRecord)
		if !record.Batch.IsTombstone() {
			break
		}
		leading = append(leading, record)
	}
	for _, record := range leading {
		if err := txn.Delete(tblBatches, record); err != nil {
			return fmt.Errorf("delete tombstone: %w", err)
		}
	}
	return nil
}

// HighestUnacknowledgedBatchID returns the newest batch id ever assigned,
// tombstoned or not, or InitialLargestBatchID when the queue is empty.
func (q *MutationQueue) HighestUnacknowledgedBatchID() (model.BatchID, error) {
	txn := q.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.GetReverse(tblBatches, "id_prefix", q.userID)
	if err != nil {
		return 0, fmt.Errorf("fetch last batch: %w", err)
	}
	raw := iter.Next()
	if raw == nil {
		return model.InitialLargestBatchID, nil
	}
	return model.BatchID(raw.(*batchRecord).BatchID), nil
}

// containsKey reports whether any live batch mutates the given document.
func (q *MutationQueue) containsKey(docKey string) (bool, error) {
	txn := q.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblBatchKeys, "user_key_prefix", q.userID, docKey)
	if err != nil {
		return false, fmt.Errorf("fetch batch keys: %w", err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		if raw.(*batchKeyRecord).DocKey == docKey {
			return true, nil
		}
	}
	return false, nil
}
