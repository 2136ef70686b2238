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

	memdb "github.com/hashicorp/go-memdb"

	"github.com/ember-db/ember/local"
	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/model"
)

const (
	metaLastRemoteSnapshotVersion = "last_remote_snapshot_version"
	metaHighestTargetID           = "highest_target_id"
)

// TargetCache is the in-memory cache of allocated targets and their matching
// key sets.
type TargetCache struct {
	db *memdb.MemDB
}

// AllocateTargetID returns the next client-assigned target id. Client ids
// are odd to stay disjoint from server-assigned ones.
func (c *TargetCache) AllocateTargetID() (local.TargetID, error) {
	txn := c.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblMetadata, "id", metaHighestTargetID)
	if err != nil {
		return 0, fmt.Errorf("fetch highest target id: %w", err)
	}

	var next int64 = 1
	if raw != nil {
		next = raw.(*metadataRecord).Counter + 2
	}
	if err := txn.Insert(tblMetadata, &metadataRecord{
		Key:     metaHighestTargetID,
		Counter: next,
	}); err != nil {
		return 0, fmt.Errorf("store highest target id: %w", err)
	}

	txn.Commit()
	return local.TargetID(next), nil
}

// AddTargetData stores data for a new target.
func (c *TargetCache) AddTargetData(data local.TargetData) error {
	return c.putTargetData(data)
}

// UpdateTargetData replaces the stored data for an existing target.
func (c *TargetCache) UpdateTargetData(data local.TargetData) error {
	return c.putTargetData(data)
}

func (c *TargetCache) putTargetData(data local.TargetData) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblTargets, &targetRecord{
		TargetID:    int64(data.TargetID()),
		CanonicalID: data.Target().CanonicalID(),
		Data:        data,
	}); err != nil {
		return fmt.Errorf("insert target %d: %w", data.TargetID(), err)
	}

	txn.Commit()
	return nil
}

// RemoveTargetData deletes the target and its matching key set.
func (c *TargetCache) RemoveTargetData(data local.TargetData) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tblTargets, "id", int64(data.TargetID())); err != nil {
		return fmt.Errorf("delete target %d: %w", data.TargetID(), err)
	}
	if _, err := txn.DeleteAll(tblTargetKeys, "target_id", int64(data.TargetID())); err != nil {
		return fmt.Errorf("delete target keys %d: %w", data.TargetID(), err)
	}

	txn.Commit()
	return nil
}

// GetTargetData returns the stored data for the given target, or nil.
func (c *TargetCache) GetTargetData(target core.Target) (*local.TargetData, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblTargets, "canonical_id", target.CanonicalID())
	if err != nil {
		return nil, fmt.Errorf("fetch target %s: %w", target.CanonicalID(), err)
	}
	if raw == nil {
		return nil, nil
	}
	data := raw.(*targetRecord).Data
	return &data, nil
}

// TargetCount returns the number of stored targets.
func (c *TargetCache) TargetCount() (int, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblTargets, "id")
	if err != nil {
		return 0, fmt.Errorf("fetch targets: %w", err)
	}
	count := 0
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		count++
	}
	return count, nil
}

// forEachTarget calls fn for every stored target.
func (c *TargetCache) forEachTarget(fn func(local.TargetData)) error {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblTargets, "id")
	if err != nil {
		return fmt.Errorf("fetch targets: %w", err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		fn(raw.(*targetRecord).Data)
	}
	return nil
}

// AddMatchingKeys adds keys to a target's matching key set.
func (c *TargetCache) AddMatchingKeys(keys model.DocumentKeySet, targetID local.TargetID) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	for _, key := range keys.ToSlice() {
		if err := txn.Insert(tblTargetKeys, &targetKeyRecord{
			ID:       fmt.Sprintf("%d/%s", targetID, key),
			TargetID: int64(targetID),
			DocKey:   key.String(),
		}); err != nil {
			return fmt.Errorf("insert target key: %w", err)
		}
	}

	txn.Commit()
	return nil
}

// RemoveMatchingKeys removes keys from a target's matching key set.
func (c *TargetCache) RemoveMatchingKeys(keys model.DocumentKeySet, targetID local.TargetID) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	for _, key := range keys.ToSlice() {
		id := fmt.Sprintf("%d/%s", targetID, key)
		if _, err := txn.DeleteAll(tblTargetKeys, "id", id); err != nil {
			return fmt.Errorf("delete target key: %w", err)
		}
	}

	txn.Commit()
	return nil
}

// RemoveMatchingKeysForTarget clears a target's matching key set.
func (c *TargetCache) RemoveMatchingKeysForTarget(targetID local.TargetID) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tblTargetKeys, "target_id", int64(targetID)); err != nil {
		return fmt.Errorf("delete target keys %d: %w", targetID, err)
	}

	txn.Commit()
	return nil
}

// GetMatchingKeys returns the keys last reported as matching the target.
func (c *TargetCache) GetMatchingKeys(targetID local.TargetID) (model.DocumentKeySet, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblTargetKeys, "target_id", int64(targetID))
	if err != nil {
		return nil, fmt.Errorf("fetch target keys %d: %w", targetID, err)
	}

	keys := model.NewDocumentKeySet()
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		keys.Add(model.DocumentKeyFromString(raw.(*targetKeyRecord).DocKey))
	}
	return keys, nil
}

// ContainsKey returns whether any stored target's matching key set holds the
// given key.
func (c *TargetCache) ContainsKey(key model.DocumentKey) (bool, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblTargetKeys, "doc_key", key.String())
	if err != nil {
		return false, fmt.Errorf("fetch target keys for %s: %w", key, err)
	}
	return raw != nil, nil
}

// LastRemoteSnapshotVersion returns the version of the newest snapshot the
// whole cache is consistent with.
func (c *TargetCache) LastRemoteSnapshotVersion() (model.SnapshotVersion, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblMetadata, "id", metaLastRemoteSnapshotVersion)
	if err != nil {
		return model.ZeroVersion(), fmt.Errorf("fetch last remote snapshot version: %w", err)
	}
	if raw == nil {
		return model.ZeroVersion(), nil
	}
	return raw.(*metadataRecord).Version, nil
}

// SetLastRemoteSnapshotVersion advances the cache-wide snapshot version.
func (c *TargetCache) SetLastRemoteSnapshotVersion(version model.SnapshotVersion) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblMetadata, &metadataRecord{
		Key:     metaLastRemoteSnapshotVersion,
		Version: version,
	}); err != nil {
		return fmt.Errorf("store last remote snapshot version: %w", err)
	}

	txn.Commit()
	return nil
}
