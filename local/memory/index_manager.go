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

// IndexManager tracks collection parent paths, letting collection group
// queries fan out over the concrete collections seen so far.
type IndexManager struct {
	db *memdb.MemDB
}

// AddToCollectionParentIndex records the parent of the given collection path.
func (m *IndexManager) AddToCollectionParentIndex(collectionPath model.ResourcePath) error {
	if collectionPath.Len()%2 != 1 {
		return fmt.Errorf("invalid collection path: %q", collectionPath.String())
	}

	collectionID := collectionPath.LastSegment()
	parent := collectionPath.PopLast()

	txn := m.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblCollectionParents, &collectionParentRecord{
		ID:           collectionID + "|" + parent.String(),
		CollectionID: collectionID,
		Parent:       parent.String(),
	}); err != nil {
		return fmt.Errorf("insert collection parent: %w", err)
	}

	txn.Commit()
	return nil
}

// addCollectionParent records a collection parent inside an already open
// transaction, for write paths that learn about new collections.
func addCollectionParent(txn *memdb.Txn, collectionPath model.ResourcePath) error {
	collectionID := collectionPath.LastSegment()
	parent := collectionPath.PopLast()
	if err := txn.Insert(tblCollectionParents, &collectionParentRecord{
		ID:           collectionID + "|" + parent.String(),
		CollectionID: collectionID,
		Parent:       parent.String(),
	}); err != nil {
		return fmt.Errorf("insert collection parent: %w", err)
	}
	return nil
}

// GetCollectionParents returns every recorded parent path of collections
// with the given id, in path order.
func (m *IndexManager) GetCollectionParents(collectionID string) ([]model.ResourcePath, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblCollectionParents, "collection_id", collectionID)
	if err != nil {
		return nil, fmt.Errorf("fetch collection parents: %w", err)
	}

	var parents []model.ResourcePath
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		parents = append(parents, model.ParseResourcePath(raw.(*collectionParentRecord).Parent))
	}
	sort.Slice(parents, func(i, j int) bool {
		return parents[i].Compare(parents[j]) < 0
	})
	return parents, nil
}
