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

	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

// RemoteDocumentCache is the in-memory cache of server-confirmed document
// states, shared by all users.
type RemoteDocumentCache struct {
	db *memdb.MemDB
}

// Add stores a document from a server snapshot at the given read time.
func (c *RemoteDocumentCache) Add(doc *model.Document, readTime model.SnapshotVersion) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	stored := doc.Clone()
	stored.SetReadTime(readTime)
	key := doc.Key()
	if err := txn.Insert(tblRemoteDocuments, &documentRecord{
		DocKey:          key.String(),
		Collection:      key.CollectionPath().String(),
		CollectionGroup: key.CollectionGroup(),
		Document:        stored,
		ReadTime:        readTime,
	}); err != nil {
		return fmt.Errorf("insert document %s: %w", key, err)
	}
	if err := addCollectionParent(txn, key.CollectionPath()); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// Remove deletes the cache entry for the given key.
func (c *RemoteDocumentCache) Remove(key model.DocumentKey) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tblRemoteDocuments, "id", key.String()); err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}

	txn.Commit()
	return nil
}

// Get returns a mutable copy of the cached document, or an invalid document.
func (c *RemoteDocumentCache) Get(key model.DocumentKey) (*model.Document, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()
	return c.get(txn, key)
}

func (c *RemoteDocumentCache) get(txn *memdb.Txn, key model.DocumentKey) (*model.Document, error) {
	raw, err := txn.First(tblRemoteDocuments, "id", key.String())
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", key, err)
	}
	if raw == nil {
		return model.NewInvalidDocument(key), nil
	}
	return raw.(*documentRecord).Document.Clone(), nil
}

// GetAll returns an entry for every requested key, invalid documents
// included.
func (c *RemoteDocumentCache) GetAll(keys model.DocumentKeySet) (model.DocumentMap, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	docs := make(model.DocumentMap, keys.Cardinality())
	for _, key := range keys.ToSlice() {
		doc, err := c.get(txn, key)
		if err != nil {
			return nil, err
		}
		docs[key] = doc
	}
	return docs, nil
}

// GetAllFromCollection returns the cached immediate children of the
// collection past the offset. Locally mutated keys bypass the offset filter,
// so documents changed only by pending writes are re-examined.
func (c *RemoteDocumentCache) GetAllFromCollection(
	collection model.ResourcePath,
	offset model.IndexOffset,
	mutatedKeys model.DocumentKeySet,
) (model.DocumentMap, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblRemoteDocuments, "collection", collection.String())
	if err != nil {
		return nil, fmt.Errorf("fetch collection %s: %w", collection, err)
	}
	return c.collectPastOffset(iter, offset, mutatedKeys, func(record *documentRecord) bool {
		return record.Collection == collection.String()
	})
}

// GetAllFromCollectionGroup is GetAllFromCollection across every collection
// with the given id.
func (c *RemoteDocumentCache) GetAllFromCollectionGroup(
	collectionGroup string,
	offset model.IndexOffset,
	mutatedKeys model.DocumentKeySet,
) (model.DocumentMap, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblRemoteDocuments, "collection_group", collectionGroup)
	if err != nil {
		return nil, fmt.Errorf("fetch collection group %s: %w", collectionGroup, err)
	}
	return c.collectPastOffset(iter, offset, mutatedKeys, func(record *documentRecord) bool {
		return record.CollectionGroup == collectionGroup
	})
}

func (c *RemoteDocumentCache) collectPastOffset(
	iter memdb.ResultIterator,
	offset model.IndexOffset,
	mutatedKeys model.DocumentKeySet,
	matches func(*documentRecord) bool,
) (model.DocumentMap, error) {
	docs := make(model.DocumentMap)
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*documentRecord)
		if !matches(record) {
			continue
		}
		key := record.Document.Key()
		if !offset.IsBefore(record.ReadTime, key) && !mutatedKeys.Contains(key) {
			continue
		}
		docs[key] = record.Document.Clone()
	}
	return docs, nil
}

// Size returns the number of cached entries.
func (c *RemoteDocumentCache) Size() (int, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblRemoteDocuments, "id")
	if err != nil {
		return 0, fmt.Errorf("fetch documents: %w", err)
	}
	count := 0
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		count++
	}
	return count, nil
}

// byteSize approximates the memory held by the cache for LRU thresholds.
func (c *RemoteDocumentCache) byteSize() (int64, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblRemoteDocuments, "id")
	if err != nil {
		return 0, fmt.Errorf("fetch documents: %w", err)
	}
	var size int64
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*documentRecord)
		size += int64(len(record.DocKey))
		size += int64(len(value.CanonicalID(record.Document.Data().Value())))
	}
	return size, nil
}
