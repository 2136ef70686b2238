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
)

// BundleCache is the in-memory store of loaded bundles and named queries.
type BundleCache struct {
	db *memdb.MemDB
}

// GetBundleMetadata returns the metadata of a loaded bundle, or nil.
func (c *BundleCache) GetBundleMetadata(bundleID string) (*local.BundleMetadata, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblBundles, "id", bundleID)
	if err != nil {
		return nil, fmt.Errorf("fetch bundle %s: %w", bundleID, err)
	}
	if raw == nil {
		return nil, nil
	}
	metadata := raw.(*bundleRecord).Metadata
	return &metadata, nil
}

// SaveBundleMetadata records that a bundle has been loaded.
func (c *BundleCache) SaveBundleMetadata(metadata local.BundleMetadata) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblBundles, &bundleRecord{
		BundleID: metadata.BundleID,
		Metadata: metadata,
	}); err != nil {
		return fmt.Errorf("insert bundle %s: %w", metadata.BundleID, err)
	}

	txn.Commit()
	return nil
}

// GetNamedQuery returns the named query, or nil.
func (c *BundleCache) GetNamedQuery(queryName string) (*local.NamedQuery, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblNamedQueries, "id", queryName)
	if err != nil {
		return nil, fmt.Errorf("fetch named query %s: %w", queryName, err)
	}
	if raw == nil {
		return nil, nil
	}
	query := raw.(*namedQueryRecord).Query
	return &query, nil
}

// SaveNamedQuery stores a named query from a bundle.
func (c *BundleCache) SaveNamedQuery(query local.NamedQuery) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblNamedQueries, &namedQueryRecord{
		Name:  query.Name,
		Query: query,
	}); err != nil {
		return fmt.Errorf("insert named query %s: %w", query.Name, err)
	}

	txn.Commit()
	return nil
}
