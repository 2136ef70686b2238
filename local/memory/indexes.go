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

// Package memory implements the local persistence interfaces on top of an
// in-memory database.
package memory

import (
	memdb "github.com/hashicorp/go-memdb"

	"github.com/ember-db/ember/local"
	"github.com/ember-db/ember/pkg/model"
)

const (
	tblBatches           = "batches"
	tblBatchKeys         = "batch_keys"
	tblOverlays          = "overlays"
	tblRemoteDocuments   = "remote_documents"
	tblTargets           = "targets"
	tblTargetKeys        = "target_keys"
	tblCollectionParents = "collection_parents"
	tblBundles           = "bundles"
	tblNamedQueries      = "named_queries"
	tblMetadata          = "metadata"
)

// batchRecord is one mutation batch in a user's queue.
type batchRecord struct {
	UserID  string
	BatchID int64
	Batch   model.MutationBatch
}

// batchKeyRecord indexes one document key a batch mutates.
type batchKeyRecord struct {
	ID      string
	UserID  string
	DocKey  string
	BatchID int64
}

// overlayRecord is one document's overlay in a user's overlay cache.
type overlayRecord struct {
	ID              string
	UserID          string
	DocKey          string
	Collection      string
	CollectionGroup string
	LargestBatchID  int64
	Overlay         model.Overlay
}

// documentRecord is one cached remote document.
type documentRecord struct {
	DocKey          string
	Collection      string
	CollectionGroup string
	Document        *model.Document
	ReadTime        model.SnapshotVersion
}

// targetRecord is one allocated target.
type targetRecord struct {
	TargetID    int64
	CanonicalID string
	Data        local.TargetData
}

// targetKeyRecord is one key in a target's matching key set.
type targetKeyRecord struct {
	ID       string
	TargetID int64
	DocKey   string
}

// collectionParentRecord records one parent path of a collection id.
type collectionParentRecord struct {
	ID           string
	CollectionID string
	Parent       string
}

// bundleRecord is one loaded bundle's metadata.
type bundleRecord struct {
	BundleID string
	Metadata local.BundleMetadata
}

// namedQueryRecord is one named query from a bundle.
type namedQueryRecord struct {
	Name  string
	Query local.NamedQuery
}

// metadataRecord is a singleton key/value entry for cache-wide state.
type metadataRecord struct {
	Key     string
	Version model.SnapshotVersion
	Counter int64
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblBatches: {
			Name: tblBatches,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:   "id",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.IntFieldIndex{Field: "BatchID"},
						},
					},
				},
			},
		},
		tblBatchKeys: {
			Name: tblBatchKeys,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"user_key": {
					Name: "user_key",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "DocKey"},
							&memdb.IntFieldIndex{Field: "BatchID"},
						},
					},
				},
			},
		},
		tblOverlays: {
			Name: tblOverlays,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"user_collection": {
					Name: "user_collection",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "Collection"},
						},
					},
				},
				"user_group_batch": {
					Name: "user_group_batch",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "CollectionGroup"},
							&memdb.IntFieldIndex{Field: "LargestBatchID"},
						},
					},
				},
			},
		},
		tblRemoteDocuments: {
			Name: tblRemoteDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "DocKey"},
				},
				"collection": {
					Name:    "collection",
					Indexer: &memdb.StringFieldIndex{Field: "Collection"},
				},
				"collection_group": {
					Name:    "collection_group",
					Indexer: &memdb.StringFieldIndex{Field: "CollectionGroup"},
				},
			},
		},
		tblTargets: {
			Name: tblTargets,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "TargetID"},
				},
				"canonical_id": {
					Name:    "canonical_id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "CanonicalID"},
				},
			},
		},
		tblTargetKeys: {
			Name: tblTargetKeys,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"target_id": {
					Name:    "target_id",
					Indexer: &memdb.IntFieldIndex{Field: "TargetID"},
				},
				"doc_key": {
					Name:    "doc_key",
					Indexer: &memdb.StringFieldIndex{Field: "DocKey"},
				},
			},
		},
		tblCollectionParents: {
			Name: tblCollectionParents,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"collection_id": {
					Name:    "collection_id",
					Indexer: &memdb.StringFieldIndex{Field: "CollectionID"},
				},
			},
		},
		tblBundles: {
			Name: tblBundles,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "BundleID"},
				},
			},
		},
		tblNamedQueries: {
			Name: tblNamedQueries,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Name"},
				},
			},
		},
		tblMetadata: {
			Name: tblMetadata,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
			},
		},
	},
}
