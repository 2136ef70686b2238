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
	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/model"
)

// BundleMetadata identifies a server-produced bundle of documents and named
// queries loaded into the cache.
type BundleMetadata struct {
	BundleID       string
	Version        int
	CreateTime     model.SnapshotVersion
	TotalDocuments int
	TotalBytes     int64
}

// NamedQuery is a query shipped inside a bundle together with the snapshot
// version its bundled results were read at.
type NamedQuery struct {
	Name     string
	Query    core.Query
	ReadTime model.SnapshotVersion
}
