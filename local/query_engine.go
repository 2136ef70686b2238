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
	"go.uber.org/zap"

	"github.com/ember-db/ember/internal/logging"
	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

// QueryEngine executes queries against the local documents view. When a
// query ran before, it re-executes against the previous results and only
// scans documents changed since the target's limbo-free version; otherwise
// it falls back to scanning the whole collection.
type QueryEngine struct {
	localDocumentsView *LocalDocumentsView
}

// NewQueryEngine creates an unwired query engine.
func NewQueryEngine() *QueryEngine {
	return &QueryEngine{}
}

// SetLocalDocumentsView wires the engine to the view it executes against.
// Must be called before the first query.
func (e *QueryEngine) SetLocalDocumentsView(view *LocalDocumentsView) {
	e.localDocumentsView = view
}

// GetDocumentsMatchingQuery executes the query. lastLimboFreeSnapshotVersion
// and remoteKeys come from the query's allocated target; the zero version
// means the query never completed against the server.
func (e *QueryEngine) GetDocumentsMatchingQuery(
	query core.Query,
	lastLimboFreeSnapshotVersion model.SnapshotVersion,
	remoteKeys model.DocumentKeySet,
) (model.DocumentMap, error) {
	if e.localDocumentsView == nil {
		panic("SetLocalDocumentsView() not called")
	}

	// Queries matching all documents scan everything regardless; previous
	// results cannot narrow them.
	if query.MatchesAllDocuments() {
		return e.executeFullCollectionScan(query)
	}
	if lastLimboFreeSnapshotVersion.IsZero() {
		return e.executeFullCollectionScan(query)
	}

	docs, err := e.localDocumentsView.GetDocuments(remoteKeys)
	if err != nil {
		return nil, err
	}
	previousResults := applyQuery(query, docs)

	if query.HasLimit() &&
		needsRefill(query.LimitType(), query.Limit(), previousResults, remoteKeys, lastLimboFreeSnapshotVersion) {
		return e.executeFullCollectionScan(query)
	}

	if logging.Enabled(zap.DebugLevel) {
		logging.DefaultLogger().Debugf(
			"re-using previous result from %s to execute query: %s",
			lastLimboFreeSnapshotVersion, query)
	}

	// Scan only what changed after the limbo-free version, then merge the
	// previous results back in.
	updatedResults, err := e.localDocumentsView.GetDocumentsMatchingQuery(
		query, model.OffsetAfterVersion(lastLimboFreeSnapshotVersion))
	if err != nil {
		return nil, err
	}
	for _, doc := range previousResults.Documents() {
		updatedResults[doc.Key()] = doc
	}
	return updatedResults, nil
}

func (e *QueryEngine) executeFullCollectionScan(query core.Query) (model.DocumentMap, error) {
	if logging.Enabled(zap.DebugLevel) {
		logging.DefaultLogger().Debugf("using full collection scan to execute query: %s", query)
	}
	return e.localDocumentsView.GetDocumentsMatchingQuery(query, model.ZeroIndexOffset())
}

// applyQuery sorts and filters the documents by the query, applying its
// limit.
func applyQuery(query core.Query, docs model.DocumentMap) *model.DocumentSet {
	results := model.NewDocumentSet(query.Comparator())
	for _, doc := range docs {
		if query.Matches(doc) {
			results.Add(doc)
		}
	}

	if query.HasLimit() {
		for int64(results.Len()) > query.Limit() {
			var edge *model.Document
			if query.LimitType() == core.LimitTypeFirst {
				edge = results.Last()
			} else {
				edge = results.First()
			}
			results.Remove(edge.Key())
		}
	}
	return results
}

// needsRefill decides whether previous results of a limit query can be
// trusted. The result set must be refilled from scratch when a document got
// removed since (the server would have back-filled the limit), or when the
// document at the limit edge moved: an edge with pending writes or edits past
// the limbo-free version may sort out of the limit, letting a document the
// cache never saw sort in.
func needsRefill(
	limitType core.LimitType,
	limit int64,
	sortedPreviousResults *model.DocumentSet,
	remoteKeys model.DocumentKeySet,
	limboFreeSnapshotVersion model.SnapshotVersion,
) bool {
	if remoteKeys.Cardinality() != sortedPreviousResults.Len() {
		return true
	}

	var edge *model.Document
	if limitType == core.LimitTypeFirst {
		edge = sortedPreviousResults.Last()
	} else {
		edge = sortedPreviousResults.First()
	}
	if edge == nil {
		return false
	}
	return edge.HasPendingWrites() ||
		edge.Version().Compare(limboFreeSnapshotVersion) == value.Descending
}
