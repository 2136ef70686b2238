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

package model

import (
	"fmt"
	"time"

	"github.com/ember-db/ember/pkg/model/value"
)

// BatchID identifies a mutation batch within one user's queue. Batch ids are
// assigned monotonically increasing per queue.
type BatchID int64

// MutationBatch is an ordered group of mutations applied atomically, sharing
// one batch id and one local write time.
type MutationBatch struct {
	BatchID        BatchID
	LocalWriteTime time.Time

	// BaseMutations capture the state non-idempotent transforms were computed
	// against, so that replaying the batch after partial acknowledgement
	// cannot double-apply an increment. They apply before Mutations and only
	// locally.
	BaseMutations []Mutation

	Mutations []Mutation
}

// Keys returns the set of document keys this batch's mutations touch. Base
// mutations do not contribute keys of their own.
func (b MutationBatch) Keys() DocumentKeySet {
	keys := NewDocumentKeySet()
	for _, m := range b.Mutations {
		keys.Add(m.Key())
	}
	return keys
}

// IsTombstone returns whether this batch has been emptied in place to
// preserve queue contiguity.
func (b MutationBatch) IsTombstone() bool {
	return len(b.Mutations) == 0
}

// ApplyToLocalView applies all of this batch's mutations relevant to the
// document, threading the mutated-fields mask through. A nil mask means the
// document's whole value is locally produced.
func (b MutationBatch) ApplyToLocalView(doc *Document, mask *FieldMask) *FieldMask {
	for _, m := range b.BaseMutations {
		if m.Key() == doc.Key() {
			mask = m.ApplyToLocalView(doc, mask, b.LocalWriteTime)
		}
	}
	for _, m := range b.Mutations {
		if m.Key() == doc.Key() {
			mask = m.ApplyToLocalView(doc, mask, b.LocalWriteTime)
		}
	}
	return mask
}

// ApplyToLocalDocument applies this batch to the document, discarding mask
// bookkeeping.
func (b MutationBatch) ApplyToLocalDocument(doc *Document) {
	emptyMask := value.NewFieldMask()
	b.ApplyToLocalView(doc, &emptyMask)
}

// ApplyToLocalDocumentSet applies this batch to every affected document in
// the set and returns the overlay mutation each one now needs. Documents the
// batch touches but the set lacks are skipped.
func (b MutationBatch) ApplyToLocalDocumentSet(docs DocumentMap) MutationMap {
	overlays := make(MutationMap)
	for _, key := range SortedKeys(b.Keys()) {
		doc, ok := docs[key]
		if !ok {
			continue
		}
		emptyMask := value.NewFieldMask()
		mask := b.ApplyToLocalView(doc, &emptyMask)
		if overlay, needed := CalculateOverlayMutation(doc, mask); needed {
			overlays[key] = overlay
		}
	}
	return overlays
}

// ApplyToRemoteDocument applies this acknowledged batch to the document using
// the server's per-mutation results.
func (b MutationBatch) ApplyToRemoteDocument(doc *Document, result MutationBatchResult) {
	if len(result.MutationResults) != len(b.Mutations) {
		panic(fmt.Sprintf("mismatched mutation results: %d != %d",
			len(result.MutationResults), len(b.Mutations)))
	}
	for i, m := range b.Mutations {
		if m.Key() == doc.Key() {
			m.ApplyToRemoteDocument(doc, result.MutationResults[i])
			doc.SetReadTime(result.CommitVersion)
		}
	}
}

// String returns a printable representation of this batch.
func (b MutationBatch) String() string {
	return fmt.Sprintf("MutationBatch(id=%d, mutations=%d)", b.BatchID, len(b.Mutations))
}

// MutationResult is the server's acknowledgement of a single mutation.
type MutationResult struct {
	// Version is the version the document reached through this mutation.
	Version SnapshotVersion

	// TransformResults carries the server-resolved value of each field
	// transform, in transform order.
	TransformResults []value.Value
}

// MutationBatchResult is the server's acknowledgement of a whole batch.
type MutationBatchResult struct {
	Batch           MutationBatch
	CommitVersion   SnapshotVersion
	MutationResults []MutationResult
	StreamToken     []byte

	// DocVersions maps each written key to the version the server assigned
	// it, falling back to the commit version for deletes.
	DocVersions map[DocumentKey]SnapshotVersion
}

// NewMutationBatchResult creates a batch result and derives the per-document
// version map.
func NewMutationBatchResult(
	batch MutationBatch,
	commitVersion SnapshotVersion,
	mutationResults []MutationResult,
	streamToken []byte,
) MutationBatchResult {
	if len(mutationResults) != len(batch.Mutations) {
		panic(fmt.Sprintf("mismatched mutation results: %d != %d",
			len(mutationResults), len(batch.Mutations)))
	}

	docVersions := make(map[DocumentKey]SnapshotVersion, len(batch.Mutations))
	for i, m := range batch.Mutations {
		version := mutationResults[i].Version
		if version.IsZero() {
			version = commitVersion
		}
		docVersions[m.Key()] = version
	}

	return MutationBatchResult{
		Batch:           batch,
		CommitVersion:   commitVersion,
		MutationResults: mutationResults,
		StreamToken:     streamToken,
		DocVersions:     docVersions,
	}
}

// Overlay is the squashed effect of every pending batch on one document,
// tagged with the highest contributing batch id. Overlays are a cache:
// applying the overlay to the remote document must be observably equivalent
// to replaying every contributing batch in order.
type Overlay struct {
	LargestBatchID BatchID
	Mutation       Mutation
}

// Key returns the key of the document this overlay describes.
func (o Overlay) Key() DocumentKey {
	return o.Mutation.Key()
}
