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
	"github.com/ember-db/ember/pkg/model"
)

// TargetChange describes what one remote snapshot did to a single target.
type TargetChange struct {
	// ResumeToken is the token to resume this target from, if any.
	ResumeToken []byte

	// Current reports whether the server declared the target's result set
	// complete as of this snapshot.
	Current bool

	// AddedDocuments are keys that newly match the target.
	AddedDocuments model.DocumentKeySet

	// ModifiedDocuments are matching keys whose contents changed.
	ModifiedDocuments model.DocumentKeySet

	// RemovedDocuments are keys that no longer match the target.
	RemovedDocuments model.DocumentKeySet
}

// NewTargetChange creates an empty target change.
func NewTargetChange() TargetChange {
	return TargetChange{
		AddedDocuments:    model.NewDocumentKeySet(),
		ModifiedDocuments: model.NewDocumentKeySet(),
		RemovedDocuments:  model.NewDocumentKeySet(),
	}
}

/// RemoteEvent is one consistent snapshot received from the server: document
// contents plus per-target membership changes, all at one snapshot version.
type RemoteEvent struct {
	// SnapshotVersion is the version this event is consistent at.
	SnapshotVersion model.SnapshotVersion

	// TargetChanges are the per-target membership and resume changes.
	TargetChanges map[TargetID]TargetChange

	// DocumentUpdates holds the new state of every document the snapshot
	// touched, tombstones included.
	DocumentUpdates model.DocumentMap

	// LimboDocumentChanges are keys the event resolved out of limbo.
	LimboDocumentChanges model.DocumentKeySet
}

// LocalViewChanges describes how a locally materialized view of one target
// diverged from the server's matching key set, pinning documents the view
// still displays.
type LocalViewChanges struct {
	TargetID  TargetID
	FromCache bool
	Added     model.DocumentKeySet
	Removed   model.DocumentKeySet
}

// NewLocalViewChanges creates view changes for the given target.
func NewLocalViewChanges(
	targetID TargetID,
	fromCache bool,
	added model.DocumentKeySet,
	removed model.DocumentKeySet,
) LocalViewChanges {
	return LocalViewChanges{TargetID: targetID, FromCache: fromCache, Added: added, Removed: removed}
}
