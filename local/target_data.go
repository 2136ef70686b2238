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
	"fmt"

	"github.com/ember-db/ember/pkg/core"
	"github.com/ember-db/ember/pkg/model"
)

// TargetID identifies an allocated target. Client-allocated ids are odd.
type TargetID int32

// ListenSequenceNumber orders target activity for LRU eviction. Higher means
// more recently used.
type ListenSequenceNumber int64

// TargetPurpose says why a target exists.
type TargetPurpose int

const (
	// TargetPurposeListen is a target serving a user-issued listen.
	TargetPurposeListen TargetPurpose = iota

	// TargetPurposeExistenceFilterMismatch re-lists a target whose key set
	// disagreed with the server's existence filter.
	TargetPurposeExistenceFilterMismatch

	// TargetPurposeLimboResolution resolves a single document's existence.
	TargetPurposeLimboResolution
)

// TargetData is the cached state of one allocated target.
type TargetData struct {
	target         core.Target
	targetID       TargetID
	sequenceNumber ListenSequenceNumber
	purpose        TargetPurpose

	// snapshotVersion is the version of the last snapshot the target is
	// known consistent with.
	snapshotVersion model.SnapshotVersion

	// lastLimboFreeSnapshotVersion is the newest version at which the
	// target's result set was complete and free of limbo documents. It is
	// the low-water-mark the query engine may resume incremental execution
	// from; the zero version disables that path.
	lastLimboFreeSnapshotVersion model.SnapshotVersion

	// resumeToken lets a re-listen skip results already seen.
	resumeToken []byte
}

// NewTargetData creates target data for a freshly allocated target.
func NewTargetData(
	target core.Target,
	targetID TargetID,
	sequenceNumber ListenSequenceNumber,
	purpose TargetPurpose,
) TargetData {
	return TargetData{
		target:         target,
		targetID:       targetID,
		sequenceNumber: sequenceNumber,
		purpose:        purpose,
	}
}

// Target returns the target this data describes.
func (d TargetData) Target() core.Target { return d.target }

// TargetID returns the target's id.
func (d TargetData) TargetID() TargetID { return d.targetID }

// SequenceNumber returns the target's last-used sequence number.
func (d TargetData) SequenceNumber() ListenSequenceNumber { return d.sequenceNumber }

// Purpose returns why the target exists.
func (d TargetData) Purpose() TargetPurpose { return d.purpose }

// SnapshotVersion returns the last snapshot version seen for this target.
func (d TargetData) SnapshotVersion() model.SnapshotVersion { return d.snapshotVersion }

// LastLimboFreeSnapshotVersion returns the newest version at which the
// target's results were limbo-free.
func (d TargetData) LastLimboFreeSnapshotVersion() model.SnapshotVersion {
	return d.lastLimboFreeSnapshotVersion
}

// ResumeToken returns the target's resume token.
func (d TargetData) ResumeToken() []byte { return d.resumeToken }

// WithSequenceNumber returns a copy at the given sequence number.
func (d TargetData) WithSequenceNumber(sequenceNumber ListenSequenceNumber) TargetData {
	d.sequenceNumber = sequenceNumber
	return d
}

// WithResumeToken returns a copy carrying the given resume token and the
// snapshot version it was issued at.
func (d TargetData) WithResumeToken(resumeToken []byte, snapshotVersion model.SnapshotVersion) TargetData {
	d.resumeToken = resumeToken
	d.snapshotVersion = snapshotVersion
	return d
}

// WithLastLimboFreeSnapshotVersion returns a copy with the limbo-free
// low-water-mark advanced.
func (d TargetData) WithLastLimboFreeSnapshotVersion(version model.SnapshotVersion) TargetData {
	d.lastLimboFreeSnapshotVersion = version
	return d
}

// String returns a printable representation of this target data.
func (d TargetData) String() string {
	return fmt.Sprintf("TargetData(id=%d, purpose=%d, %s)", d.targetID, d.purpose, d.target)
}
