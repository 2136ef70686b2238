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

// SnapshotVersion is a point in time at which the server produced a
// consistent snapshot. The zero value means "no version": purely local state
// that the server has not confirmed.
type SnapshotVersion struct {
	timestamp time.Time
}

// NewSnapshotVersion creates a snapshot version at the given time.
func NewSnapshotVersion(t time.Time) SnapshotVersion {
	return SnapshotVersion{timestamp: t}
}

// ZeroVersion is the "no version" sentinel.
func ZeroVersion() SnapshotVersion {
	return SnapshotVersion{}
}

// IsZero returns whether this is the "no version" sentinel.
func (v SnapshotVersion) IsZero() bool {
	return v.timestamp.IsZero()
}

// Timestamp returns the time of this version.
func (v SnapshotVersion) Timestamp() time.Time {
	return v.timestamp
}

// Compare orders versions chronologically; the zero version sorts first.
func (v SnapshotVersion) Compare(other SnapshotVersion) value.Result {
	if v.timestamp.Before(other.timestamp) {
		return value.Ascending
	}
	if v.timestamp.After(other.timestamp) {
		return value.Descending
	}
	return value.Same
}

// Equals returns whether two versions are the same point in time.
func (v SnapshotVersion) Equals(other SnapshotVersion) bool {
	return v.Compare(other) == value.Same
}

// Successor returns the smallest version strictly after this one.
func (v SnapshotVersion) Successor() SnapshotVersion {
	return SnapshotVersion{timestamp: v.timestamp.Add(time.Nanosecond)}
}

// String returns a printable representation of this version.
func (v SnapshotVersion) String() string {
	if v.IsZero() {
		return "version(none)"
	}
	return fmt.Sprintf("version(%d,%d)", v.timestamp.Unix(), v.timestamp.Nanosecond())
}

// InitialLargestBatchID is the batch id carried by offsets that precede every
// mutation batch.
const InitialLargestBatchID BatchID = -1

// IndexOffset is a low-water-mark for cache scans: a scan resumes strictly
// after (ReadTime, Key), and overlay backfills resume after LargestBatchID.
type IndexOffset struct {
	ReadTime       SnapshotVersion
	Key            DocumentKey
	LargestBatchID BatchID
}

// ZeroIndexOffset returns the offset that precedes every document.
func ZeroIndexOffset() IndexOffset {
	return IndexOffset{LargestBatchID: InitialLargestBatchID}
}

// OffsetAfterVersion returns an offset matching every document whose read
// time is strictly greater than the given version.
func OffsetAfterVersion(readTime SnapshotVersion) IndexOffset {
	return IndexOffset{ReadTime: readTime.Successor(), LargestBatchID: InitialLargestBatchID}
}

// IsBefore returns whether the document identified by (readTime, key) sorts
// strictly after this offset.
func (o IndexOffset) IsBefore(readTime SnapshotVersion, key DocumentKey) bool {
	if cmp := o.ReadTime.Compare(readTime); cmp != value.Same {
		return cmp == value.Ascending
	}
	return o.Key.Compare(key) == value.Ascending
}
