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

	"github.com/ember-db/ember/pkg/model/value"
)

// DocumentType tags the variants of a document's cached state.
type DocumentType int

const (
	// DocumentTypeInvalid marks a document whose state is not cached at all.
	// Reads of uncached keys return an invalid document, never an error.
	DocumentTypeInvalid DocumentType = iota

	// DocumentTypeFound marks a document known to exist, with data.
	DocumentTypeFound

	// DocumentTypeNoDocument is a tombstone: the document was confirmed
	// absent at the carried version.
	DocumentTypeNoDocument

	// DocumentTypeUnknown marks a document whose existence is unknown, for
	// example after a patch was acknowledged against a document that was
	// never fetched.
	DocumentTypeUnknown
)

// Document is the cached state of a single document together with the flags
// describing how local writes relate to it. It covers every variant of
// "maybe a document": found, known-missing, unknown and uncached.
type Document struct {
	key                   DocumentKey
	docType               DocumentType
	version               SnapshotVersion
	readTime              SnapshotVersion
	data                  value.ObjectValue
	hasLocalMutations     bool
	hasCommittedMutations bool
}

// NewInvalidDocument creates the uncached placeholder for the given key.
func NewInvalidDocument(key DocumentKey) *Document {
	return &Document{key: key, docType: DocumentTypeInvalid, data: value.EmptyObject()}
}

// NewFoundDocument creates a document that exists at the given version.
func NewFoundDocument(key DocumentKey, version SnapshotVersion, data value.ObjectValue) *Document {
	return &Document{key: key, docType: DocumentTypeFound, version: version, data: data}
}

// NewNoDocument creates a tombstone for a document confirmed absent at the
// given version.
func NewNoDocument(key DocumentKey, version SnapshotVersion) *Document {
	return &Document{key: key, docType: DocumentTypeNoDocument, version: version, data: value.EmptyObject()}
}

// NewUnknownDocument creates a document whose existence is unknown at the
// given version.
func NewUnknownDocument(key DocumentKey, version SnapshotVersion) *Document {
	return &Document{
		key:                   key,
		docType:               DocumentTypeUnknown,
		version:               version,
		data:                  value.EmptyObject(),
		hasCommittedMutations: true,
	}
}

// ConvertToFoundDocument changes this document into a found document with the
// given version and data, clearing all flags.
func (d *Document) ConvertToFoundDocument(version SnapshotVersion, data value.ObjectValue) {
	d.docType = DocumentTypeFound
	d.version = version
	d.data = data
	d.hasLocalMutations = false
	d.hasCommittedMutations = false
}

// ConvertToNoDocument changes this document into a tombstone at the given
// version, clearing all flags.
func (d *Document) ConvertToNoDocument(version SnapshotVersion) {
	d.docType = DocumentTypeNoDocument
	d.version = version
	d.data = value.EmptyObject()
	d.hasLocalMutations = false
	d.hasCommittedMutations = false
}

// ConvertToUnknownDocument changes this document into an unknown document at
// the given version.
func (d *Document) ConvertToUnknownDocument(version SnapshotVersion) {
	d.docType = DocumentTypeUnknown
	d.version = version
	d.data = value.EmptyObject()
	d.hasLocalMutations = false
	d.hasCommittedMutations = true
}

// SetHasLocalMutations marks this document as carrying unacknowledged local
// writes.
func (d *Document) SetHasLocalMutations() {
	d.hasLocalMutations = true
	d.hasCommittedMutations = false
}

// SetHasCommittedMutations marks this document as carrying writes the server
// acknowledged but has not yet confirmed through a remote event.
func (d *Document) SetHasCommittedMutations() {
	d.hasLocalMutations = false
	d.hasCommittedMutations = true
}

// SetReadTime records the time this document was read from the server.
func (d *Document) SetReadTime(readTime SnapshotVersion) {
	d.readTime = readTime
}

// Key returns the document's key.
func (d *Document) Key() DocumentKey { return d.key }

// DocumentType returns the variant tag.
func (d *Document) DocumentType() DocumentType { return d.docType }

// Version returns the server snapshot version, or the zero version for
// purely local state.
func (d *Document) Version() SnapshotVersion { return d.version }

// ReadTime returns the time the document was read from the server.
func (d *Document) ReadTime() SnapshotVersion { return d.readTime }

// Data returns the document's fields.
func (d *Document) Data() value.ObjectValue { return d.data }

// SetData replaces the document's fields.
func (d *Document) SetData(data value.ObjectValue) { d.data = data }

// Field returns the value at the given field path.
func (d *Document) Field(path value.FieldPath) (value.Value, bool) {
	return d.data.Field(path)
}

// IsValidDocument returns whether any state is cached for this key.
func (d *Document) IsValidDocument() bool { return d.docType != DocumentTypeInvalid }

// IsFoundDocument returns whether the document is known to exist.
func (d *Document) IsFoundDocument() bool { return d.docType == DocumentTypeFound }

// IsNoDocument returns whether the document is a tombstone.
func (d *Document) IsNoDocument() bool { return d.docType == DocumentTypeNoDocument }

// IsUnknownDocument returns whether the document's existence is unknown.
func (d *Document) IsUnknownDocument() bool { return d.docType == DocumentTypeUnknown }

// HasLocalMutations returns whether unacknowledged local writes apply.
func (d *Document) HasLocalMutations() bool { return d.hasLocalMutations }

// HasCommittedMutations returns whether acknowledged-but-unconfirmed writes
// apply.
func (d *Document) HasCommittedMutations() bool { return d.hasCommittedMutations }

// HasPendingWrites returns whether any write has not yet been confirmed by a
// remote event.
func (d *Document) HasPendingWrites() bool {
	return d.hasLocalMutations || d.hasCommittedMutations
}

// Clone returns an independent copy of this document.
func (d *Document) Clone() *Document {
	clone := *d
	return &clone
}

// Equals returns whether two documents carry the same state.
func (d *Document) Equals(other *Document) bool {
	return d.key == other.key &&
		d.docType == other.docType &&
		d.version.Equals(other.version) &&
		d.hasLocalMutations == other.hasLocalMutations &&
		d.hasCommittedMutations == other.hasCommittedMutations &&
		value.Equals(d.data.Value(), other.data.Value())
}

// String returns a printable representation of this document.
func (d *Document) String() string {
	return fmt.Sprintf("Document(%s, type=%d, version=%s, data=%s)",
		d.key, d.docType, d.version, value.CanonicalID(d.data.Value()))
}
