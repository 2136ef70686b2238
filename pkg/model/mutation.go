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

// FieldPath is re-exported from the value package.
type FieldPath = value.FieldPath

// FieldMask is re-exported from the value package.
type FieldMask = value.FieldMask

// MutationType tags the variants of a mutation.
type MutationType int

const (
	// MutationTypeSet replaces the whole document.
	MutationTypeSet MutationType = iota

	// MutationTypePatch updates the masked fields, leaving the rest intact.
	MutationTypePatch

	// MutationTypeDelete removes the document.
	MutationTypeDelete

	// MutationTypeVerify asserts a precondition without changing data. Only
	// used inside transactions; it has no local-view effect.
	MutationTypeVerify
)

// PreconditionType tags the variants of a mutation precondition.
type PreconditionType int

const (
	// PreconditionNone imposes no requirement.
	PreconditionNone PreconditionType = iota

	// PreconditionExists requires the document to exist, or to not exist.
	PreconditionExists

	// PreconditionUpdateTime requires the document to exist at an exact
	// version.
	PreconditionUpdateTime
)

// Precondition restricts when a mutation may apply. A mutation whose
// precondition does not hold against the current local view is a no-op for
// that document, not an error.
type Precondition struct {
	preconditionType PreconditionType
	exists           bool
	updateTime       SnapshotVersion
}

// NoPrecondition returns the always-valid precondition.
func NoPrecondition() Precondition {
	return Precondition{preconditionType: PreconditionNone}
}

// ExistsPrecondition requires the document to exist (or not).
func ExistsPrecondition(exists bool) Precondition {
	return Precondition{preconditionType: PreconditionExists, exists: exists}
}

// UpdateTimePrecondition requires the document to exist at the given version.
func UpdateTimePrecondition(updateTime SnapshotVersion) Precondition {
	return Precondition{preconditionType: PreconditionUpdateTime, updateTime: updateTime}
}

// IsValidFor returns whether the precondition holds against the given
// document state.
func (p Precondition) IsValidFor(doc *Document) bool {
	switch p.preconditionType {
	case PreconditionNone:
		return true
	case PreconditionExists:
		return doc.IsFoundDocument() == p.exists
	case PreconditionUpdateTime:
		return doc.IsFoundDocument() && doc.Version().Equals(p.updateTime)
	default:
		panic(fmt.Sprintf("invalid precondition type: %d", p.preconditionType))
	}
}

// IsNone returns whether this is the always-valid precondition.
func (p Precondition) IsNone() bool {
	return p.preconditionType == PreconditionNone
}

// Mutation describes a single local write against one document. The closed
// set of variants is tagged by MutationType.
type Mutation struct {
	mutationType MutationType
	key          DocumentKey
	data         value.ObjectValue
	fieldMask    FieldMask
	transforms   []FieldTransform
	precondition Precondition
}

// NewSetMutation creates a mutation that replaces the document with data.
func NewSetMutation(key DocumentKey, data value.ObjectValue, transforms ...FieldTransform) Mutation {
	return Mutation{
		mutationType: MutationTypeSet,
		key:          key,
		data:         data,
		precondition: NoPrecondition(),
		transforms:   transforms,
	}
}

// NewPatchMutation creates a mutation that updates the masked fields of the
// document. By default a patch requires the document to exist.
func NewPatchMutation(
	key DocumentKey,
	data value.ObjectValue,
	mask FieldMask,
	transforms ...FieldTransform,
) Mutation {
	return Mutation{
		mutationType: MutationTypePatch,
		key:          key,
		data:         data,
		fieldMask:    mask,
		precondition: ExistsPrecondition(true),
		transforms:   transforms,
	}
}

// NewMergeMutation creates a patch mutation with no precondition, as produced
// by merge-style writes and overlay squashing.
func NewMergeMutation(key DocumentKey, data value.ObjectValue, mask FieldMask) Mutation {
	return Mutation{
		mutationType: MutationTypePatch,
		key:          key,
		data:         data,
		fieldMask:    mask,
		precondition: NoPrecondition(),
	}
}

// NewDeleteMutation creates a mutation that removes the document.
func NewDeleteMutation(key DocumentKey) Mutation {
	return Mutation{
		mutationType: MutationTypeDelete,
		key:          key,
		data:         value.EmptyObject(),
		precondition: NoPrecondition(),
	}
}

// NewVerifyMutation creates a mutation that only asserts its precondition.
func NewVerifyMutation(key DocumentKey, precondition Precondition) Mutation {
	return Mutation{
		mutationType: MutationTypeVerify,
		key:          key,
		data:         value.EmptyObject(),
		precondition: precondition,
	}
}

// WithPrecondition returns this mutation carrying the given precondition.
func (m Mutation) WithPrecondition(precondition Precondition) Mutation {
	m.precondition = precondition
	return m
}

// Type returns the variant tag.
func (m Mutation) Type() MutationType { return m.mutationType }

// Key returns the key of the document this mutation targets.
func (m Mutation) Key() DocumentKey { return m.key }

// Data returns the mutation's data payload.
func (m Mutation) Data() value.ObjectValue { return m.data }

// Mask returns the patch mutation's field mask.
func (m Mutation) Mask() FieldMask { return m.fieldMask }

// Transforms returns the mutation's field transforms.
func (m Mutation) Transforms() []FieldTransform { return m.transforms }

// Precondition returns the mutation's precondition.
func (m Mutation) Precondition() Precondition { return m.precondition }

// IsZero returns whether this is the zero mutation.
func (m Mutation) IsZero() bool { return m.key.IsZero() }

// ApplyToLocalView applies this mutation to the given document for
// local-view purposes, before any acknowledgement. previousMask carries the
// fields mutated by earlier batches (nil meaning "whole document"); the
// returned mask extends it with this mutation's effect.
func (m Mutation) ApplyToLocalView(doc *Document, previousMask *FieldMask, localWriteTime time.Time) *FieldMask {
	switch m.mutationType {
	case MutationTypeSet:
		if !m.precondition.IsValidFor(doc) {
			return previousMask
		}
		newData := m.data
		if len(m.transforms) > 0 {
			results := m.localTransformResults(doc, localWriteTime)
			newData = m.transformObject(newData, results)
		}
		doc.ConvertToFoundDocument(doc.Version(), newData)
		doc.SetHasLocalMutations()
		return nil

	case MutationTypePatch:
		if !m.precondition.IsValidFor(doc) {
			return previousMask
		}
		results := m.localTransformResults(doc, localWriteTime)
		newData := m.patchDocument(doc)
		newData = m.transformObject(newData, results)
		doc.ConvertToFoundDocument(doc.Version(), newData)
		doc.SetHasLocalMutations()
		if previousMask == nil {
			return nil
		}
		extended := previousMask.Union(m.fieldMask)
		for _, transform := range m.transforms {
			extended = extended.Insert(transform.Field)
		}
		return &extended

	case MutationTypeDelete:
		if !m.precondition.IsValidFor(doc) {
			return previousMask
		}
		doc.ConvertToNoDocument(doc.Version())
		doc.SetHasLocalMutations()
		return nil

	case MutationTypeVerify:
		return previousMask

	default:
		panic(fmt.Sprintf("invalid mutation type: %d", m.mutationType))
	}
}

// ApplyToRemoteDocument applies an acknowledged mutation to the given
// document using the server's per-mutation result.
func (m Mutation) ApplyToRemoteDocument(doc *Document, result MutationResult) {
	switch m.mutationType {
	case MutationTypeSet:
		newData := m.transformObject(m.data, m.serverTransformResults(doc, result.TransformResults))
		doc.ConvertToFoundDocument(result.Version, newData)
		doc.SetHasCommittedMutations()

	case MutationTypePatch:
		if !m.precondition.IsValidFor(doc) {
			// The server applied the patch against state the client has not
			// seen. The local existence state can no longer be trusted.
			doc.ConvertToUnknownDocument(result.Version)
			return
		}
		results := m.serverTransformResults(doc, result.TransformResults)
		newData := m.patchDocument(doc)
		newData = m.transformObject(newData, results)
		doc.ConvertToFoundDocument(result.Version, newData)
		doc.SetHasCommittedMutations()

	case MutationTypeDelete:
		// Deletes are applied at the commit version. Subsequent remote events
		// at or above this version confirm the tombstone.
		doc.ConvertToNoDocument(result.Version)
		doc.SetHasCommittedMutations()

	case MutationTypeVerify:
		panic("verify mutations should only be used inside transactions")

	default:
		panic(fmt.Sprintf("invalid mutation type: %d", m.mutationType))
	}
}

// patchDocument applies the masked fields of this patch onto the document's
// current data.
func (m Mutation) patchDocument(doc *Document) value.ObjectValue {
	data := doc.Data()
	for _, path := range m.fieldMask.Paths() {
		if newValue, ok := m.data.Field(path); ok {
			data = data.Set(path, newValue)
		} else {
			data = data.Delete(path)
		}
	}
	return data
}

// transformObject replaces each transform's field with its computed result.
func (m Mutation) transformObject(data value.ObjectValue, results []value.Value) value.ObjectValue {
	if len(results) != len(m.transforms) {
		panic(fmt.Sprintf("transform results length mismatch: %d != %d", len(results), len(m.transforms)))
	}
	for i, transform := range m.transforms {
		data = data.Set(transform.Field, results[i])
	}
	return data
}

// localTransformResults computes each transform's locally-observable result
// against the document's current state.
func (m Mutation) localTransformResults(doc *Document, localWriteTime time.Time) []value.Value {
	results := make([]value.Value, 0, len(m.transforms))
	for _, transform := range m.transforms {
		previous, ok := doc.Field(transform.Field)
		var previousPtr *value.Value
		if ok {
			previousPtr = &previous
		}
		results = append(results, transform.Operation.ApplyToLocalView(previousPtr, localWriteTime))
	}
	return results
}

// serverTransformResults pairs the server-supplied transform results with
// this mutation's transforms. The server returns one result per transform.
func (m Mutation) serverTransformResults(doc *Document, transformResults []value.Value) []value.Value {
	if len(m.transforms) == 0 {
		return nil
	}
	if len(transformResults) != len(m.transforms) {
		panic(fmt.Sprintf(
			"server transform results count %d does not match transforms count %d",
			len(transformResults), len(m.transforms)))
	}
	return transformResults
}

// ExtractTransformBaseValue collects the base values of this mutation's
// non-idempotent transforms against the document's current state. Returns
// false when no transform needs a base captured.
func (m Mutation) ExtractTransformBaseValue(doc *Document) (value.ObjectValue, FieldMask, bool) {
	baseObject := value.EmptyObject()
	baseMask := value.NewFieldMask()
	found := false
	for _, transform := range m.transforms {
		previous, ok := doc.Field(transform.Field)
		var previousPtr *value.Value
		if ok {
			previousPtr = &previous
		}
		if base, needed := transform.Operation.ComputeBaseValue(previousPtr); needed {
			baseObject = baseObject.Set(transform.Field, base)
			baseMask = baseMask.Insert(transform.Field)
			found = true
		}
	}
	return baseObject, baseMask, found
}

// CalculateOverlayMutation squashes the total local effect recorded on doc
// into a single mutation. mask carries the fields mutated by the pending
// batches (nil meaning the whole document was replaced or deleted). Returns
// the zero mutation and false if the document needs no overlay.
func CalculateOverlayMutation(doc *Document, mask *FieldMask) (Mutation, bool) {
	if !doc.HasLocalMutations() || (mask != nil && mask.Len() == 0) {
		return Mutation{}, false
	}

	if mask == nil {
		if doc.IsNoDocument() {
			return NewDeleteMutation(doc.Key()), true
		}
		return NewSetMutation(doc.Key(), doc.Data()), true
	}

	docData := doc.Data()
	patchData := value.EmptyObject()
	processed := value.NewFieldMask()
	for _, path := range mask.Paths() {
		if processed.Contains(path) {
			continue
		}
		fieldValue, ok := docData.Field(path)
		// A deleted nested field may have implicitly created its parent. Use
		// the parent as the mask entry so the overlay keeps it alive.
		if !ok && path.Len() > 1 {
			path = value.NewFieldPath(path.Segments()[:path.Len()-1]...)
			fieldValue, ok = docData.Field(path)
		}
		if ok {
			patchData = patchData.Set(path, fieldValue)
		}
		processed = processed.Insert(path)
	}

	return NewMergeMutation(doc.Key(), patchData, processed), true
}
