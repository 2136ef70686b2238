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

package model_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

func version(seconds int64) model.SnapshotVersion {
	return model.NewSnapshotVersion(time.Unix(seconds, 0))
}

func fields(entries ...value.MapEntry) value.ObjectValue {
	return value.NewObjectValue(value.Map(entries...))
}

func entry(key string, v value.Value) value.MapEntry {
	return value.MapEntry{Key: key, Value: v}
}

// applyAsBatch applies the mutations as one batch to a clone of base and
// returns both the replayed document and the overlay the batch produced.
func applyAsBatch(base *model.Document, mutations ...model.Mutation) (*model.Document, model.Mutation, bool) {
	batch := model.MutationBatch{
		BatchID:        1,
		LocalWriteTime: time.Unix(1000, 0),
		Mutations:      mutations,
	}
	replayed := base.Clone()
	overlays := batch.ApplyToLocalDocumentSet(model.DocumentMap{base.Key(): replayed})
	overlay, ok := overlays[base.Key()]
	return replayed, overlay, ok
}

func TestMutationOverlays(t *testing.T) {
	key := model.DocumentKeyFromString("rooms/a")

	t.Run("set after patch squashes to a set overlay test", func(t *testing.T) {
		base := model.NewFoundDocument(key, version(1), fields(entry("a", value.Integer(1))))
		replayed, overlay, ok := applyAsBatch(base,
			model.NewPatchMutation(key, fields(entry("b", value.Integer(2))),
				value.NewFieldMask(value.ParseFieldPath("b"))),
			model.NewSetMutation(key, fields(entry("c", value.Integer(3)))),
		)
		assert.True(t, ok)
		assert.Equal(t, model.MutationTypeSet, overlay.Type())

		viaOverlay := base.Clone()
		overlay.ApplyToLocalView(viaOverlay, nil, time.Unix(1000, 0))
		assert.True(t, viaOverlay.Equals(replayed))
	})

	t.Run("merge after delete squashes to a set overlay test", func(t *testing.T) {
		base := model.NewFoundDocument(key, version(1), fields(entry("a", value.Integer(1))))
		replayed, overlay, ok := applyAsBatch(base,
			model.NewDeleteMutation(key),
			model.NewMergeMutation(key, fields(entry("b", value.Integer(2))),
				value.NewFieldMask(value.ParseFieldPath("b"))),
		)
		assert.True(t, ok)
		assert.Equal(t, model.MutationTypeSet, overlay.Type())

		viaOverlay := base.Clone()
		overlay.ApplyToLocalView(viaOverlay, nil, time.Unix(1000, 0))
		assert.True(t, viaOverlay.Equals(replayed))
		assert.True(t, replayed.IsFoundDocument())
	})

	t.Run("delete squashes to a delete overlay test", func(t *testing.T) {
		base := model.NewFoundDocument(key, version(1), fields(entry("a", value.Integer(1))))
		replayed, overlay, ok := applyAsBatch(base, model.NewDeleteMutation(key))
		assert.True(t, ok)
		assert.Equal(t, model.MutationTypeDelete, overlay.Type())
		assert.True(t, replayed.IsNoDocument())
	})

	t.Run("consecutive patches squash to one merge overlay test", func(t *testing.T) {
		base := model.NewFoundDocument(key, version(1), fields(
			entry("a", value.Integer(1)),
			entry("b", value.Integer(2)),
		))
		replayed, overlay, ok := applyAsBatch(base,
			model.NewPatchMutation(key, fields(entry("b", value.Integer(3))),
				value.NewFieldMask(value.ParseFieldPath("b"))),
			model.NewPatchMutation(key, fields(entry("c", value.Integer(4))),
				value.NewFieldMask(value.ParseFieldPath("c"))),
		)
		assert.True(t, ok)
		assert.Equal(t, model.MutationTypePatch, overlay.Type())
		assert.True(t, overlay.Precondition().IsNone())
		assert.True(t, overlay.Mask().Contains(value.ParseFieldPath("b")))
		assert.True(t, overlay.Mask().Contains(value.ParseFieldPath("c")))

		viaOverlay := base.Clone()
		mask := value.NewFieldMask()
		overlay.ApplyToLocalView(viaOverlay, &mask, time.Unix(1000, 0))
		assert.True(t, viaOverlay.Equals(replayed))
	})

	t.Run("overlay keeps the parent of a deleted nested field test", func(t *testing.T) {
		base := model.NewFoundDocument(key, version(1), fields(
			entry("a", value.Map(entry("c", value.Integer(1)))),
		))
		_, overlay, ok := applyAsBatch(base,
			model.NewMergeMutation(key, value.EmptyObject(),
				value.NewFieldMask(value.ParseFieldPath("a.b"))),
		)
		assert.True(t, ok)
		assert.Equal(t, model.MutationTypePatch, overlay.Type())
		assert.Equal(t, 1, overlay.Mask().Len())
		assert.True(t, overlay.Mask().Contains(value.ParseFieldPath("a")))
	})

	t.Run("document with no local change needs no overlay test", func(t *testing.T) {
		base := model.NewInvalidDocument(key)
		replayed, _, ok := applyAsBatch(base,
			model.NewPatchMutation(key, fields(entry("a", value.Integer(1))),
				value.NewFieldMask(value.ParseFieldPath("a"))),
		)
		// The patch precondition fails against a missing document, so the
		// replay leaves the document untouched.
		assert.False(t, ok)
		assert.False(t, replayed.IsValidDocument())
	})
}

func TestMutationLocalView(t *testing.T) {
	key := model.DocumentKeyFromString("rooms/a")

	t.Run("patch skips when its precondition fails test", func(t *testing.T) {
		doc := model.NewNoDocument(key, version(1))
		m := model.NewPatchMutation(key, fields(entry("a", value.Integer(1))),
			value.NewFieldMask(value.ParseFieldPath("a")))

		mask := value.NewFieldMask()
		result := m.ApplyToLocalView(doc, &mask, time.Unix(1000, 0))
		assert.Equal(t, &mask, result)
		assert.True(t, doc.IsNoDocument())
		assert.False(t, doc.HasLocalMutations())
	})

	t.Run("server timestamp keeps the previous value locally test", func(t *testing.T) {
		writeTime := time.Unix(2000, 0)
		doc := model.NewFoundDocument(key, version(1), fields(entry("t", value.Integer(5))))
		m := model.NewPatchMutation(key, value.EmptyObject(), value.NewFieldMask(),
			model.FieldTransform{Field: value.ParseFieldPath("t"), Operation: model.ServerTimestampTransform()})

		m.ApplyToLocalView(doc, nil, writeTime)

		got, ok := doc.Field(value.ParseFieldPath("t"))
		assert.True(t, ok)
		assert.True(t, value.IsServerTimestamp(got))
		assert.True(t, writeTime.Equal(value.LocalWriteTime(got)))
		previous, ok := value.PreviousValue(got)
		assert.True(t, ok)
		assert.True(t, value.Equals(value.Integer(5), previous))
	})

	t.Run("increments observe the local value test", func(t *testing.T) {
		doc := model.NewFoundDocument(key, version(1), fields(entry("n", value.Integer(7))))
		m := model.NewPatchMutation(key, value.EmptyObject(), value.NewFieldMask(),
			model.FieldTransform{Field: value.ParseFieldPath("n"), Operation: model.IncrementTransform(value.Integer(3))})

		m.ApplyToLocalView(doc, nil, time.Unix(1000, 0))

		got, _ := doc.Field(value.ParseFieldPath("n"))
		assert.True(t, value.Equals(value.Integer(10), got))
	})

	t.Run("array union and remove transform locally test", func(t *testing.T) {
		doc := model.NewFoundDocument(key, version(1), fields(
			entry("tags", value.Array(value.String("a"), value.String("b"))),
		))
		m := model.NewPatchMutation(key, value.EmptyObject(), value.NewFieldMask(),
			model.FieldTransform{
				Field:     value.ParseFieldPath("tags"),
				Operation: model.ArrayUnionTransform(value.String("b"), value.String("c")),
			})
		m.ApplyToLocalView(doc, nil, time.Unix(1000, 0))

		got, _ := doc.Field(value.ParseFieldPath("tags"))
		assert.True(t, value.Equals(
			value.Array(value.String("a"), value.String("b"), value.String("c")), got))

		m = model.NewPatchMutation(key, value.EmptyObject(), value.NewFieldMask(),
			model.FieldTransform{
				Field:     value.ParseFieldPath("tags"),
				Operation: model.ArrayRemoveTransform(value.String("a")),
			})
		m.ApplyToLocalView(doc, nil, time.Unix(1000, 0))

		got, _ = doc.Field(value.ParseFieldPath("tags"))
		assert.True(t, value.Equals(value.Array(value.String("b"), value.String("c")), got))
	})
}

func TestTransformOperations(t *testing.T) {
	t.Run("integer increments saturate at the int64 bounds test", func(t *testing.T) {
		maxed := value.Integer(math.MaxInt64)
		got := model.IncrementTransform(value.Integer(1)).ApplyToLocalView(&maxed, time.Unix(0, 0))
		assert.True(t, value.Equals(value.Integer(math.MaxInt64), got))

		floored := value.Integer(math.MinInt64)
		got = model.IncrementTransform(value.Integer(-1)).ApplyToLocalView(&floored, time.Unix(0, 0))
		assert.True(t, value.Equals(value.Integer(math.MinInt64), got))
	})

	t.Run("mixed increments produce doubles test", func(t *testing.T) {
		previous := value.Integer(1)
		got := model.IncrementTransform(value.Double(0.5)).ApplyToLocalView(&previous, time.Unix(0, 0))
		assert.True(t, value.Equals(value.Double(1.5), got))
	})

	t.Run("increments treat non-numeric previous values as zero test", func(t *testing.T) {
		previous := value.String("not a number")
		got := model.IncrementTransform(value.Integer(4)).ApplyToLocalView(&previous, time.Unix(0, 0))
		assert.True(t, value.Equals(value.Integer(4), got))
	})

	t.Run("only increments need base values test", func(t *testing.T) {
		key := model.DocumentKeyFromString("rooms/a")
		doc := model.NewFoundDocument(key, version(1), fields(entry("n", value.Integer(7))))

		m := model.NewPatchMutation(key, value.EmptyObject(), value.NewFieldMask(),
			model.FieldTransform{Field: value.ParseFieldPath("n"), Operation: model.IncrementTransform(value.Integer(1))},
			model.FieldTransform{Field: value.ParseFieldPath("t"), Operation: model.ServerTimestampTransform()})

		baseObject, baseMask, found := m.ExtractTransformBaseValue(doc)
		assert.True(t, found)
		assert.Equal(t, 1, baseMask.Len())
		assert.True(t, baseMask.Contains(value.ParseFieldPath("n")))
		base, ok := baseObject.Field(value.ParseFieldPath("n"))
		assert.True(t, ok)
		assert.True(t, value.Equals(value.Integer(7), base))

		m = model.NewPatchMutation(key, value.EmptyObject(), value.NewFieldMask(),
			model.FieldTransform{Field: value.ParseFieldPath("t"), Operation: model.ServerTimestampTransform()})
		_, _, found = m.ExtractTransformBaseValue(doc)
		assert.False(t, found)
	})
}

func TestMutationAcknowledgement(t *testing.T) {
	key := model.DocumentKeyFromString("rooms/a")

	t.Run("acknowledged set commits at the result version test", func(t *testing.T) {
		doc := model.NewFoundDocument(key, version(1), fields(entry("a", value.Integer(1))))
		m := model.NewSetMutation(key, fields(entry("a", value.Integer(2))))

		m.ApplyToRemoteDocument(doc, model.MutationResult{Version: version(2)})

		assert.True(t, doc.IsFoundDocument())
		assert.True(t, doc.Version().Equals(version(2)))
		assert.True(t, doc.HasCommittedMutations())
		assert.False(t, doc.HasLocalMutations())
	})

	t.Run("acknowledged patch against unseen state yields an unknown document test", func(t *testing.T) {
		doc := model.NewInvalidDocument(key)
		m := model.NewPatchMutation(key, fields(entry("a", value.Integer(1))),
			value.NewFieldMask(value.ParseFieldPath("a")))

		m.ApplyToRemoteDocument(doc, model.MutationResult{Version: version(3)})

		assert.True(t, doc.IsUnknownDocument())
		assert.True(t, doc.Version().Equals(version(3)))
		assert.True(t, doc.HasCommittedMutations())
	})

	t.Run("acknowledged delete leaves a committed tombstone test", func(t *testing.T) {
		doc := model.NewFoundDocument(key, version(1), fields(entry("a", value.Integer(1))))
		model.NewDeleteMutation(key).ApplyToRemoteDocument(doc, model.MutationResult{Version: version(4)})

		assert.True(t, doc.IsNoDocument())
		assert.True(t, doc.Version().Equals(version(4)))
		assert.True(t, doc.HasCommittedMutations())
	})

	t.Run("batch results fall back to the commit version for deletes test", func(t *testing.T) {
		batch := model.MutationBatch{
			BatchID:        7,
			LocalWriteTime: time.Unix(1000, 0),
			Mutations: []model.Mutation{
				model.NewSetMutation(key, fields(entry("a", value.Integer(1)))),
				model.NewDeleteMutation(model.DocumentKeyFromString("rooms/b")),
			},
		}
		result := model.NewMutationBatchResult(batch, version(9), []model.MutationResult{
			{Version: version(8)},
			{},
		}, nil)

		assert.True(t, result.DocVersions[key].Equals(version(8)))
		assert.True(t, result.DocVersions[model.DocumentKeyFromString("rooms/b")].Equals(version(9)))
	})
}
