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
	"math"
	"time"

	"github.com/ember-db/ember/pkg/model/value"
)

// TransformType tags the variants of a field transform.
type TransformType int

const (
	// TransformTypeServerTimestamp sets the field to the server's commit time.
	TransformTypeServerTimestamp TransformType = iota

	// TransformTypeIncrement adds a number to the field. Increments are not
	// idempotent; batches carry a base mutation capturing the value the
	// increment was computed against.
	TransformTypeIncrement

	// TransformTypeArrayUnion appends elements not already present.
	TransformTypeArrayUnion

	// TransformTypeArrayRemove removes all equal elements.
	TransformTypeArrayRemove
)

// TransformOperation is a single transform applied to one field.
type TransformOperation struct {
	transformType TransformType
	operand       value.Value
	elements      []value.Value
}

// ServerTimestampTransform returns the server timestamp transform.
func ServerTimestampTransform() TransformOperation {
	return TransformOperation{transformType: TransformTypeServerTimestamp}
}

// IncrementTransform returns a numeric increment transform. The operand must
// be an integer or double value.
func IncrementTransform(operand value.Value) TransformOperation {
	if !operand.IsNumber() {
		panic("increment transform requires a numeric operand")
	}
	return TransformOperation{transformType: TransformTypeIncrement, operand: operand}
}

// ArrayUnionTransform returns an array union transform.
func ArrayUnionTransform(elements ...value.Value) TransformOperation {
	return TransformOperation{transformType: TransformTypeArrayUnion, elements: elements}
}

// ArrayRemoveTransform returns an array remove transform.
func ArrayRemoveTransform(elements ...value.Value) TransformOperation {
	return TransformOperation{transformType: TransformTypeArrayRemove, elements: elements}
}

// Type returns the variant tag.
func (op TransformOperation) Type() TransformType { return op.transformType }

// ApplyToLocalView computes the locally-observable result of this transform
// against the field's previous value.
func (op TransformOperation) ApplyToLocalView(previous *value.Value, localWriteTime time.Time) value.Value {
	switch op.transformType {
	case TransformTypeServerTimestamp:
		return value.ServerTimestamp(localWriteTime, previous)
	case TransformTypeIncrement:
		return op.applyIncrement(previous)
	case TransformTypeArrayUnion:
		return op.applyArrayUnion(previous)
	case TransformTypeArrayRemove:
		return op.applyArrayRemove(previous)
	default:
		panic(fmt.Sprintf("invalid transform type: %d", op.transformType))
	}
}

// ComputeBaseValue returns the value the transform must be computed against
// for it to survive retries, and whether a base value is needed at all.
// Array union/remove and server timestamps are safely recomputed from any
// base; only increments need their base captured.
func (op TransformOperation) ComputeBaseValue(previous *value.Value) (value.Value, bool) {
	if op.transformType != TransformTypeIncrement {
		return value.Value{}, false
	}
	if previous != nil && previous.IsNumber() {
		return *previous, true
	}
	return value.Integer(0), true
}

func (op TransformOperation) applyIncrement(previous *value.Value) value.Value {
	base := value.Integer(0)
	if previous != nil && previous.IsNumber() {
		base = *previous
	}

	if base.ValueType() == value.TypeInteger && op.operand.ValueType() == value.TypeInteger {
		return value.Integer(saturatedAdd(base.IntegerValue(), op.operand.IntegerValue()))
	}
	return value.Double(base.NumberValue() + op.operand.NumberValue())
}

func saturatedAdd(a, b int64) int64 {
	sum := a + b
	if a > 0 && b > 0 && sum < a {
		return math.MaxInt64
	}
	if a < 0 && b < 0 && sum > a {
		return math.MinInt64
	}
	return sum
}

func (op TransformOperation) applyArrayUnion(previous *value.Value) value.Value {
	result := coerceToArray(previous)
	for _, element := range op.elements {
		if !value.Contains(value.Array(result...), element) {
			result = append(result, element)
		}
	}
	return value.Array(result...)
}

func (op TransformOperation) applyArrayRemove(previous *value.Value) value.Value {
	var result []value.Value
	for _, existing := range coerceToArray(previous) {
		removed := false
		for _, element := range op.elements {
			if value.Equals(existing, element) {
				removed = true
				break
			}
		}
		if !removed {
			result = append(result, existing)
		}
	}
	return value.Array(result...)
}

func coerceToArray(previous *value.Value) []value.Value {
	if previous == nil || !previous.IsArray() {
		return nil
	}
	elements := make([]value.Value, len(previous.ArrayValue()))
	copy(elements, previous.ArrayValue())
	return elements
}

// FieldTransform pairs a field path with the transform applied to it.
type FieldTransform struct {
	Field     FieldPath
	Operation TransformOperation
}
