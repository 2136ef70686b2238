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

package value

import (
	"bytes"
	"math"
	"strings"
	"time"
)

// Result is the outcome of a three-way comparison.
type Result int

const (
	// Ascending means the left operand sorts before the right.
	Ascending Result = -1

	// Same means the operands sort equally.
	Same Result = 0

	// Descending means the left operand sorts after the right.
	Descending Result = 1
)

// Reverse returns the opposite comparison result.
func (r Result) Reverse() Result {
	return -r
}

// TypeOrder establishes the relative ordering of value types. Values of
// different types always sort by their type order.
type TypeOrder int

const (
	// TypeOrderNull sorts null values first.
	TypeOrderNull TypeOrder = iota

	// TypeOrderBoolean sorts booleans after null.
	TypeOrderBoolean

	// TypeOrderNumber sorts integers and doubles together.
	TypeOrderNumber

	// TypeOrderTimestamp sorts timestamps after numbers.
	TypeOrderTimestamp

	// TypeOrderServerTimestamp sorts unresolved server timestamps after all
	// concrete timestamps.
	TypeOrderServerTimestamp

	// TypeOrderString sorts strings after timestamps.
	TypeOrderString

	// TypeOrderBlob sorts byte blobs after strings.
	TypeOrderBlob

	// TypeOrderReference sorts document references after blobs.
	TypeOrderReference

	// TypeOrderGeoPoint sorts geo points after references.
	TypeOrderGeoPoint

	// TypeOrderArray sorts arrays after geo points.
	TypeOrderArray

	// TypeOrderMap sorts maps last.
	TypeOrderMap
)

// TypeOrderOf returns the type order of the given value.
func TypeOrderOf(v Value) TypeOrder {
	switch v.valueType {
	case TypeNull:
		return TypeOrderNull
	case TypeBoolean:
		return TypeOrderBoolean
	case TypeInteger, TypeDouble:
		return TypeOrderNumber
	case TypeTimestamp:
		return TypeOrderTimestamp
	case TypeString:
		return TypeOrderString
	case TypeBytes:
		return TypeOrderBlob
	case TypeReference:
		return TypeOrderReference
	case TypeGeoPoint:
		return TypeOrderGeoPoint
	case TypeArray:
		return TypeOrderArray
	case TypeMap:
		if IsServerTimestamp(v) {
			return TypeOrderServerTimestamp
		}
		return TypeOrderMap
	default:
		panic(invalidTypeTag(v.valueType))
	}
}

// Compare gives the total order of two values: first by type order, then by
// the type-specific comparison.
func Compare(left, right Value) Result {
	leftType := TypeOrderOf(left)
	rightType := TypeOrderOf(right)
	if leftType != rightType {
		return compareInt64(int64(leftType), int64(rightType))
	}

	switch leftType {
	case TypeOrderNull:
		return Same
	case TypeOrderBoolean:
		return compareBooleans(left.boolean, right.boolean)
	case TypeOrderNumber:
		return compareNumbers(left, right)
	case TypeOrderTimestamp:
		return compareTimestamps(left.timestamp, right.timestamp)
	case TypeOrderServerTimestamp:
		return compareTimestamps(LocalWriteTime(left), LocalWriteTime(right))
	case TypeOrderString:
		return resultFromInt(strings.Compare(left.str, right.str))
	case TypeOrderBlob:
		return resultFromInt(bytes.Compare(left.bytes, right.bytes))
	case TypeOrderReference:
		return compareReferences(left.reference, right.reference)
	case TypeOrderGeoPoint:
		return compareGeoPoints(left.geoPoint, right.geoPoint)
	case TypeOrderArray:
		return compareArrays(left.array, right.array)
	case TypeOrderMap:
		return compareMaps(left, right)
	default:
		panic(invalidTypeTag(left.valueType))
	}
}

// Equals returns whether two values are equal. Equality is stricter than
// ordering: an integer and a double never compare equal even when they hold
// the same numeric value, and doubles are compared bitwise so that NaN equals
// NaN and -0.0 does not equal 0.0.
func Equals(left, right Value) bool {
	leftType := TypeOrderOf(left)
	if leftType != TypeOrderOf(right) {
		return false
	}

	switch leftType {
	case TypeOrderNull:
		return true
	case TypeOrderBoolean:
		return left.boolean == right.boolean
	case TypeOrderNumber:
		return numberEquals(left, right)
	case TypeOrderTimestamp:
		return timestampEquals(left.timestamp, right.timestamp)
	case TypeOrderServerTimestamp:
		return timestampEquals(LocalWriteTime(left), LocalWriteTime(right))
	case TypeOrderString:
		return left.str == right.str
	case TypeOrderBlob:
		return bytes.Equal(left.bytes, right.bytes)
	case TypeOrderReference:
		return left.reference == right.reference
	case TypeOrderGeoPoint:
		return left.geoPoint == right.geoPoint
	case TypeOrderArray:
		if len(left.array) != len(right.array) {
			return false
		}
		for i := range left.array {
			if !Equals(left.array[i], right.array[i]) {
				return false
			}
		}
		return true
	case TypeOrderMap:
		if len(left.entries) != len(right.entries) {
			return false
		}
		return compareMaps(left, right) == Same
	default:
		panic(invalidTypeTag(left.valueType))
	}
}

const (
	minInt64AsDouble = -0x1p63
	maxInt64AsDouble = 0x1p63
)

// compareNumbers compares integers and doubles numerically. NaN sorts before
// all other numbers. Mixed integer/double comparison must not lose precision:
// the double is first bounded against the representable int64 range, then the
// integer is widened to a double, and a tie is re-verified by narrowing the
// double back to an integer so that rounding during widening cannot produce a
// false equality.
func compareNumbers(left, right Value) Result {
	if left.valueType == TypeDouble {
		if right.valueType == TypeDouble {
			return compareDoubles(left.double, right.double)
		}
		return compareMixedNumber(left.double, right.integer)
	}

	if right.valueType == TypeInteger {
		return compareInt64(left.integer, right.integer)
	}
	return compareMixedNumber(right.double, left.integer).Reverse()
}

// compareMixedNumber compares a double against an int64.
func compareMixedNumber(doubleValue float64, integerValue int64) Result {
	if math.IsNaN(doubleValue) {
		return Ascending
	}
	if doubleValue < minInt64AsDouble {
		return Ascending
	}
	// 2^63 is the first double past the largest representable int64.
	if doubleValue >= maxInt64AsDouble {
		return Descending
	}

	result := compareDoubles(doubleValue, float64(integerValue))
	if result != Same {
		return result
	}

	// Widening the integer may have rounded it onto the double. The double is
	// integral and in range here, so narrowing is exact.
	return compareInt64(int64(doubleValue), integerValue)
}

func compareDoubles(left, right float64) Result {
	if left < right {
		return Ascending
	}
	if left > right {
		return Descending
	}
	if left == right {
		return Same
	}

	// One or both are NaN. NaN sorts before all numbers.
	if math.IsNaN(left) {
		if math.IsNaN(right) {
			return Same
		}
		return Ascending
	}
	return Descending
}

func numberEquals(left, right Value) bool {
	if left.valueType == TypeInteger && right.valueType == TypeInteger {
		return left.integer == right.integer
	}
	if left.valueType == TypeDouble && right.valueType == TypeDouble {
		return math.Float64bits(left.double) == math.Float64bits(right.double)
	}
	return false
}

func compareBooleans(left, right bool) Result {
	if left == right {
		return Same
	}
	if !left {
		return Ascending
	}
	return Descending
}

func compareInt64(left, right int64) Result {
	if left < right {
		return Ascending
	}
	if left > right {
		return Descending
	}
	return Same
}

func compareTimestamps(left, right time.Time) Result {
	if cmp := compareInt64(left.Unix(), right.Unix()); cmp != Same {
		return cmp
	}
	return compareInt64(int64(left.Nanosecond()), int64(right.Nanosecond()))
}

func timestampEquals(left, right time.Time) bool {
	return left.Unix() == right.Unix() && left.Nanosecond() == right.Nanosecond()
}

func compareReferences(left, right string) Result {
	leftSegments := splitReference(left)
	rightSegments := splitReference(right)
	for i := 0; i < len(leftSegments) && i < len(rightSegments); i++ {
		if cmp := resultFromInt(strings.Compare(leftSegments[i], rightSegments[i])); cmp != Same {
			return cmp
		}
	}
	return compareInt64(int64(len(leftSegments)), int64(len(rightSegments)))
}

func splitReference(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func compareGeoPoints(left, right GeoPoint) Result {
	if cmp := compareDoubles(left.Latitude, right.Latitude); cmp != Same {
		return cmp
	}
	return compareDoubles(left.Longitude, right.Longitude)
}

func compareArrays(left, right []Value) Result {
	for i := 0; i < len(left) && i < len(right); i++ {
		if cmp := Compare(left[i], right[i]); cmp != Same {
			return cmp
		}
	}
	return compareInt64(int64(len(left)), int64(len(right)))
}

// compareMaps compares maps in key-sorted order regardless of insertion
// order, comparing keys before values at each position.
func compareMaps(left, right Value) Result {
	leftEntries := left.sortedEntries()
	rightEntries := right.sortedEntries()

	for i := 0; i < len(leftEntries) && i < len(rightEntries); i++ {
		if cmp := resultFromInt(strings.Compare(leftEntries[i].Key, rightEntries[i].Key)); cmp != Same {
			return cmp
		}
		if cmp := Compare(leftEntries[i].Value, rightEntries[i].Value); cmp != Same {
			return cmp
		}
	}
	return compareInt64(int64(len(leftEntries)), int64(len(rightEntries)))
}

func resultFromInt(cmp int) Result {
	if cmp < 0 {
		return Ascending
	}
	if cmp > 0 {
		return Descending
	}
	return Same
}
