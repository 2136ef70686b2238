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

// Package value provides the dynamically-typed field value model of documents
// and its server-defined ordering. Values form a closed set of types; the
// ordering across types and within each type mirrors the backend so that
// locally-computed query results agree with the server's.
package value

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Type is the tag of a Value variant.
type Type int

const (
	// TypeNull is the null value.
	TypeNull Type = iota

	// TypeBoolean is a boolean value.
	TypeBoolean

	// TypeInteger is a 64-bit integer value.
	TypeInteger

	// TypeDouble is a 64-bit floating point value.
	TypeDouble

	// TypeTimestamp is a timestamp value.
	TypeTimestamp

	// TypeString is a string value.
	TypeString

	// TypeBytes is a byte blob value.
	TypeBytes

	// TypeReference is a reference to another document, stored as the full
	// resource path of that document.
	TypeReference

	// TypeGeoPoint is a geographical point value.
	TypeGeoPoint

	// TypeArray is an ordered list of values.
	TypeArray

	// TypeMap is a map of field names to values. Insertion order is preserved
	// for iteration; canonical ids and comparisons use key-sorted order.
	TypeMap
)

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// MapEntry is a single field of a map value.
type MapEntry struct {
	Key   string
	Value Value
}

// Value is a single field value of a document. The zero value is null.
type Value struct {
	valueType Type

	boolean   bool
	integer   int64
	double    float64
	timestamp time.Time
	str       string
	bytes     []byte
	reference string
	geoPoint  GeoPoint
	array     []Value
	entries   []MapEntry
}

// Null returns the null value.
func Null() Value {
	return Value{valueType: TypeNull}
}

// Boolean returns a boolean value.
func Boolean(b bool) Value {
	return Value{valueType: TypeBoolean, boolean: b}
}

// Integer returns an integer value.
func Integer(i int64) Value {
	return Value{valueType: TypeInteger, integer: i}
}

// Double returns a double value.
func Double(d float64) Value {
	return Value{valueType: TypeDouble, double: d}
}

// NaN returns the double value NaN.
func NaN() Value {
	return Double(math.NaN())
}

// Timestamp returns a timestamp value.
func Timestamp(t time.Time) Value {
	return Value{valueType: TypeTimestamp, timestamp: t}
}

// String returns a string value.
func String(s string) Value {
	return Value{valueType: TypeString, str: s}
}

// Bytes returns a byte blob value.
func Bytes(b []byte) Value {
	return Value{valueType: TypeBytes, bytes: b}
}

// Reference returns a reference value for the given document resource path.
func Reference(path string) Value {
	return Value{valueType: TypeReference, reference: path}
}

// GeoPointValue returns a geo point value.
func GeoPointValue(latitude, longitude float64) Value {
	return Value{valueType: TypeGeoPoint, geoPoint: GeoPoint{latitude, longitude}}
}

// Array returns an array value of the given elements.
func Array(elements ...Value) Value {
	return Value{valueType: TypeArray, array: elements}
}

// Map returns a map value of the given entries in the given order.
func Map(entries ...MapEntry) Value {
	return Value{valueType: TypeMap, entries: entries}
}

// ValueType returns the tag of this value.
func (v Value) ValueType() Type {
	return v.valueType
}

// IsNull returns whether this value is null.
func (v Value) IsNull() bool {
	return v.valueType == TypeNull
}

// IsNaN returns whether this value is the double NaN.
func (v Value) IsNaN() bool {
	return v.valueType == TypeDouble && math.IsNaN(v.double)
}

// IsMap returns whether this value is a map.
func (v Value) IsMap() bool {
	return v.valueType == TypeMap
}

// IsArray returns whether this value is an array.
func (v Value) IsArray() bool {
	return v.valueType == TypeArray
}

// IsNumber returns whether this value is an integer or a double.
func (v Value) IsNumber() bool {
	return v.valueType == TypeInteger || v.valueType == TypeDouble
}

// BooleanValue returns the boolean payload.
func (v Value) BooleanValue() bool { return v.boolean }

// IntegerValue returns the integer payload.
func (v Value) IntegerValue() int64 { return v.integer }

// DoubleValue returns the double payload.
func (v Value) DoubleValue() float64 { return v.double }

// TimestampValue returns the timestamp payload.
func (v Value) TimestampValue() time.Time { return v.timestamp }

// StringValue returns the string payload.
func (v Value) StringValue() string { return v.str }

// BytesValue returns the blob payload.
func (v Value) BytesValue() []byte { return v.bytes }

// ReferenceValue returns the reference payload.
func (v Value) ReferenceValue() string { return v.reference }

// GeoPointValue returns the geo point payload.
func (v Value) GeoPointValue() GeoPoint { return v.geoPoint }

// ArrayValue returns the elements of an array value.
func (v Value) ArrayValue() []Value { return v.array }

// MapValue returns the entries of a map value in insertion order.
func (v Value) MapValue() []MapEntry { return v.entries }

// Field returns the value of the given map field.
func (v Value) Field(key string) (Value, bool) {
	for _, entry := range v.entries {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return Value{}, false
}

// sortedEntries returns the map entries in key-sorted order.
func (v Value) sortedEntries() []MapEntry {
	entries := make([]MapEntry, len(v.entries))
	copy(entries, v.entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// NumberValue returns the numeric payload of an integer or double as a double.
func (v Value) NumberValue() float64 {
	if v.valueType == TypeInteger {
		return float64(v.integer)
	}
	return v.double
}

// Contains reports whether the given array value contains an element equal to
// needle.
func Contains(haystack Value, needle Value) bool {
	for _, element := range haystack.array {
		if Equals(element, needle) {
			return true
		}
	}
	return false
}

// String returns the canonical id of this value.
func (v Value) String() string {
	return CanonicalID(v)
}

func invalidTypeTag(t Type) string {
	return fmt.Sprintf("invalid value type tag: %d", t)
}
