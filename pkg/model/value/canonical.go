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
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// CanonicalID returns a deterministic string serialization of the given
// value, usable as a stable cache or index key. Map fields are serialized in
// key-sorted order so that two maps holding the same fields produce the same
// id regardless of insertion order.
func CanonicalID(v Value) string {
	switch v.valueType {
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case TypeInteger:
		return strconv.FormatInt(v.integer, 10)
	case TypeDouble:
		return fmt.Sprintf("%.1f", v.double)
	case TypeTimestamp:
		return fmt.Sprintf("time(%d,%d)", v.timestamp.Unix(), v.timestamp.Nanosecond())
	case TypeString:
		return v.str
	case TypeBytes:
		return hex.EncodeToString(v.bytes)
	case TypeReference:
		return v.reference
	case TypeGeoPoint:
		return fmt.Sprintf("geo(%.1f,%.1f)", v.geoPoint.Latitude, v.geoPoint.Longitude)
	case TypeArray:
		return canonifyArray(v.array)
	case TypeMap:
		return canonifyMap(v)
	default:
		panic(invalidTypeTag(v.valueType))
	}
}

func canonifyArray(elements []Value) string {
	var b strings.Builder
	b.WriteString("[")
	for i, element := range elements {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(CanonicalID(element))
	}
	b.WriteString("]")
	return b.String()
}

func canonifyMap(v Value) string {
	var b strings.Builder
	b.WriteString("{")
	for i, entry := range v.sortedEntries() {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(entry.Key)
		b.WriteString(":")
		b.WriteString(CanonicalID(entry.Value))
	}
	b.WriteString("}")
	return b.String()
}
