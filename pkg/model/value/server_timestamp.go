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

import "time"

// Server timestamps are written as a sentinel map value so that unresolved
// transforms survive serialization through the local caches. The hidden
// fields carry the local write time and, if known, the value the field held
// before the transform.
const (
	typeFieldKey           = "__type__"
	serverTimestampTypeTag = "server_timestamp"
	localWriteTimeFieldKey = "__local_write_time__"
	previousValueFieldKey  = "__previous_value__"
)

// ServerTimestamp returns the sentinel value for an unacknowledged server
// timestamp transform. previous carries the field's prior value, if any.
func ServerTimestamp(localWriteTime time.Time, previous *Value) Value {
	entries := []MapEntry{
		{Key: typeFieldKey, Value: String(serverTimestampTypeTag)},
		{Key: localWriteTimeFieldKey, Value: Timestamp(localWriteTime)},
	}
	if previous != nil {
		entries = append(entries, MapEntry{Key: previousValueFieldKey, Value: *previous})
	}
	return Map(entries...)
}

// IsServerTimestamp returns whether the given value is a server timestamp
// sentinel.
func IsServerTimestamp(v Value) bool {
	if v.valueType != TypeMap {
		return false
	}
	tag, ok := v.Field(typeFieldKey)
	return ok && tag.valueType == TypeString && tag.str == serverTimestampTypeTag
}

// LocalWriteTime returns the local write time of a server timestamp sentinel.
func LocalWriteTime(v Value) time.Time {
	ts, ok := v.Field(localWriteTimeFieldKey)
	if !ok || ts.valueType != TypeTimestamp {
		panic("value is not a server timestamp sentinel")
	}
	return ts.timestamp
}

// PreviousValue returns the value the field held before the server timestamp
// transform was applied, unwrapping chains of sentinels.
func PreviousValue(v Value) (Value, bool) {
	previous, ok := v.Field(previousValueFieldKey)
	if !ok {
		return Value{}, false
	}
	if IsServerTimestamp(previous) {
		return PreviousValue(previous)
	}
	return previous, true
}
