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

package value_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ember-db/ember/pkg/model/value"
)

func TestCompare(t *testing.T) {
	t.Run("values of different types order by type test", func(t *testing.T) {
		// One representative per type class, in ascending type order.
		ordered := []value.Value{
			value.Null(),
			value.Boolean(false),
			value.Integer(1),
			value.Timestamp(time.Unix(100, 0)),
			value.String("a"),
			value.Bytes([]byte{0x01}),
			value.Reference("rooms/a"),
			value.GeoPointValue(1, 2),
			value.Array(value.Integer(1)),
			value.Map(value.MapEntry{Key: "a", Value: value.Integer(1)}),
		}
		for i := 0; i < len(ordered); i++ {
			for j := 0; j < len(ordered); j++ {
				expected := value.Same
				if i < j {
					expected = value.Ascending
				} else if i > j {
					expected = value.Descending
				}
				assert.Equal(t, expected, value.Compare(ordered[i], ordered[j]),
					"comparing %s to %s", ordered[i], ordered[j])
			}
		}
	})

	t.Run("server timestamps order between timestamps and strings test", func(t *testing.T) {
		st := value.ServerTimestamp(time.Unix(50, 0), nil)
		assert.Equal(t, value.Ascending, value.Compare(value.Timestamp(time.Unix(100, 0)), st))
		assert.Equal(t, value.Descending, value.Compare(value.String(""), st))
	})

	t.Run("integers and doubles order numerically test", func(t *testing.T) {
		assert.Equal(t, value.Same, value.Compare(value.Integer(1), value.Double(1.0)))
		assert.Equal(t, value.Ascending, value.Compare(value.Integer(1), value.Double(1.5)))
		assert.Equal(t, value.Descending, value.Compare(value.Double(2.5), value.Integer(2)))
	})

	t.Run("mixed comparison at int64 boundaries test", func(t *testing.T) {
		// 2^63 is not representable as int64; the double side decides.
		assert.Equal(t, value.Ascending,
			value.Compare(value.Integer(math.MaxInt64), value.Double(math.Pow(2, 63))))
		assert.Equal(t, value.Descending,
			value.Compare(value.Integer(math.MinInt64), value.Double(-math.Pow(2, 63)-math.Pow(2, 11))))
		// MaxInt64 rounds to 2^63 as a double; the exact integer is smaller.
		assert.Equal(t, value.Ascending,
			value.Compare(value.Integer(math.MaxInt64), value.Double(float64(math.MaxInt64))))
	})

	t.Run("nan sorts before every number test", func(t *testing.T) {
		assert.Equal(t, value.Ascending, value.Compare(value.NaN(), value.Double(math.Inf(-1))))
		assert.Equal(t, value.Ascending, value.Compare(value.NaN(), value.Integer(math.MinInt64)))
		assert.Equal(t, value.Same, value.Compare(value.NaN(), value.NaN()))
	})

	t.Run("zero and negative zero compare same test", func(t *testing.T) {
		assert.Equal(t, value.Same, value.Compare(value.Double(0.0), value.Double(math.Copysign(0, -1))))
		assert.Equal(t, value.Same, value.Compare(value.Double(0.0), value.Integer(0)))
	})

	t.Run("timestamps order chronologically test", func(t *testing.T) {
		assert.Equal(t, value.Ascending,
			value.Compare(value.Timestamp(time.Unix(1, 0)), value.Timestamp(time.Unix(1, 1))))
		assert.Equal(t, value.Descending,
			value.Compare(value.Timestamp(time.Unix(2, 0)), value.Timestamp(time.Unix(1, 999999999))))
	})

	t.Run("references order segment-wise test", func(t *testing.T) {
		assert.Equal(t, value.Ascending,
			value.Compare(value.Reference("rooms/a"), value.Reference("rooms/b")))
		assert.Equal(t, value.Ascending,
			value.Compare(value.Reference("rooms/a"), value.Reference("rooms/a/messages/1")))
	})

	t.Run("arrays order element-wise then by length test", func(t *testing.T) {
		assert.Equal(t, value.Ascending, value.Compare(
			value.Array(value.Integer(1), value.Integer(2)),
			value.Array(value.Integer(1), value.Integer(3))))
		assert.Equal(t, value.Ascending, value.Compare(
			value.Array(value.Integer(1)),
			value.Array(value.Integer(1), value.Integer(0))))
	})

	t.Run("maps order by sorted keys test", func(t *testing.T) {
		// Insertion order does not matter.
		a := value.Map(
			value.MapEntry{Key: "b", Value: value.Integer(1)},
			value.MapEntry{Key: "a", Value: value.Integer(1)},
		)
		b := value.Map(
			value.MapEntry{Key: "a", Value: value.Integer(1)},
			value.MapEntry{Key: "b", Value: value.Integer(1)},
		)
		assert.Equal(t, value.Same, value.Compare(a, b))

		c := value.Map(value.MapEntry{Key: "a", Value: value.Integer(0)})
		assert.Equal(t, value.Ascending, value.Compare(c, a))
	})
}

func TestEquals(t *testing.T) {
	t.Run("equality is stricter than ordering for numbers test", func(t *testing.T) {
		assert.False(t, value.Equals(value.Integer(1), value.Double(1.0)))
		assert.True(t, value.Equals(value.Integer(1), value.Integer(1)))
	})

	t.Run("doubles compare bitwise test", func(t *testing.T) {
		assert.True(t, value.Equals(value.NaN(), value.NaN()))
		assert.False(t, value.Equals(value.Double(0.0), value.Double(math.Copysign(0, -1))))
	})

	t.Run("maps equal regardless of insertion order test", func(t *testing.T) {
		a := value.Map(
			value.MapEntry{Key: "y", Value: value.String("1")},
			value.MapEntry{Key: "x", Value: value.String("2")},
		)
		b := value.Map(
			value.MapEntry{Key: "x", Value: value.String("2")},
			value.MapEntry{Key: "y", Value: value.String("1")},
		)
		assert.True(t, value.Equals(a, b))
	})
}
