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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

func scoreDoc(id string, score int64) *model.Document {
	return model.NewFoundDocument(
		model.DocumentKeyFromString("rooms/"+id),
		version(1),
		fields(entry("score", value.Integer(score))),
	)
}

func byScore(a, b *model.Document) value.Result {
	av, _ := a.Field(value.ParseFieldPath("score"))
	bv, _ := b.Field(value.ParseFieldPath("score"))
	return value.Compare(av, bv)
}

func keysOf(docs []*model.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.Key().String())
	}
	return ids
}

func TestDocumentSet(t *testing.T) {
	t.Run("documents iterate in comparator order test", func(t *testing.T) {
		set := model.NewDocumentSet(byScore)
		set.Add(scoreDoc("b", 3))
		set.Add(scoreDoc("a", 2))
		set.Add(scoreDoc("c", 1))

		assert.Equal(t, 3, set.Len())
		assert.Equal(t, []string{"rooms/c", "rooms/a", "rooms/b"}, keysOf(set.Documents()))
	})

	t.Run("equal comparator values break ties by key test", func(t *testing.T) {
		set := model.NewDocumentSet(byScore)
		set.Add(scoreDoc("b", 1))
		set.Add(scoreDoc("a", 1))
		set.Add(scoreDoc("c", 1))

		assert.Equal(t, []string{"rooms/a", "rooms/b", "rooms/c"}, keysOf(set.Documents()))
	})

	t.Run("adding a key again replaces and reorders test", func(t *testing.T) {
		set := model.NewDocumentSet(byScore)
		set.Add(scoreDoc("a", 1))
		set.Add(scoreDoc("b", 2))
		set.Add(scoreDoc("a", 3))

		assert.Equal(t, 2, set.Len())
		assert.Equal(t, []string{"rooms/b", "rooms/a"}, keysOf(set.Documents()))

		got, ok := set.Get(model.DocumentKeyFromString("rooms/a"))
		assert.True(t, ok)
		score, _ := got.Field(value.ParseFieldPath("score"))
		assert.True(t, value.Equals(value.Integer(3), score))
	})

	t.Run("first and last follow the comparator test", func(t *testing.T) {
		set := model.NewDocumentSet(byScore)
		assert.Nil(t, set.First())
		assert.Nil(t, set.Last())

		set.Add(scoreDoc("a", 5))
		set.Add(scoreDoc("b", 1))
		set.Add(scoreDoc("c", 9))

		assert.Equal(t, "rooms/b", set.First().Key().String())
		assert.Equal(t, "rooms/c", set.Last().Key().String())
	})

	t.Run("remove keeps the remaining order test", func(t *testing.T) {
		set := model.NewDocumentSet(byScore)
		for i := 0; i < 10; i++ {
			set.Add(scoreDoc(fmt.Sprintf("doc%d", i), int64(10-i)))
		}

		set.Remove(model.DocumentKeyFromString("rooms/doc5"))
		set.Remove(model.DocumentKeyFromString("rooms/doc0"))
		set.Remove(model.DocumentKeyFromString("rooms/missing"))

		assert.Equal(t, 8, set.Len())
		assert.False(t, set.ContainsKey(model.DocumentKeyFromString("rooms/doc5")))
		assert.Equal(t, []string{
			"rooms/doc9", "rooms/doc8", "rooms/doc7", "rooms/doc6",
			"rooms/doc4", "rooms/doc3", "rooms/doc2", "rooms/doc1",
		}, keysOf(set.Documents()))
	})
}
