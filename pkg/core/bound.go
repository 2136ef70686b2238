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

package core

import (
	"strings"

	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

// Bound restricts a query's result range. Position holds one component per
// sort clause, compared in clause order; a position on the key clause is a
// reference value naming a document path.
type Bound struct {
	Position  []value.Value
	Inclusive bool
}

// NewBound creates a bound at the given position.
func NewBound(inclusive bool, position ...value.Value) Bound {
	return Bound{Position: position, Inclusive: inclusive}
}

// compareToDocument compares this bound's position against the document along
// the given sort clauses.
func (b Bound) compareToDocument(orderBys []OrderBy, doc *model.Document) value.Result {
	for i, component := range b.Position {
		if i >= len(orderBys) {
			break
		}
		o := orderBys[i]

		var cmp value.Result
		if o.IsKeyOrderBy() {
			key := model.DocumentKeyFromString(component.ReferenceValue())
			cmp = key.Compare(doc.Key())
		} else {
			docValue, ok := doc.Field(o.Field)
			if !ok {
				cmp = value.Descending
			} else {
				cmp = value.Compare(component, docValue)
			}
		}
		if o.Direction == Descending {
			cmp = cmp.Reverse()
		}
		if cmp != value.Same {
			return cmp
		}
	}
	return value.Same
}

// SortsBeforeDocument returns whether a query starting at this bound includes
// the document.
func (b Bound) SortsBeforeDocument(orderBys []OrderBy, doc *model.Document) bool {
	cmp := b.compareToDocument(orderBys, doc)
	if b.Inclusive {
		return cmp != value.Descending
	}
	return cmp == value.Ascending
}

// SortsAfterDocument returns whether a query ending at this bound includes
// the document.
func (b Bound) SortsAfterDocument(orderBys []OrderBy, doc *model.Document) bool {
	cmp := b.compareToDocument(orderBys, doc)
	if b.Inclusive {
		return cmp != value.Ascending
	}
	return cmp == value.Descending
}

// CanonicalID returns a deterministic serialization of this bound.
func (b Bound) CanonicalID() string {
	var sb strings.Builder
	if b.Inclusive {
		sb.WriteString("b:")
	} else {
		sb.WriteString("a:")
	}
	for _, component := range b.Position {
		sb.WriteString(value.CanonicalID(component))
	}
	return sb.String()
}
