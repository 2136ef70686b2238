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

// Package core provides structured queries over the document model: filters,
// ordering, bounds and limits, together with the matching and comparison
// semantics the local query engine shares with the server.
package core

import (
	"fmt"
	"strings"

	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

// KeyFieldName is the sentinel field name ordering documents by key.
const KeyFieldName = "__name__"

// Operator is a filter's comparison operator.
type Operator int

const (
	// OperatorLessThan matches fields strictly below the bound.
	OperatorLessThan Operator = iota

	// OperatorLessThanOrEqual matches fields at or below the bound.
	OperatorLessThanOrEqual

	// OperatorEqual matches fields equal to the bound.
	OperatorEqual

	// OperatorNotEqual matches existing, non-null fields different from the
	// bound.
	OperatorNotEqual

	// OperatorGreaterThan matches fields strictly above the bound.
	OperatorGreaterThan

	// OperatorGreaterThanOrEqual matches fields at or above the bound.
	OperatorGreaterThanOrEqual

	// OperatorArrayContains matches array fields containing the bound.
	OperatorArrayContains

	// OperatorIn matches fields equal to any element of the bound array.
	OperatorIn
)

// String returns the operator's query-string form.
func (op Operator) String() string {
	switch op {
	case OperatorLessThan:
		return "<"
	case OperatorLessThanOrEqual:
		return "<="
	case OperatorEqual:
		return "=="
	case OperatorNotEqual:
		return "!="
	case OperatorGreaterThan:
		return ">"
	case OperatorGreaterThanOrEqual:
		return ">="
	case OperatorArrayContains:
		return "array-contains"
	case OperatorIn:
		return "in"
	default:
		panic(fmt.Sprintf("invalid operator: %d", int(op)))
	}
}

// IsInequality returns whether the operator constrains a range.
func (op Operator) IsInequality() bool {
	switch op {
	case OperatorLessThan, OperatorLessThanOrEqual,
		OperatorGreaterThan, OperatorGreaterThanOrEqual, OperatorNotEqual:
		return true
	default:
		return false
	}
}

// Filter restricts the documents a query matches by one field.
type Filter struct {
	Field value.FieldPath
	Op    Operator
	Value value.Value
}

// NewFilter creates a filter on the given dot-separated field path.
func NewFilter(field string, op Operator, v value.Value) Filter {
	return Filter{Field: value.ParseFieldPath(field), Op: op, Value: v}
}

// Matches returns whether the given document passes this filter.
func (f Filter) Matches(doc *model.Document) bool {
	docValue, ok := doc.Field(f.Field)

	switch f.Op {
	case OperatorNotEqual:
		// Not-equal never matches missing or null fields, and matches across
		// type classes.
		if !ok || docValue.IsNull() {
			return false
		}
		return !sameTypeAndOrder(docValue, f.Value)

	case OperatorArrayContains:
		if !ok || !docValue.IsArray() {
			return false
		}
		for _, element := range docValue.ArrayValue() {
			if sameTypeAndOrder(element, f.Value) {
				return true
			}
		}
		return false

	case OperatorIn:
		if !ok {
			return false
		}
		for _, element := range f.Value.ArrayValue() {
			if sameTypeAndOrder(docValue, element) {
				return true
			}
		}
		return false

	default:
		// Range and equality operators only match values of the same type
		// class; comparing a string field against a number bound never
		// matches.
		if !ok || value.TypeOrderOf(docValue) != value.TypeOrderOf(f.Value) {
			return false
		}
		return matchesComparison(f.Op, value.Compare(docValue, f.Value))
	}
}

func sameTypeAndOrder(a, b value.Value) bool {
	return value.TypeOrderOf(a) == value.TypeOrderOf(b) && value.Compare(a, b) == value.Same
}

func matchesComparison(op Operator, cmp value.Result) bool {
	switch op {
	case OperatorLessThan:
		return cmp == value.Ascending
	case OperatorLessThanOrEqual:
		return cmp != value.Descending
	case OperatorEqual:
		return cmp == value.Same
	case OperatorGreaterThan:
		return cmp == value.Descending
	case OperatorGreaterThanOrEqual:
		return cmp != value.Ascending
	default:
		panic(fmt.Sprintf("operator %s cannot be evaluated by comparison", op))
	}
}

// String returns the filter's canonical form.
func (f Filter) String() string {
	return fmt.Sprintf("%s%s%s", f.Field, f.Op, value.CanonicalID(f.Value))
}

// Direction orders a sort clause.
type Direction int

const (
	// Ascending sorts smaller values first.
	Ascending Direction = 1

	// Descending sorts larger values first.
	Descending Direction = -1
)

// OrderBy is a single sort clause of a query.
type OrderBy struct {
	Field     value.FieldPath
	Direction Direction
}

// NewOrderBy creates a sort clause on the given dot-separated field path.
func NewOrderBy(field string, direction Direction) OrderBy {
	return OrderBy{Field: value.ParseFieldPath(field), Direction: direction}
}

// IsKeyOrderBy returns whether this clause sorts by document key.
func (o OrderBy) IsKeyOrderBy() bool {
	return o.Field.String() == KeyFieldName
}

// Compare orders two documents by this clause.
func (o OrderBy) Compare(a, b *model.Document) value.Result {
	var cmp value.Result
	if o.IsKeyOrderBy() {
		cmp = a.Key().Compare(b.Key())
	} else {
		aValue, aOK := a.Field(o.Field)
		bValue, bOK := b.Field(o.Field)
		switch {
		case !aOK && !bOK:
			cmp = value.Same
		case !aOK:
			cmp = value.Ascending
		case !bOK:
			cmp = value.Descending
		default:
			cmp = value.Compare(aValue, bValue)
		}
	}
	if o.Direction == Descending {
		cmp = cmp.Reverse()
	}
	return cmp
}

// String returns the clause's canonical form.
func (o OrderBy) String() string {
	direction := "asc"
	if o.Direction == Descending {
		direction = "desc"
	}
	return fmt.Sprintf("%s %s", o.Field, direction)
}

// LimitType says which end of the sorted result a limit keeps.
type LimitType int

const (
	// LimitTypeNone means the query is unbounded.
	LimitTypeNone LimitType = iota

	// LimitTypeFirst keeps the first n documents.
	LimitTypeFirst

	// LimitTypeLast keeps the last n documents.
	LimitTypeLast
)

// Query is a structured read over one collection, one collection group or a
// single document path.
type Query struct {
	path            model.ResourcePath
	collectionGroup string
	filters         []Filter
	orderBys        []OrderBy
	limit           int64
	limitType       LimitType
	startAt         *Bound
	endAt           *Bound
}

// NewQuery creates a query over the given collection or document path.
func NewQuery(path model.ResourcePath) Query {
	return Query{path: path, limitType: LimitTypeNone}
}

// NewCollectionGroupQuery creates a query over every collection with the
// given id.
func NewCollectionGroupQuery(collectionID string) Query {
	return Query{collectionGroup: collectionID, limitType: LimitTypeNone}
}

// Path returns the query's path.
func (q Query) Path() model.ResourcePath { return q.path }

// CollectionGroup returns the collection group id, or "".
func (q Query) CollectionGroup() string { return q.collectionGroup }

// Filters returns the query's filters.
func (q Query) Filters() []Filter { return q.filters }

// Limit returns the query's limit; only meaningful when HasLimit.
func (q Query) Limit() int64 { return q.limit }

// LimitType returns which end of the result the limit keeps.
func (q Query) LimitType() LimitType { return q.limitType }

// HasLimit returns whether the query carries a limit clause.
func (q Query) HasLimit() bool { return q.limitType != LimitTypeNone }

// WithFilter returns the query narrowed by an additional filter.
func (q Query) WithFilter(f Filter) Query {
	filters := make([]Filter, 0, len(q.filters)+1)
	filters = append(filters, q.filters...)
	filters = append(filters, f)
	q.filters = filters
	return q
}

// WithOrderBy returns the query with an additional sort clause.
func (q Query) WithOrderBy(o OrderBy) Query {
	orderBys := make([]OrderBy, 0, len(q.orderBys)+1)
	orderBys = append(orderBys, q.orderBys...)
	orderBys = append(orderBys, o)
	q.orderBys = orderBys
	return q
}

// WithLimitToFirst returns the query keeping only the first n results.
func (q Query) WithLimitToFirst(n int64) Query {
	q.limit = n
	q.limitType = LimitTypeFirst
	return q
}

// WithLimitToLast returns the query keeping only the last n results.
func (q Query) WithLimitToLast(n int64) Query {
	q.limit = n
	q.limitType = LimitTypeLast
	return q
}

// WithoutLimit returns the query with any limit removed.
func (q Query) WithoutLimit() Query {
	q.limit = 0
	q.limitType = LimitTypeNone
	return q
}

// StartingAt returns the query bounded below.
func (q Query) StartingAt(b Bound) Query {
	q.startAt = &b
	return q
}

// EndingAt returns the query bounded above.
func (q Query) EndingAt(b Bound) Query {
	q.endAt = &b
	return q
}

// AsCollectionQueryAtPath rebinds a collection group query to one concrete
// collection path.
func (q Query) AsCollectionQueryAtPath(path model.ResourcePath) Query {
	q.path = path
	q.collectionGroup = ""
	return q
}

// IsDocumentQuery returns whether the query targets a single document path.
func (q Query) IsDocumentQuery() bool {
	return model.IsDocumentKeyPath(q.path) && q.collectionGroup == "" && len(q.filters) == 0
}

// IsCollectionGroupQuery returns whether the query spans a collection group.
func (q Query) IsCollectionGroupQuery() bool {
	return q.collectionGroup != ""
}

// MatchesAllDocuments returns whether the query applies no narrowing beyond
// its collection: no filters, bounds, limits or non-key ordering. Such
// queries gain nothing from previous results; every document has to be
// examined anyway.
func (q Query) MatchesAllDocuments() bool {
	if len(q.filters) > 0 || q.HasLimit() || q.startAt != nil || q.endAt != nil {
		return false
	}
	return len(q.orderBys) == 0 || (len(q.orderBys) == 1 && q.orderBys[0].IsKeyOrderBy())
}

// OrderBys returns the effective sort clauses: the explicit clauses followed
// by the implicit by-key tiebreaker, directed like the last explicit clause.
func (q Query) OrderBys() []OrderBy {
	direction := Ascending
	for _, o := range q.orderBys {
		direction = o.Direction
		if o.IsKeyOrderBy() {
			return q.orderBys
		}
	}
	result := make([]OrderBy, 0, len(q.orderBys)+1)
	result = append(result, q.orderBys...)
	result = append(result, OrderBy{Field: value.ParseFieldPath(KeyFieldName), Direction: direction})
	return result
}

// Matches returns whether the document belongs to this query's result set.
func (q Query) Matches(doc *model.Document) bool {
	return doc.IsFoundDocument() &&
		q.matchesPath(doc) &&
		q.matchesFilters(doc) &&
		q.matchesOrderBys(doc) &&
		q.matchesBounds(doc)
}

func (q Query) matchesPath(doc *model.Document) bool {
	docPath := doc.Key().Path()
	if q.collectionGroup != "" {
		return doc.Key().HasCollectionID(q.collectionGroup) && q.path.IsPrefixOf(docPath)
	}
	if model.IsDocumentKeyPath(q.path) {
		return q.path.Equals(docPath)
	}
	return q.path.IsImmediateParentOf(docPath)
}

func (q Query) matchesFilters(doc *model.Document) bool {
	for _, f := range q.filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

// matchesOrderBys requires the document to carry a value for every explicit
// non-key sort field; order is undefined for missing fields.
func (q Query) matchesOrderBys(doc *model.Document) bool {
	for _, o := range q.orderBys {
		if o.IsKeyOrderBy() {
			continue
		}
		if _, ok := doc.Field(o.Field); !ok {
			return false
		}
	}
	return true
}

func (q Query) matchesBounds(doc *model.Document) bool {
	orderBys := q.OrderBys()
	if q.startAt != nil && !q.startAt.SortsBeforeDocument(orderBys, doc) {
		return false
	}
	if q.endAt != nil && !q.endAt.SortsAfterDocument(orderBys, doc) {
		return false
	}
	return true
}

// Comparator returns the document ordering induced by this query's sort
// clauses.
func (q Query) Comparator() model.DocumentComparator {
	orderBys := q.OrderBys()
	return func(a, b *model.Document) value.Result {
		for _, o := range orderBys {
			if cmp := o.Compare(a, b); cmp != value.Same {
				return cmp
			}
		}
		return value.Same
	}
}

// CanonicalID returns a deterministic serialization of this query, usable as
// a cache key.
func (q Query) CanonicalID() string {
	var b strings.Builder
	b.WriteString(q.path.String())

	if q.collectionGroup != "" {
		b.WriteString("|cg:")
		b.WriteString(q.collectionGroup)
	}

	b.WriteString("|f:")
	for _, f := range q.filters {
		b.WriteString(f.String())
	}

	b.WriteString("|ob:")
	for _, o := range q.OrderBys() {
		b.WriteString(o.String())
	}

	if q.HasLimit() {
		b.WriteString("|l:")
		fmt.Fprintf(&b, "%d", q.limit)
	}
	if q.startAt != nil {
		b.WriteString("|lb:")
		b.WriteString(q.startAt.CanonicalID())
	}
	if q.endAt != nil {
		b.WriteString("|ub:")
		b.WriteString(q.endAt.CanonicalID())
	}

	return b.String()
}

// String returns the canonical id.
func (q Query) String() string {
	return fmt.Sprintf("Query(%s)", q.CanonicalID())
}
