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
	"strings"

	"github.com/ember-db/ember/pkg/model/value"
)

// DocumentComparator orders two documents, typically by a query's order-by
// clauses.
type DocumentComparator func(a, b *Document) value.Result

// KeyComparator orders documents by key only.
func KeyComparator(a, b *Document) value.Result {
	return a.Key().Compare(b.Key())
}

// DocumentSet is a set of documents ordered by a comparator, backed by a
// left-leaning red-black tree.
//
// Invariant 1: No red node has a red child
// Invariant 2: Every leaf path has the same number of black nodes
// Invariant 3: Only the left child can be red (left leaning)
type DocumentSet struct {
	compare DocumentComparator
	root    *documentNode
	byKey   DocumentMap
}

type documentNode struct {
	doc   *Document
	left  *documentNode
	right *documentNode
	isRed bool
}

// NewDocumentSet creates a document set ordered by the given comparator.
// Documents comparing equally are ordered by key.
func NewDocumentSet(compare DocumentComparator) *DocumentSet {
	full := func(a, b *Document) value.Result {
		if cmp := compare(a, b); cmp != value.Same {
			return cmp
		}
		return KeyComparator(a, b)
	}
	return &DocumentSet{compare: full, byKey: DocumentMap{}}
}

// Len returns the number of documents in the set.
func (s *DocumentSet) Len() int {
	return len(s.byKey)
}

// ContainsKey returns whether a document with the given key is in the set.
func (s *DocumentSet) ContainsKey(key DocumentKey) bool {
	_, ok := s.byKey[key]
	return ok
}

// Get returns the document with the given key, if present.
func (s *DocumentSet) Get(key DocumentKey) (*Document, bool) {
	doc, ok := s.byKey[key]
	return doc, ok
}

// Add inserts the document, replacing any previous document with the same
// key.
func (s *DocumentSet) Add(doc *Document) {
	if previous, ok := s.byKey[doc.Key()]; ok {
		s.root = s.remove(s.root, previous)
		if s.root != nil {
			s.root.isRed = false
		}
	}
	s.byKey[doc.Key()] = doc
	s.root = s.put(s.root, doc)
	s.root.isRed = false
}

// Remove removes the document with the given key, if present.
func (s *DocumentSet) Remove(key DocumentKey) {
	doc, ok := s.byKey[key]
	if !ok {
		return
	}
	delete(s.byKey, key)

	if !isRed(s.root.left) && !isRed(s.root.right) {
		s.root.isRed = true
	}
	s.root = s.remove(s.root, doc)
	if s.root != nil {
		s.root.isRed = false
	}
}

// First returns the document that sorts first, or nil for an empty set.
func (s *DocumentSet) First() *Document {
	node := s.root
	if node == nil {
		return nil
	}
	for node.left != nil {
		node = node.left
	}
	return node.doc
}

// Last returns the document that sorts last, or nil for an empty set.
func (s *DocumentSet) Last() *Document {
	node := s.root
	if node == nil {
		return nil
	}
	for node.right != nil {
		node = node.right
	}
	return node.doc
}

// Documents returns the documents in comparator order.
func (s *DocumentSet) Documents() []*Document {
	docs := make([]*Document, 0, len(s.byKey))
	traverseInOrder(s.root, func(node *documentNode) {
		docs = append(docs, node.doc)
	})
	return docs
}

// String returns the keys of the set in comparator order.
func (s *DocumentSet) String() string {
	var keys []string
	traverseInOrder(s.root, func(node *documentNode) {
		keys = append(keys, node.doc.Key().String())
	})
	return "[" + strings.Join(keys, ",") + "]"
}

func (s *DocumentSet) put(node *documentNode, doc *Document) *documentNode {
	if node == nil {
		return &documentNode{doc: doc, isRed: true}
	}

	cmp := s.compare(doc, node.doc)
	if cmp < 0 {
		node.left = s.put(node.left, doc)
	} else if cmp > 0 {
		node.right = s.put(node.right, doc)
	} else {
		node.doc = doc
	}

	return fixUp(node)
}

func (s *DocumentSet) remove(node *documentNode, doc *Document) *documentNode {
	if s.compare(doc, node.doc) < 0 {
		if !isRed(node.left) && !isRed(node.left.left) {
			node = moveRedLeft(node)
		}
		node.left = s.remove(node.left, doc)
	} else {
		if isRed(node.left) {
			node = rotateRight(node)
		}

		if s.compare(doc, node.doc) == value.Same && node.right == nil {
			return nil
		}

		if !isRed(node.right) && !isRed(node.right.left) {
			node = moveRedRight(node)
		}

		if s.compare(doc, node.doc) == value.Same {
			smallest := minNode(node.right)
			node.doc = smallest.doc
			node.right = removeMin(node.right)
		} else {
			node.right = s.remove(node.right, doc)
		}
	}

	return fixUp(node)
}

func rotateLeft(node *documentNode) *documentNode {
	right := node.right
	node.right = right.left
	right.left = node
	right.isRed = right.left.isRed
	right.left.isRed = true
	return right
}

func rotateRight(node *documentNode) *documentNode {
	left := node.left
	node.left = left.right
	left.right = node
	left.isRed = left.right.isRed
	left.right.isRed = true
	return left
}

func flipColors(node *documentNode) {
	node.isRed = !node.isRed
	node.left.isRed = !node.left.isRed
	node.right.isRed = !node.right.isRed
}

func moveRedLeft(node *documentNode) *documentNode {
	flipColors(node)
	if isRed(node.right.left) {
		node.right = rotateRight(node.right)
		node = rotateLeft(node)
		flipColors(node)
	}
	return node
}

func moveRedRight(node *documentNode) *documentNode {
	flipColors(node)
	if isRed(node.left.left) {
		node = rotateRight(node)
		flipColors(node)
	}
	return node
}

func removeMin(node *documentNode) *documentNode {
	if node.left == nil {
		return nil
	}
	if !isRed(node.left) && !isRed(node.left.left) {
		node = moveRedLeft(node)
	}
	node.left = removeMin(node.left)
	return fixUp(node)
}

func minNode(node *documentNode) *documentNode {
	if node.left == nil {
		return node
	}
	return minNode(node.left)
}

func fixUp(node *documentNode) *documentNode {
	if isRed(node.right) && !isRed(node.left) {
		node = rotateLeft(node)
	}
	if isRed(node.left) && isRed(node.left.left) {
		node = rotateRight(node)
	}
	if isRed(node.left) && isRed(node.right) {
		flipColors(node)
	}
	return node
}

func isRed(node *documentNode) bool {
	return node != nil && node.isRed
}

func traverseInOrder(node *documentNode, callback func(node *documentNode)) {
	if node == nil {
		return
	}
	traverseInOrder(node.left, callback)
	callback(node)
	traverseInOrder(node.right, callback)
}
