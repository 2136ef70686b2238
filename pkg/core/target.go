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

import "fmt"

// Target is the server-facing form of a query: what the watch service listens
// to. Limits are dropped because the server streams every matching document
// and the client applies the limit to its view; queries differing only by
// limit share one target.
type Target struct {
	query Query
}

// ToTarget returns the target this query listens to.
func (q Query) ToTarget() Target {
	return Target{query: q.WithoutLimit()}
}

// Query returns the limit-free query backing this target.
func (t Target) Query() Query { return t.query }

// CanonicalID returns a deterministic serialization of this target, used as
// the target cache's lookup key.
func (t Target) CanonicalID() string {
	return t.query.CanonicalID()
}

// Equals returns whether two targets listen to the same documents.
func (t Target) Equals(other Target) bool {
	return t.CanonicalID() == other.CanonicalID()
}

// String returns a printable representation of this target.
func (t Target) String() string {
	return fmt.Sprintf("Target(%s)", t.CanonicalID())
}
