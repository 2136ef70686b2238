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

package local

import (
	"sort"

	"github.com/ember-db/ember/internal/logging"
)

// LruParams tunes LRU garbage collection.
type LruParams struct {
	// MinBytesThreshold is the cache size below which collection is skipped.
	MinBytesThreshold int64

	// PercentileToCollect is the share of sequence numbers eligible for
	// collection on each run, in percent.
	PercentileToCollect int

	// MaximumSequenceNumbersToCollect caps a single run.
	MaximumSequenceNumbersToCollect int
}

// DefaultLruParams returns the default collection tuning.
func DefaultLruParams() LruParams {
	return LruParams{
		MinBytesThreshold:               100 * 1024 * 1024,
		PercentileToCollect:             10,
		MaximumSequenceNumbersToCollect: 1000,
	}
}

// GCResult reports what one collection run did.
type GCResult struct {
	DidRun                   bool
	SequenceNumbersCollected int
	TargetsRemoved           int
	DocumentsRemoved         int
}

// LruDelegate is the persistence-side support the LRU collector runs
// against: sequence-number bookkeeping plus the actual removal operations.
type LruDelegate interface {
	ReferenceDelegate

	// CurrentSequenceNumber returns the sequence number of the running
	// transaction.
	CurrentSequenceNumber() ListenSequenceNumber

	// ForEachTarget calls fn for every stored target.
	ForEachTarget(fn func(TargetData)) error

	// ForEachOrphanedDocumentSequenceNumber calls fn with the sequence
	// number at which each orphaned document was last referenced.
	ForEachOrphanedDocumentSequenceNumber(fn func(ListenSequenceNumber)) error

	// RemoveTargets removes targets at or below the bound that are not
	// active, returning how many were removed.
	RemoveTargets(upperBound ListenSequenceNumber, activeTargets map[TargetID]TargetData) (int, error)

	// RemoveOrphanedDocuments evicts unreferenced documents last active at
	// or below the bound, returning how many were removed.
	RemoveOrphanedDocuments(upperBound ListenSequenceNumber) (int, error)

	// ByteSize returns the approximate size of the backing cache.
	ByteSize() (int64, error)
}

// LruGarbageCollector evicts the least recently used targets and the
// documents orphaned with them once the cache outgrows its threshold.
type LruGarbageCollector struct {
	delegate LruDelegate
	params   LruParams
}

// NewLruGarbageCollector creates a collector over the given delegate.
func NewLruGarbageCollector(delegate LruDelegate, params LruParams) *LruGarbageCollector {
	return &LruGarbageCollector{delegate: delegate, params: params}
}

// SequenceNumberCount returns how many distinct sequence numbers the cache
// holds: one per target plus one per orphaned document.
func (c *LruGarbageCollector) SequenceNumberCount() (int, error) {
	count := 0
	if err := c.delegate.ForEachTarget(func(TargetData) { count++ }); err != nil {
		return 0, err
	}
	if err := c.delegate.ForEachOrphanedDocumentSequenceNumber(func(ListenSequenceNumber) {
		count++
	}); err != nil {
		return 0, err
	}
	return count, nil
}

// QueryCountForPercentile returns how many sequence numbers the configured
// percentile selects.
func (c *LruGarbageCollector) QueryCountForPercentile(percentile int) (int, error) {
	count, err := c.SequenceNumberCount()
	if err != nil {
		return 0, err
	}
	return count * percentile / 100, nil
}

// NthSequenceNumber returns the nth smallest sequence number in the cache:
// collecting everything at or below it frees exactly n entries.
func (c *LruGarbageCollector) NthSequenceNumber(n int) (ListenSequenceNumber, error) {
	if n == 0 {
		return ListenSequenceNumber(0), nil
	}

	var sequenceNumbers []ListenSequenceNumber
	if err := c.delegate.ForEachTarget(func(data TargetData) {
		sequenceNumbers = append(sequenceNumbers, data.SequenceNumber())
	}); err != nil {
		return 0, err
	}
	if err := c.delegate.ForEachOrphanedDocumentSequenceNumber(func(seq ListenSequenceNumber) {
		sequenceNumbers = append(sequenceNumbers, seq)
	}); err != nil {
		return 0, err
	}

	sort.Slice(sequenceNumbers, func(i, j int) bool { return sequenceNumbers[i] < sequenceNumbers[j] })
	if n > len(sequenceNumbers) {
		n = len(sequenceNumbers)
	}
	return sequenceNumbers[n-1], nil
}

// Collect runs one collection cycle. Targets in activeTargets are never
// removed regardless of their age.
func (c *LruGarbageCollector) Collect(activeTargets map[TargetID]TargetData) (GCResult, error) {
	size, err := c.delegate.ByteSize()
	if err != nil {
		return GCResult{}, err
	}
	if size < c.params.MinBytesThreshold {
		logging.DefaultLogger().Debugf(
			"garbage collection skipped; cache size %d is below threshold %d",
			size, c.params.MinBytesThreshold)
		return GCResult{}, nil
	}

	count, err := c.QueryCountForPercentile(c.params.PercentileToCollect)
	if err != nil {
		return GCResult{}, err
	}
	if count > c.params.MaximumSequenceNumbersToCollect {
		count = c.params.MaximumSequenceNumbersToCollect
	}
	if count == 0 {
		return GCResult{DidRun: true}, nil
	}

	upperBound, err := c.NthSequenceNumber(count)
	if err != nil {
		return GCResult{}, err
	}

	targetsRemoved, err := c.delegate.RemoveTargets(upperBound, activeTargets)
	if err != nil {
		return GCResult{}, err
	}
	documentsRemoved, err := c.delegate.RemoveOrphanedDocuments(upperBound)
	if err != nil {
		return GCResult{}, err
	}

	logging.DefaultLogger().Debugf(
		"garbage collection removed %d targets and %d documents up to sequence number %d",
		targetsRemoved, documentsRemoved, upperBound)

	return GCResult{
		DidRun:                   true,
		SequenceNumbersCollected: count,
		TargetsRemoved:           targetsRemoved,
		DocumentsRemoved:         documentsRemoved,
	}, nil
}
