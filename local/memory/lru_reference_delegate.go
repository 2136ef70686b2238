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

package memory

import (
	"github.com/ember-db/ember/local"
	"github.com/ember-db/ember/pkg/model"
)

// lruReferenceDelegate keeps documents and targets until an LRU collection
// run evicts them, recording a sequence number on every release so the
// collector can order entries by recency.
type lruReferenceDelegate struct {
	persistence *Persistence

	// sequenceNumbers records, per potentially orphaned document, the
	// sequence number it was last active at.
	sequenceNumbers map[string]local.ListenSequenceNumber

	// pins counts in-memory references from materialized local views.
	pins map[string]int

	currentSequence local.ListenSequenceNumber
}

func newLruReferenceDelegate(p *Persistence) *lruReferenceDelegate {
	return &lruReferenceDelegate{
		persistence:     p,
		sequenceNumbers: make(map[string]local.ListenSequenceNumber),
		pins:            make(map[string]int),
	}
}

func (d *lruReferenceDelegate) CurrentSequenceNumber() local.ListenSequenceNumber {
	return d.currentSequence
}

func (d *lruReferenceDelegate) AddReference(key model.DocumentKey) error {
	d.pins[key.String()]++
	d.sequenceNumbers[key.String()] = d.currentSequence
	return nil
}

func (d *lruReferenceDelegate) RemoveReference(key model.DocumentKey) error {
	s := key.String()
	if d.pins[s] > 0 {
		d.pins[s]--
	}
	if d.pins[s] == 0 {
		delete(d.pins, s)
	}
	d.sequenceNumbers[s] = d.currentSequence
	return nil
}

func (d *lruReferenceDelegate) RemoveMutationReference(key model.DocumentKey) error {
	d.sequenceNumbers[key.String()] = d.currentSequence
	return nil
}

// RemoveTarget keeps the target's data but stamps it with the current
// sequence number; collection happens later, by age.
func (d *lruReferenceDelegate) RemoveTarget(data local.TargetData) error {
	updated := data.WithSequenceNumber(d.currentSequence)
	return d.persistence.targetCache.UpdateTargetData(updated)
}

func (d *lruReferenceDelegate) UpdateLimboDocument(key model.DocumentKey) error {
	d.sequenceNumbers[key.String()] = d.currentSequence
	return nil
}

func (d *lruReferenceDelegate) OnTransactionStarted() {
	d.currentSequence++
}

func (d *lruReferenceDelegate) OnTransactionCommitted() error {
	return nil
}

func (d *lruReferenceDelegate) ForEachTarget(fn func(local.TargetData)) error {
	return d.persistence.targetCache.forEachTarget(fn)
}

func (d *lruReferenceDelegate) ForEachOrphanedDocumentSequenceNumber(
	fn func(local.ListenSequenceNumber),
) error {
	for docKey, seq := range d.sequenceNumbers {
		targeted, err := d.persistence.targetCache.ContainsKey(model.DocumentKeyFromString(docKey))
		if err != nil {
			return err
		}
		if !targeted {
			fn(seq)
		}
	}
	return nil
}

// RemoveTargets drops inactive targets at or below the bound, recording
// their matching documents as orphaned at the targets' sequence numbers.
func (d *lruReferenceDelegate) RemoveTargets(
	upperBound local.ListenSequenceNumber,
	activeTargets map[local.TargetID]local.TargetData,
) (int, error) {
	var stale []local.TargetData
	if err := d.persistence.targetCache.forEachTarget(func(data local.TargetData) {
		if data.SequenceNumber() > upperBound {
			return
		}
		if _, active := activeTargets[data.TargetID()]; active {
			return
		}
		stale = append(stale, data)
	}); err != nil {
		return 0, err
	}

	for _, data := range stale {
		keys, err := d.persistence.targetCache.GetMatchingKeys(data.TargetID())
		if err != nil {
			return 0, err
		}
		for _, key := range keys.ToSlice() {
			if _, ok := d.sequenceNumbers[key.String()]; !ok {
				d.sequenceNumbers[key.String()] = data.SequenceNumber()
			}
		}
		if err := d.persistence.targetCache.RemoveTargetData(data); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// RemoveOrphanedDocuments evicts unreferenced documents last active at or
// below the bound. Pinned documents and documents with pending mutations are
// skipped regardless of age.
func (d *lruReferenceDelegate) RemoveOrphanedDocuments(
	upperBound local.ListenSequenceNumber,
) (int, error) {
	removed := 0
	for docKey, seq := range d.sequenceNumbers {
		if seq > upperBound || d.pins[docKey] > 0 {
			continue
		}
		key := model.DocumentKeyFromString(docKey)
		targeted, err := d.persistence.targetCache.ContainsKey(key)
		if err != nil {
			return 0, err
		}
		if targeted {
			continue
		}
		mutated, err := d.persistence.mutationQueuesContainKey(docKey)
		if err != nil {
			return 0, err
		}
		if mutated {
			continue
		}

		if err := d.persistence.remoteDocuments.Remove(key); err != nil {
			return 0, err
		}
		delete(d.sequenceNumbers, docKey)
		removed++
	}
	return removed, nil
}

func (d *lruReferenceDelegate) ByteSize() (int64, error) {
	return d.persistence.remoteDocuments.byteSize()
}
