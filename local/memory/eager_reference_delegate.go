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

// eagerReferenceDelegate evicts a document the moment the transaction that
// released its last reference commits. Candidates are collected during the
// transaction and swept at commit.
type eagerReferenceDelegate struct {
	persistence *Persistence

	// pins counts in-memory references from materialized local views.
	pins map[string]int

	// orphaned collects keys that may have lost their last reference in the
	// running transaction.
	orphaned map[string]struct{}
}

func newEagerReferenceDelegate(p *Persistence) *eagerReferenceDelegate {
	return &eagerReferenceDelegate{
		persistence: p,
		pins:        make(map[string]int),
		orphaned:    make(map[string]struct{}),
	}
}

func (d *eagerReferenceDelegate) AddReference(key model.DocumentKey) error {
	d.pins[key.String()]++
	delete(d.orphaned, key.String())
	return nil
}

func (d *eagerReferenceDelegate) RemoveReference(key model.DocumentKey) error {
	s := key.String()
	if d.pins[s] > 0 {
		d.pins[s]--
	}
	if d.pins[s] == 0 {
		delete(d.pins, s)
		d.orphaned[s] = struct{}{}
	}
	return nil
}

func (d *eagerReferenceDelegate) RemoveMutationReference(key model.DocumentKey) error {
	d.orphaned[key.String()] = struct{}{}
	return nil
}

func (d *eagerReferenceDelegate) RemoveTarget(data local.TargetData) error {
	keys, err := d.persistence.targetCache.GetMatchingKeys(data.TargetID())
	if err != nil {
		return err
	}
	for _, key := range keys.ToSlice() {
		d.orphaned[key.String()] = struct{}{}
	}
	return d.persistence.targetCache.RemoveTargetData(data)
}

func (d *eagerReferenceDelegate) UpdateLimboDocument(key model.DocumentKey) error {
	d.orphaned[key.String()] = struct{}{}
	return nil
}

func (d *eagerReferenceDelegate) OnTransactionStarted() {
	d.orphaned = make(map[string]struct{})
}

// OnTransactionCommitted sweeps the orphan candidates: anything no target,
// queue or local view still references is removed from the document cache.
func (d *eagerReferenceDelegate) OnTransactionCommitted() error {
	for s := range d.orphaned {
		referenced, err := d.isReferenced(s)
		if err != nil {
			return err
		}
		if !referenced {
			if err := d.persistence.remoteDocuments.Remove(model.DocumentKeyFromString(s)); err != nil {
				return err
			}
		}
	}
	d.orphaned = make(map[string]struct{})
	return nil
}

func (d *eagerReferenceDelegate) isReferenced(docKey string) (bool, error) {
	if d.pins[docKey] > 0 {
		return true, nil
	}
	if ok, err := d.persistence.targetCache.ContainsKey(model.DocumentKeyFromString(docKey)); err != nil || ok {
		return ok, err
	}
	return d.persistence.mutationQueuesContainKey(docKey)
}
