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
	"fmt"
	"sync"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/rs/xid"

	"github.com/ember-db/ember/internal/logging"
	"github.com/ember-db/ember/local"
)

// Persistence is the in-memory implementation of local.Persistence. One
// instance backs one client; queues and overlay caches are partitioned per
// user, the document and target caches are shared.
type Persistence struct {
	db *memdb.MemDB

	// txnMu serializes local store transactions.
	txnMu sync.Mutex

	mu            sync.Mutex
	queues        map[string]*MutationQueue
	overlayCaches map[string]*DocumentOverlayCache

	remoteDocuments *RemoteDocumentCache
	targetCache     *TargetCache
	indexManager    *IndexManager
	bundleCache     *BundleCache
	delegate        local.ReferenceDelegate

	instanceID string
	logger     logging.Logger
}

// AnonymousUserID returns a fresh user id for clients without a signed-in
// user, so their queue stays separate from any real user's.
func AnonymousUserID() string {
	return "anon-" + xid.New().String()
}

func newPersistence() (*Persistence, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}

	instanceID := xid.New().String()
	p := &Persistence{
		db:            db,
		queues:        make(map[string]*MutationQueue),
		overlayCaches: make(map[string]*DocumentOverlayCache),
		instanceID:    instanceID,
		logger:        logging.New("memdb", logging.NewField("instance", instanceID)),
	}
	p.remoteDocuments = &RemoteDocumentCache{db: db}
	p.targetCache = &TargetCache{db: db}
	p.indexManager = &IndexManager{db: db}
	p.bundleCache = &BundleCache{db: db}
	return p, nil
}

// NewWithEagerGC creates a persistence that evicts documents the moment
// nothing references them.
func NewWithEagerGC() (*Persistence, error) {
	p, err := newPersistence()
	if err != nil {
		return nil, err
	}
	p.delegate = newEagerReferenceDelegate(p)
	return p, nil
}

// NewWithLruGC creates a persistence that keeps documents until an LRU
// collection run evicts them, and returns the collector driving it.
func NewWithLruGC(params local.LruParams) (*Persistence, *local.LruGarbageCollector, error) {
	p, err := newPersistence()
	if err != nil {
		return nil, nil, err
	}
	delegate := newLruReferenceDelegate(p)
	p.delegate = delegate
	return p, local.NewLruGarbageCollector(delegate, params), nil
}

// Start prepares the persistence layer for use.
func (p *Persistence) Start() error {
	return nil
}

// Close releases the persistence layer's resources.
func (p *Persistence) Close() error {
	return nil
}

// GetMutationQueue returns the mutation queue of the given user.
func (p *Persistence) GetMutationQueue(userID string) local.MutationQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	queue, ok := p.queues[userID]
	if !ok {
		queue = &MutationQueue{db: p.db, userID: userID}
		p.queues[userID] = queue
	}
	return queue
}

// GetDocumentOverlayCache returns the overlay cache of the given user.
func (p *Persistence) GetDocumentOverlayCache(userID string) local.DocumentOverlayCache {
	p.mu.Lock()
	defer p.mu.Unlock()
	cache, ok := p.overlayCaches[userID]
	if !ok {
		cache = &DocumentOverlayCache{db: p.db, userID: userID}
		p.overlayCaches[userID] = cache
	}
	return cache
}

// GetRemoteDocumentCache returns the shared remote document cache.
func (p *Persistence) GetRemoteDocumentCache() local.RemoteDocumentCache {
	return p.remoteDocuments
}

// GetTargetCache returns the shared target cache.
func (p *Persistence) GetTargetCache() local.TargetCache {
	return p.targetCache
}

// GetIndexManager returns the shared collection index manager.
func (p *Persistence) GetIndexManager() local.IndexManager {
	return p.indexManager
}

// GetBundleCache returns the shared bundle cache.
func (p *Persistence) GetBundleCache() local.BundleCache {
	return p.bundleCache
}

// GetReferenceDelegate returns the garbage collection delegate.
func (p *Persistence) GetReferenceDelegate() local.ReferenceDelegate {
	return p.delegate
}

// RunTransaction runs fn as one atomic unit bracketed by the reference
// delegate's hooks.
func (p *Persistence) RunTransaction(label string, fn func() error) error {
	p.txnMu.Lock()
	defer p.txnMu.Unlock()

	p.delegate.OnTransactionStarted()
	if err := fn(); err != nil {
		p.logger.Warnf("transaction %s failed: %v", label, err)
		return err
	}
	if err := p.delegate.OnTransactionCommitted(); err != nil {
		p.logger.Warnf("transaction %s failed to commit: %v", label, err)
		return err
	}
	return nil
}

// mutationQueuesContainKey reports whether any user's queue holds a pending
// mutation of the given key.
func (p *Persistence) mutationQueuesContainKey(key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, queue := range p.queues {
		ok, err := queue.containsKey(key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
