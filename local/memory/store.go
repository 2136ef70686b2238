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

	"github.com/ember-db/ember/internal/logging"
	"github.com/ember-db/ember/local"
)

// NewStore builds a memory-backed local store from the given config. The
// returned collector is nil unless the config selects LRU collection.
func NewStore(conf *local.Config, userID string) (*local.LocalStore, *local.LruGarbageCollector, error) {
	if err := conf.Validate(); err != nil {
		return nil, nil, err
	}
	if err := logging.SetLogLevel(conf.LogLevel); err != nil {
		return nil, nil, err
	}

	var (
		persistence *Persistence
		collector   *local.LruGarbageCollector
		err         error
	)
	switch conf.GC.Mode {
	case "eager":
		persistence, err = NewWithEagerGC()
	case "lru":
		persistence, collector, err = NewWithLruGC(conf.LruParams())
	default:
		return nil, nil, fmt.Errorf("unknown gc mode: %q", conf.GC.Mode)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := persistence.Start(); err != nil {
		return nil, nil, err
	}

	store := local.NewLocalStore(persistence, local.NewQueryEngine(), userID)
	return store, collector, nil
}
