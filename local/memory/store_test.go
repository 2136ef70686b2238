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

package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ember-db/ember/local"
	"github.com/ember-db/ember/local/memory"
	"github.com/ember-db/ember/pkg/model"
)

func TestNewStore(t *testing.T) {
	t.Run("default config builds an eager store test", func(t *testing.T) {
		store, collector, err := memory.NewStore(local.NewConfig(), testUserID)
		assert.NoError(t, err)
		assert.NotNil(t, store)
		assert.Nil(t, collector)

		result, err := store.WriteLocally([]model.Mutation{setMutation("rooms/a")})
		assert.NoError(t, err)
		assert.Equal(t, model.BatchID(1), result.BatchID)
	})

	t.Run("lru config returns a collector test", func(t *testing.T) {
		conf := local.NewConfig()
		conf.GC.Mode = "lru"

		store, collector, err := memory.NewStore(conf, testUserID)
		assert.NoError(t, err)
		assert.NotNil(t, store)
		assert.NotNil(t, collector)
	})

	t.Run("invalid config is rejected test", func(t *testing.T) {
		conf := local.NewConfig()
		conf.GC.Mode = "generational"

		_, _, err := memory.NewStore(conf, testUserID)
		assert.Error(t, err)
	})
}
