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

package local_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ember-db/ember/local/memory"
	"github.com/ember-db/ember/pkg/model"
	"github.com/ember-db/ember/pkg/model/value"
)

const testUserID = "test-user"

func newTestPersistence(t *testing.T) *memory.Persistence {
	t.Helper()

	p, err := memory.NewWithEagerGC()
	assert.NoError(t, err)
	assert.NoError(t, p.Start())
	t.Cleanup(func() {
		assert.NoError(t, p.Close())
	})
	return p
}

func key(path string) model.DocumentKey {
	return model.DocumentKeyFromString(path)
}

func version(seconds int64) model.SnapshotVersion {
	return model.NewSnapshotVersion(time.Unix(seconds, 0))
}

func fields(entries ...value.MapEntry) value.ObjectValue {
	return value.NewObjectValue(value.Map(entries...))
}

func entry(k string, v value.Value) value.MapEntry {
	return value.MapEntry{Key: k, Value: v}
}

func foundDoc(path string, seconds int64, entries ...value.MapEntry) *model.Document {
	return model.NewFoundDocument(key(path), version(seconds), fields(entries...))
}

func setMutation(path string) model.Mutation {
	return model.NewSetMutation(key(path), fields(entry("v", value.String(path))))
}

func patchMutation(path, field string, v value.Value) model.Mutation {
	return model.NewPatchMutation(key(path), fields(entry(field, v)),
		value.NewFieldMask(value.ParseFieldPath(field)))
}
