/*
 * Copyright 2025 tomoncle.
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

package database

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

var defaultIndexRegistry = newIndexRegistry()

// IndexSpec describes an index the manager creates once a session opens.
type IndexSpec struct {
	Collection string
	Keys       bson.D
	Unique     bool
	Name       string
}

// indexEnsurer is implemented by sessions that can create indexes.
type indexEnsurer interface {
	EnsureIndexes(ctx context.Context, specs []IndexSpec) error
}

// IndexRegistry stores index specs and exposes them in a deterministic order.
type IndexRegistry interface {
	Register(spec IndexSpec)
	Indexes() []IndexSpec
}

type indexRegistry struct {
	specs []IndexSpec
	mutex sync.RWMutex
}

func newIndexRegistry() IndexRegistry {
	return &indexRegistry{
		specs: make([]IndexSpec, 0),
	}
}

func (r *indexRegistry) Register(spec IndexSpec) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.specs = append(r.specs, spec)
}

func (r *indexRegistry) Indexes() []IndexSpec {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]IndexSpec, len(r.specs))
	copy(result, r.specs)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Collection < result[j].Collection
	})
	return result
}

// RegisterIndex adds an index on keys of collection to the default
// registry.
func RegisterIndex(collection string, keys bson.D, unique bool) {
	defaultIndexRegistry.Register(IndexSpec{Collection: collection, Keys: keys, Unique: unique})
}

// RegisteredIndexes returns every index of the default registry ordered by
// collection.
func RegisteredIndexes() []IndexSpec {
	return defaultIndexRegistry.Indexes()
}
