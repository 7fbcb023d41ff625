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

package types

import (
	"go.mongodb.org/mongo-driver/bson"
)

// FindOptions carries the optional projection, sort order and window of a
// find or findOne call.
type FindOptions struct {
	Projection bson.M
	Sort       bson.D
	Skip       *int64
	Limit      *int64
}

// Find returns an empty FindOptions ready for chaining.
func Find() *FindOptions {
	return &FindOptions{}
}

func (o *FindOptions) SetProjection(projection bson.M) *FindOptions {
	o.Projection = projection
	return o
}

func (o *FindOptions) SetSort(sort bson.D) *FindOptions {
	o.Sort = sort
	return o
}

func (o *FindOptions) SetSkip(skip int64) *FindOptions {
	o.Skip = &skip
	return o
}

func (o *FindOptions) SetLimit(limit int64) *FindOptions {
	o.Limit = &limit
	return o
}

// MergeFindOptions folds opts left to right; later non-zero fields win.
func MergeFindOptions(opts ...*FindOptions) *FindOptions {
	merged := &FindOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if opt.Projection != nil {
			merged.Projection = opt.Projection
		}
		if opt.Sort != nil {
			merged.Sort = opt.Sort
		}
		if opt.Skip != nil {
			merged.Skip = opt.Skip
		}
		if opt.Limit != nil {
			merged.Limit = opt.Limit
		}
	}
	return merged
}

// UpdateOptions carries the optional flags of an update call.
type UpdateOptions struct {
	Upsert *bool
}

// Update returns an empty UpdateOptions ready for chaining.
func Update() *UpdateOptions {
	return &UpdateOptions{}
}

func (o *UpdateOptions) SetUpsert(upsert bool) *UpdateOptions {
	o.Upsert = &upsert
	return o
}

// IsUpsert reports whether the upsert flag is set.
func (o *UpdateOptions) IsUpsert() bool {
	return o != nil && o.Upsert != nil && *o.Upsert
}

// MergeUpdateOptions folds opts left to right.
func MergeUpdateOptions(opts ...*UpdateOptions) *UpdateOptions {
	merged := &UpdateOptions{}
	for _, opt := range opts {
		if opt != nil && opt.Upsert != nil {
			merged.Upsert = opt.Upsert
		}
	}
	return merged
}

// UpdateResult counts the documents matched and modified by an update.
type UpdateResult struct {
	MatchedCount  int64       `json:"matched_count"`
	ModifiedCount int64       `json:"modified_count"`
	UpsertedCount int64       `json:"upserted_count"`
	UpsertedID    interface{} `json:"upserted_id,omitempty"`
}

// DeleteResult acknowledges a removal.
type DeleteResult struct {
	DeletedCount int64 `json:"deleted_count"`
}
