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

package docsql

import (
	"strings"

	"github.com/256dpi/lungo/bsonkit"
	"github.com/256dpi/lungo/mongokit"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomoncle/docrepo/types"
)

// validateUpdate rejects replacement documents before any document is
// touched. Operator semantics are checked while applying.
func validateUpdate(update bson.D) error {
	if len(update) == 0 {
		return types.NewValidationError("", "update document must not be empty")
	}
	for _, e := range update {
		if !strings.HasPrefix(e.Key, "$") {
			return types.NewValidationError(e.Key, "update document requires atomic operators")
		}
		if _, ok := e.Value.(bson.D); !ok {
			return types.NewValidationError(e.Key, "modifier needs a document argument")
		}
	}
	return nil
}

// applyUpdate applies the operators of update to a copy of doc. An update
// that would change or remove _id is refused.
func applyUpdate(doc bson.D, update bson.D, inserting bool) (bson.D, error) {
	if err := validateUpdate(update); err != nil {
		return nil, err
	}
	next := bsonkit.Clone(&doc)
	before := bsonkit.Get(next, "_id")
	query := &bson.D{}
	if _, err := mongokit.Apply(next, query, &update, inserting, nil); err != nil {
		return nil, invalid("bad update", err)
	}
	if before != bsonkit.Missing && bsonkit.Compare(before, bsonkit.Get(next, "_id")) != 0 {
		return nil, types.NewValidationError("_id", "field '_id' is immutable")
	}
	return *next, nil
}

// seedFromFilter builds the base of an upserted document from the plain
// equality clauses of filter.
func seedFromFilter(filter bson.D) (bson.D, error) {
	var fields bson.D
	for _, e := range filter {
		if strings.HasPrefix(e.Key, "$") {
			continue
		}
		value := e.Value
		if ops, isOps := isOperatorDoc(value); isOps {
			eq, ok := field(ops, "$eq")
			if !ok {
				continue
			}
			value = eq
		}
		fields = append(fields, bson.E{Key: e.Key, Value: value})
	}
	seed := bson.D{}
	if len(fields) == 0 {
		return seed, nil
	}
	set := bson.D{{Key: "$set", Value: fields}}
	if _, err := mongokit.Apply(&seed, &bson.D{}, &set, true, nil); err != nil {
		return nil, invalid("cannot seed upsert", err)
	}
	return seed, nil
}
