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
	"github.com/256dpi/lungo/bsonkit"
	"github.com/256dpi/lungo/mongokit"
	"go.mongodb.org/mongo-driver/bson"
)

// projectDocuments applies a projection to every document of list.
func projectDocuments(list []bson.D, projection bson.M) ([]bson.D, error) {
	if len(projection) == 0 {
		return list, nil
	}
	spec, err := normalizeDoc(projection)
	if err != nil {
		return nil, err
	}
	out := make([]bson.D, 0, len(list))
	for i := range list {
		doc, err := mongokit.Project(&list[i], &spec)
		if err != nil {
			return nil, invalid("bad projection", err)
		}
		out = append(out, *doc)
	}
	return out, nil
}

// sortDocuments orders docs by the keys of spec; 1 ascending, -1 descending.
func sortDocuments(docs []bson.D, spec bson.D) error {
	if len(spec) == 0 {
		return nil
	}
	list := make(bsonkit.List, len(docs))
	for i := range docs {
		list[i] = &docs[i]
	}
	var err error
	if list, err = mongokit.Sort(list, &spec); err != nil {
		return invalid("bad sort", err)
	}
	sorted := make([]bson.D, len(list))
	for i, d := range list {
		sorted[i] = *d
	}
	copy(docs, sorted)
	return nil
}

func window(docs []bson.D, skip, limit *int64) []bson.D {
	if skip != nil && *skip > 0 {
		if *skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[*skip:]
	}
	if limit != nil && *limit != 0 {
		n := *limit
		if n < 0 {
			n = -n
		}
		if n < int64(len(docs)) {
			docs = docs[:n]
		}
	}
	return docs
}
