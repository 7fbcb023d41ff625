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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomoncle/docrepo/types"
)

func mustDoc(t *testing.T, m bson.M) bson.D {
	t.Helper()
	d, err := normalizeDoc(m)
	require.NoError(t, err)
	return d
}

func TestMatchDocument(t *testing.T) {
	doc := mustDoc(t, bson.M{
		"name":  "alice",
		"age":   30,
		"score": 7.5,
		"tags":  bson.A{"go", "db"},
		"addr":  bson.D{{Key: "city", Value: "Paris"}, {Key: "zip", Value: "75001"}},
		"items": bson.A{bson.M{"sku": "a", "qty": 1}, bson.M{"sku": "b", "qty": 5}},
		"note":  nil,
	})

	cases := []struct {
		name   string
		filter bson.M
		want   bool
	}{
		{"empty filter", bson.M{}, true},
		{"equality", bson.M{"name": "alice"}, true},
		{"equality mismatch", bson.M{"name": "bob"}, false},
		{"int matches float", bson.M{"age": 30.0}, true},
		{"dotted path", bson.M{"addr.city": "Paris"}, true},
		{"array membership", bson.M{"tags": "db"}, true},
		{"whole array", bson.M{"tags": bson.A{"go", "db"}}, true},
		{"array of docs", bson.M{"items.sku": "b"}, true},
		{"array index", bson.M{"items.1.qty": 5}, true},
		{"gt", bson.M{"age": bson.M{"$gt": 29}}, true},
		{"gte lt", bson.M{"age": bson.M{"$gte": 30, "$lt": 31}}, true},
		{"lte miss", bson.M{"score": bson.M{"$lte": 7}}, false},
		{"cross type compare", bson.M{"name": bson.M{"$gt": 1}}, false},
		{"ne", bson.M{"name": bson.M{"$ne": "bob"}}, true},
		{"in", bson.M{"tags": bson.M{"$in": bson.A{"rust", "go"}}}, true},
		{"nin", bson.M{"name": bson.M{"$nin": bson.A{"alice"}}}, false},
		{"exists", bson.M{"addr.zip": bson.M{"$exists": true}}, true},
		{"not exists", bson.M{"missing": bson.M{"$exists": false}}, true},
		{"null matches missing", bson.M{"missing": nil}, true},
		{"null matches null", bson.M{"note": nil}, true},
		{"not", bson.M{"age": bson.M{"$not": bson.M{"$gt": 40}}}, true},
		{"or", bson.M{"$or": bson.A{bson.M{"name": "bob"}, bson.M{"age": 30}}}, true},
		{"and", bson.M{"$and": bson.A{bson.M{"name": "alice"}, bson.M{"age": 31}}}, false},
		{"nor", bson.M{"$nor": bson.A{bson.M{"name": "bob"}}}, true},
		{"embedded doc", bson.M{"addr": bson.D{{Key: "city", Value: "Paris"}, {Key: "zip", Value: "75001"}}}, true},
		{"embedded doc order matters", bson.M{"addr": bson.D{{Key: "zip", Value: "75001"}, {Key: "city", Value: "Paris"}}}, false},
		{"regex", bson.M{"name": bson.M{"$regex": "^al"}}, true},
		{"elemMatch", bson.M{"items": bson.M{"$elemMatch": bson.M{"sku": "b", "qty": bson.M{"$gt": 4}}}}, true},
		{"size", bson.M{"tags": bson.M{"$size": 2}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := matchDocument(doc, mustDoc(t, tc.filter))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchDocumentRejectsUnknownOperators(t *testing.T) {
	doc := mustDoc(t, bson.M{"a": 1})
	for _, filter := range []bson.M{
		{"a": bson.M{"$bogus": 1}},
		{"$where": "true"},
		{"$or": "not-an-array"},
	} {
		_, err := matchDocument(doc, mustDoc(t, filter))
		var verr *types.ValidationError
		assert.ErrorAs(t, err, &verr, "filter %v", filter)
	}
}
