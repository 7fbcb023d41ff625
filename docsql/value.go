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
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tomoncle/docrepo/types"
)

// normalizeDoc round-trips m through the BSON codec so that nested values
// take the bson.D and bson.A shapes the evaluator expects.
func normalizeDoc(m bson.M) (bson.D, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func decode(raw []byte) (bson.D, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func field(d bson.D, key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// isOperatorDoc reports whether v is a document of query or update operators.
func isOperatorDoc(v interface{}) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 {
		return nil, false
	}
	return d, strings.HasPrefix(d[0].Key, "$")
}

// invalid wraps an evaluator error so callers see a ValidationError.
func invalid(reason string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsValidationError(err); ok {
		return err
	}
	return &types.ValidationError{Reason: reason, Err: err}
}

// idKey renders an _id into the indexed doc_id column. Integers keep their
// exact value; a float shares the key of the integer it equals.
func idKey(id interface{}) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return "string:" + v
	case int32:
		return intKey(int64(v))
	case int64:
		return intKey(v)
	case int:
		return intKey(int64(v))
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return intKey(int64(v))
		}
		return "number:" + strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf("%T:%v", id, id)
}

func intKey(n int64) string {
	return "number:" + strconv.FormatInt(n, 10)
}
