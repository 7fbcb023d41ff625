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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	parsed, err := ParseObjectID(oid.Hex())
	require.NoError(t, err)
	assert.Equal(t, oid, parsed)
	assert.True(t, IsValidObjectID(oid.Hex()))

	for _, id := range []string{"", "abc", "gggggggggggggggggggggggg", oid.Hex() + "0"} {
		_, err := ParseObjectID(id)
		assert.ErrorIs(t, err, ErrInvalidID, id)

		var invalid *InvalidIDError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, id, invalid.ID)
		assert.False(t, IsValidObjectID(id))
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("age", "must be %s", "numeric")
	assert.Equal(t, "validation failed: age: must be numeric", err.Error())

	cause := errors.New("bad path")
	wrapped := fmt.Errorf("update: %w", &ValidationError{Reason: "cannot set", Err: cause})
	ve, ok := AsValidationError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "cannot set", ve.Reason)
	assert.ErrorIs(t, wrapped, cause)

	_, ok = AsValidationError(errors.New("plain"))
	assert.False(t, ok)
}

func TestMergeFindOptions(t *testing.T) {
	base := Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetLimit(5)
	override := Find().SetLimit(1).SetSkip(2)

	merged := MergeFindOptions(base, nil, override)
	assert.Equal(t, bson.D{{Key: "name", Value: 1}}, merged.Sort)
	assert.Equal(t, int64(1), *merged.Limit)
	assert.Equal(t, int64(2), *merged.Skip)
	assert.Nil(t, merged.Projection)
	assert.Equal(t, int64(5), *base.Limit, "inputs are not modified")

	assert.Equal(t, &FindOptions{}, MergeFindOptions())
}

func TestMergeUpdateOptions(t *testing.T) {
	assert.False(t, MergeUpdateOptions().IsUpsert())
	assert.True(t, MergeUpdateOptions(Update().SetUpsert(true), nil).IsUpsert())
	assert.False(t, MergeUpdateOptions(Update().SetUpsert(true), Update().SetUpsert(false)).IsUpsert())

	var none *UpdateOptions
	assert.False(t, none.IsUpsert())
}

func TestPageRequest(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, 10, p.GetPageSize())
	assert.Equal(t, bson.M{}, p.GetFilter())

	p = NewPageRequestWithSort(3, 20, bson.D{{Key: "created_at", Value: -1}})
	opts := p.FindOptions()
	assert.Equal(t, int64(40), *opts.Skip)
	assert.Equal(t, int64(20), *opts.Limit)
	assert.Equal(t, bson.D{{Key: "created_at", Value: -1}}, opts.Sort)

	pagination := NewDefaultPagination[struct{}](3, 20)
	assert.NotNil(t, pagination.Items)
	assert.Zero(t, pagination.Total)
}

type color int

func (c color) IsValid() bool  { return c == 0 || c == 1 }
func (c color) Number() int    { return int(c) }
func (c color) String() string { return c.Name() }
func (c color) Name() string   { return [...]string{"red", "blue"}[c] }
func (c color) Desc() string   { return [...]string{"warm", "cold"}[c] }

func TestLabel(t *testing.T) {
	assert.Equal(t, "blue (cold)", Label(color(1)))
	assert.Equal(t, IllegalName, Label(color(7)))
}
