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

package docrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tomoncle/docrepo/database"
	"github.com/tomoncle/docrepo/types"
)

type note struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	Title string             `bson:"title" validate:"required"`
	Tags  []string           `bson:"tags,omitempty"`
}

func TestServiceBeforeInitDB(t *testing.T) {
	svc := NewService[note]("notes")
	_, err := svc.All(context.Background())
	assert.ErrorIs(t, err, database.ErrNotConnected)

	_, err = svc.Get(context.Background(), "bad-id")
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestServiceRoundTrip(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = database.TypeSQLite
	cfg.ConnectionConfig.DBName = "file:service_round_trip?mode=memory&cache=shared"
	_, err := database.InitDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })

	ctx := context.Background()
	svc := NewService[note]("notes")

	saved, err := svc.Save(ctx, &note{Title: "first", Tags: []string{"a"}})
	require.NoError(t, err)
	_, err = svc.Save(ctx, &note{Title: "second"})
	require.NoError(t, err)
	_, err = svc.Save(ctx, &note{})
	assert.True(t, database.IsValidationError(err))

	got, err := svc.Get(ctx, saved.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	res, err := svc.UpdateOne(ctx, bson.M{"_id": saved.ID}, bson.M{"$push": bson.M{"tags": "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ModifiedCount)

	tagged, err := svc.FindOne(ctx, bson.M{"tags": "b"})
	require.NoError(t, err)
	require.NotNil(t, tagged)
	assert.Equal(t, []string{"a", "b"}, tagged.Tags)

	res, err = svc.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{"tags": bson.A{"all"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedCount)

	n, err := svc.Count(ctx, bson.M{"tags": "all"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	page, err := svc.Page(ctx, types.NewDefaultPageRequest(1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 1)

	found, err := svc.Find(ctx, bson.M{"title": bson.M{"$ne": "first"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "second", found[0].Title)

	del, err := svc.Delete(ctx, saved.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1), del.DeletedCount)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
