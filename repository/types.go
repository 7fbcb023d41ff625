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

package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomoncle/docrepo/types"
)

// Reader defines the query operations over documents of type T. Single
// document lookups return nil and a nil error when nothing matches.
type Reader[T any] interface {
	Retrieve(ctx context.Context) ([]*T, error)

	FindByID(ctx context.Context, id string) (*T, error)

	FindOne(ctx context.Context, filter bson.M, opts ...*types.FindOptions) (*T, error)

	Find(ctx context.Context, filter bson.M, opts ...*types.FindOptions) ([]*T, error)

	Count(ctx context.Context, filter bson.M) (int64, error)
}

// Writer defines the mutating operations over documents of type T.
type Writer[T any] interface {
	Create(ctx context.Context, item *T) (*T, error)

	UpdateOne(ctx context.Context, filter, update bson.M, opts ...*types.UpdateOptions) (*types.UpdateResult, error)

	UpdateMany(ctx context.Context, filter, update bson.M, opts ...*types.UpdateOptions) (*types.UpdateResult, error)

	Delete(ctx context.Context, id string) (*types.DeleteResult, error)
}

// PageQueryRepository defines pagination functionality for listing documents.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines reads, writes and pagination over one collection.
type Repository[T any] interface {
	Reader[T]
	Writer[T]
	PageQueryRepository[T]
	CollectionName() string
}
