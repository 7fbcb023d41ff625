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
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomoncle/docrepo/database"
	"github.com/tomoncle/docrepo/repository"
	"github.com/tomoncle/docrepo/types"
)

// Service is the application-facing API over a Repository: read helpers,
// pagination and validated saves for documents of type T.
type Service[T any] interface {
	// Get returns the document with the given hex identifier, or nil.
	Get(ctx context.Context, id string) (*T, error)

	// All returns every document of the collection.
	All(ctx context.Context) ([]*T, error)

	// FindOne returns the first document matching filter, or nil.
	FindOne(ctx context.Context, filter bson.M, opts ...*types.FindOptions) (*T, error)

	// Find returns the documents matching filter.
	Find(ctx context.Context, filter bson.M, opts ...*types.FindOptions) ([]*T, error)

	// Count returns the number of documents matching filter.
	Count(ctx context.Context, filter bson.M) (int64, error)

	// Page returns a paginated list of documents.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save validates and stores a new document.
	Save(ctx context.Context, model *T) (*T, error)

	// UpdateOne applies update to the first document matching filter.
	UpdateOne(ctx context.Context, filter, update bson.M, opts ...*types.UpdateOptions) (*types.UpdateResult, error)

	// UpdateMany applies update to every document matching filter.
	UpdateMany(ctx context.Context, filter, update bson.M, opts ...*types.UpdateOptions) (*types.UpdateResult, error)

	// Delete removes a document by its identifier.
	Delete(ctx context.Context, id string) (*types.DeleteResult, error)
}

type baseServiceImpl[T any] struct {
	collection string
	opts       []repository.Option
	repo       repository.Repository[T]
	once       sync.Once
}

// NewService returns a Service over the named collection of the
// process-wide connection handle set up by database.InitDB.
func NewService[T any](collection string, opts ...repository.Option) Service[T] {
	return &baseServiceImpl[T]{collection: collection, opts: opts}
}

func (s *baseServiceImpl[T]) baseRepo() repository.Repository[T] {
	s.once.Do(func() {
		s.repo = repository.NewRepository[T](repository.HandleFunc(database.GetCollection), s.collection, s.opts...)
	})
	return s.repo
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model *T) (*T, error) {
	return s.baseRepo().Create(ctx, model)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id string) (*T, error) {
	return s.baseRepo().FindByID(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.baseRepo().Retrieve(ctx)
}

func (s *baseServiceImpl[T]) FindOne(ctx context.Context, filter bson.M, opts ...*types.FindOptions) (*T, error) {
	return s.baseRepo().FindOne(ctx, filter, opts...)
}

func (s *baseServiceImpl[T]) Find(ctx context.Context, filter bson.M, opts ...*types.FindOptions) ([]*T, error) {
	return s.baseRepo().Find(ctx, filter, opts...)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.baseRepo().Count(ctx, filter)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.baseRepo().Page(ctx, page)
}

func (s *baseServiceImpl[T]) UpdateOne(ctx context.Context, filter, update bson.M, opts ...*types.UpdateOptions) (*types.UpdateResult, error) {
	return s.baseRepo().UpdateOne(ctx, filter, update, opts...)
}

func (s *baseServiceImpl[T]) UpdateMany(ctx context.Context, filter, update bson.M, opts ...*types.UpdateOptions) (*types.UpdateResult, error) {
	return s.baseRepo().UpdateMany(ctx, filter, update, opts...)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id string) (*types.DeleteResult, error) {
	return s.baseRepo().Delete(ctx, id)
}
