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
	"reflect"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tomoncle/docrepo/database"
	"github.com/tomoncle/docrepo/types"
)

// Handle resolves a collection by name. Repositories call it on every
// operation, so a reconnect that swaps the session is picked up at once.
type Handle interface {
	Collection(name string) database.Collection
}

// HandleFunc adapts a function to Handle.
type HandleFunc func(name string) database.Collection

func (f HandleFunc) Collection(name string) database.Collection { return f(name) }

type baseRepositoryImpl[T any] struct {
	handle     Handle
	collection string
	validate   *validator.Validate
}

// NewRepository returns a generic repository over the named collection of
// handle. Struct documents are validated with their `validate` tags before
// create unless WithoutValidation is given.
func NewRepository[T any](handle Handle, collection string, opts ...Option) Repository[T] {
	o := &options{validate: defaultValidator()}
	for _, opt := range opts {
		opt(o)
	}
	return &baseRepositoryImpl[T]{
		handle:     handle,
		collection: collection,
		validate:   o.validate,
	}
}

func (r *baseRepositoryImpl[T]) CollectionName() string { return r.collection }

func (r *baseRepositoryImpl[T]) coll() database.Collection {
	return r.handle.Collection(r.collection)
}

// Create validates item, stores it and returns the stored document. An
// absent or zero _id is assigned by the store.
func (r *baseRepositoryImpl[T]) Create(ctx context.Context, item *T) (*T, error) {
	if item == nil {
		return nil, types.NewValidationError("", "document must not be nil")
	}
	if err := r.validateStruct(ctx, item); err != nil {
		return nil, err
	}
	doc, err := toDocument(item)
	if err != nil {
		return nil, err
	}
	id, err := r.coll().InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	stored := doc
	if !hasID(doc) {
		stored = append(bson.D{{Key: "_id", Value: id}}, doc...)
	}
	raw, err := bson.Marshal(stored)
	if err != nil {
		return nil, err
	}
	return decodeOne[T](raw)
}

func (r *baseRepositoryImpl[T]) Retrieve(ctx context.Context) ([]*T, error) {
	return r.Find(ctx, bson.M{})
}

// FindByID rejects a malformed id before any I/O.
func (r *baseRepositoryImpl[T]) FindByID(ctx context.Context, id string) (*T, error) {
	oid, err := types.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	return r.FindOne(ctx, bson.M{"_id": oid})
}

func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, filter bson.M, opts ...*types.FindOptions) (*T, error) {
	raw, err := r.coll().FindOne(ctx, filter, types.MergeFindOptions(opts...))
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeOne[T](raw)
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, filter bson.M, opts ...*types.FindOptions) ([]*T, error) {
	raws, err := r.coll().Find(ctx, filter, types.MergeFindOptions(opts...))
	if err != nil {
		return nil, err
	}
	items := make([]*T, 0, len(raws))
	for _, raw := range raws {
		item, err := decodeOne[T](raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter bson.M) (int64, error) {
	return r.coll().CountDocuments(ctx, filter)
}

func (r *baseRepositoryImpl[T]) UpdateOne(ctx context.Context, filter, update bson.M, opts ...*types.UpdateOptions) (*types.UpdateResult, error) {
	return r.coll().UpdateOne(ctx, filter, update, types.MergeUpdateOptions(opts...))
}

func (r *baseRepositoryImpl[T]) UpdateMany(ctx context.Context, filter, update bson.M, opts ...*types.UpdateOptions) (*types.UpdateResult, error) {
	return r.coll().UpdateMany(ctx, filter, update, types.MergeUpdateOptions(opts...))
}

// Delete removes the document with id. A well-formed id that matches
// nothing is not an error.
func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id string) (*types.DeleteResult, error) {
	oid, err := types.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	return r.coll().DeleteOne(ctx, bson.M{"_id": oid})
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(1, 10)
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := r.Count(ctx, pageRequest.GetFilter())
	if err != nil || total == 0 {
		return pagination, err
	}
	items, err := r.Find(ctx, pageRequest.GetFilter(), pageRequest.FindOptions())
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) validateStruct(ctx context.Context, item *T) error {
	if r.validate == nil {
		return nil
	}
	if reflect.TypeOf(item).Elem().Kind() != reflect.Struct {
		return nil
	}
	return r.validate.StructCtx(ctx, item)
}

// toDocument marshals item and drops an _id that is nil or a zero ObjectID.
func toDocument(item interface{}) (bson.D, error) {
	raw, err := bson.Marshal(item)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for i, e := range doc {
		if e.Key != "_id" {
			continue
		}
		if oid, ok := e.Value.(primitive.ObjectID); e.Value == nil || (ok && oid.IsZero()) {
			return append(doc[:i:i], doc[i+1:]...), nil
		}
		break
	}
	return doc, nil
}

func hasID(doc bson.D) bool {
	for _, e := range doc {
		if e.Key == "_id" {
			return true
		}
	}
	return false
}

func decodeOne[T any](raw []byte) (*T, error) {
	item := new(T)
	if err := bson.Unmarshal(raw, item); err != nil {
		return nil, err
	}
	return item, nil
}
